package transport

import (
	"testing"

	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemultiplexerPushesCompletedTransfersToFifo(t *testing.T) {
	xid, _ := cyphal.EncodeMessage(0x100, 1, 4)
	s := NewSegmenter(0, 8)
	frames, err := s.Segment(xid, []byte("a payload long enough to span frames"))
	require.NoError(t, err)

	d := NewDemultiplexer(nil, 4)
	err = d.IngestBatch(toRaw(xid, frames))
	require.NoError(t, err)

	drained := d.Fifo.DrainMatching([]uint16{0x100}, nil)
	require.Len(t, drained, 1)
	assert.Equal(t, []byte("a payload long enough to span frames"), drained[0].Payload)
}

func TestDemultiplexerJoinsCRCErrorsWithoutStoppingBatch(t *testing.T) {
	xidBad, _ := cyphal.EncodeMessage(0x100, 1, 4)
	xidGood, _ := cyphal.EncodeMessage(0x200, 1, 4)
	s := NewSegmenter(0, 8)

	badFrames, _ := s.Segment(xidBad, []byte("this transfer gets corrupted in transit"))
	badFrames[1].Payload[0] ^= 0xFF
	goodFrames, _ := s.Segment(xidGood, []byte{1, 2, 3})

	var batch []RawFrame
	batch = append(batch, toRaw(xidBad, badFrames)...)
	batch = append(batch, toRaw(xidGood, goodFrames)...)

	d := NewDemultiplexer(nil, 4)
	err := d.IngestBatch(batch)
	assert.ErrorIs(t, err, ErrCRCMismatch)

	assert.Equal(t, 0, d.Fifo.Len(0x100))
	assert.Equal(t, 1, d.Fifo.Len(0x200))
}

func TestDemultiplexerResetClearsEverything(t *testing.T) {
	xid, _ := cyphal.EncodeMessage(0x100, 1, 4)
	s := NewSegmenter(0, 8)
	frames, _ := s.Segment(xid, []byte("long enough payload to span several frames of traffic"))

	d := NewDemultiplexer(nil, 4)
	// ingest everything except the last frame, leaving an in-progress transfer.
	_ = d.IngestBatch(toRaw(xid, frames[:len(frames)-1]))
	assert.Equal(t, 1, d.Reassembler.Pending())

	d.Reset()
	assert.Equal(t, 0, d.Reassembler.Pending())
	assert.Equal(t, 0, d.Fifo.Len(0x100))
}
