package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/digitalservo/cands-go/pkg/digitalservo"
	"github.com/digitalservo/cands-go/pkg/transceiver"
	"github.com/digitalservo/cands-go/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *transceiver.Simulator) {
	t.Helper()
	tr, err := transceiver.NewSimulator(nil)
	require.NoError(t, err)
	sim := tr.(*transceiver.Simulator)

	seg := transport.NewSegmenter(0, transport.DefaultMTU)
	demux := transport.NewDemultiplexer(nil, 8)
	settings := Settings{Timeout: 30 * time.Millisecond, RetryCount: 2, PollInterval: time.Millisecond}
	return NewEngine(sim, seg, demux, 1, settings, nil), sim
}

func serializeFrame(t *testing.T, xid cyphal.XID, payload []byte) []transceiver.Frame {
	t.Helper()
	s := transport.NewSegmenter(0, transport.DefaultMTU)
	frames, err := s.Segment(xid, payload)
	require.NoError(t, err)
	out := make([]transceiver.Frame, len(frames))
	for i, f := range frames {
		out[i] = transceiver.Frame{XID: f.XID, Data: f.Payload}
	}
	return out
}

func TestSetValueSucceedsOnFirstAttempt(t *testing.T) {
	e, sim := newTestEngine(t)

	go func() {
		time.Sleep(2 * time.Millisecond)
		xid, _ := cyphal.EncodeResponse(digitalservo.PortSetValueStatus, 2, e.SourceNodeID, 4)
		sim.Inject(serializeFrame(t, xid, []byte{0, 0})...)
	}()

	err := e.SetValue(context.Background(), 2, digitalservo.Dict{Key: 1, Values: []digitalservo.PrimitiveData{digitalservo.U8(1)}})
	assert.NoError(t, err)
}

func TestSetValueRejectedByNonZeroStatus(t *testing.T) {
	e, sim := newTestEngine(t)

	go func() {
		time.Sleep(2 * time.Millisecond)
		xid, _ := cyphal.EncodeResponse(digitalservo.PortSetValueStatus, 2, e.SourceNodeID, 4)
		sim.Inject(serializeFrame(t, xid, []byte{1})...)
	}()

	err := e.SetValue(context.Background(), 2, digitalservo.Dict{Key: 1, Values: []digitalservo.PrimitiveData{digitalservo.U8(1)}})
	assert.ErrorIs(t, err, ErrSetValueRejected)
}

func TestSetValueTimesOutAfterRetries(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.SetValue(context.Background(), 2, digitalservo.Dict{Key: 1, Values: []digitalservo.PrimitiveData{digitalservo.U8(1)}})
	assert.ErrorIs(t, err, ErrTimeout)

	sent := 0
	sim := e.Transceiver.(*transceiver.Simulator)
	for _, f := range sim.Sent() {
		fid := cyphal.Decode(f.XID)
		if fid.PortID == digitalservo.PortSetValue {
			sent++
		}
	}
	assert.Equal(t, e.Settings.RetryCount+1, sent)
}

func TestGetValueMatchesOnKey(t *testing.T) {
	e, sim := newTestEngine(t)

	go func() {
		time.Sleep(2 * time.Millisecond)
		dict := digitalservo.Dict{Key: 99, Values: []digitalservo.PrimitiveData{digitalservo.F32(1.5)}}
		payload, _ := dict.Serialize()
		xid, _ := cyphal.EncodeResponse(128, 2, e.SourceNodeID, 4)
		sim.Inject(serializeFrame(t, xid, payload)...)
	}()

	got, err := e.GetValue(context.Background(), 2, 99)
	require.NoError(t, err)
	require.Len(t, got.Values, 1)
	assert.InDelta(t, 1.5, got.Values[0].AsFloat64(), 1e-6)
}

func TestGetValueIgnoresReplyWithWrongKey(t *testing.T) {
	e, sim := newTestEngine(t)

	go func() {
		time.Sleep(time.Millisecond)
		wrong := digitalservo.Dict{Key: 1, Values: []digitalservo.PrimitiveData{digitalservo.U8(0)}}
		payload, _ := wrong.Serialize()
		xid, _ := cyphal.EncodeResponse(128, 2, e.SourceNodeID, 4)
		sim.Inject(serializeFrame(t, xid, payload)...)

		time.Sleep(5 * time.Millisecond)
		right := digitalservo.Dict{Key: 99, Values: []digitalservo.PrimitiveData{digitalservo.U8(7)}}
		payload2, _ := right.Serialize()
		xid2, _ := cyphal.EncodeResponse(129, 2, e.SourceNodeID, 4)
		sim.Inject(serializeFrame(t, xid2, payload2)...)
	}()

	got, err := e.GetValue(context.Background(), 2, 99)
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.Values[0].AsUint64())
}

func TestSendMessageIsUnreliableFireAndForget(t *testing.T) {
	e, sim := newTestEngine(t)
	err := e.SendMessage(context.Background(), 0x50, 4, []byte{1, 2})
	require.NoError(t, err)
	assert.Len(t, sim.Sent(), 1)
}
