package transceiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFindsSimulator(t *testing.T) {
	tr, err := New("simulator", nil)
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestRegistryUnknownBackend(t *testing.T) {
	_, err := New("does-not-exist", nil)
	assert.Error(t, err)
}

func TestSimulatorSendRecordsFrame(t *testing.T) {
	sim, err := NewSimulator(nil)
	require.NoError(t, err)
	s := sim.(*Simulator)

	require.NoError(t, s.Send(context.Background(), Frame{XID: 0x100, Data: []byte{1, 2, 3}}))
	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.EqualValues(t, 0x100, sent[0].XID)
}

func TestSimulatorReceiveDrainsInjected(t *testing.T) {
	sim, err := NewSimulator(nil)
	require.NoError(t, err)
	s := sim.(*Simulator)

	s.Inject(Frame{XID: 0x200, Data: []byte{9}})
	got, err := s.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	again, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSimulatorLoopbackEchoesSend(t *testing.T) {
	sim, err := NewSimulator(nil)
	require.NoError(t, err)
	s := sim.(*Simulator)
	s.Loopback(true)

	require.NoError(t, s.Send(context.Background(), Frame{XID: 0x300, Data: []byte{5}}))
	got, err := s.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 0x300, got[0].XID)
}

func TestSimulatorClosedRejectsOperations(t *testing.T) {
	sim, err := NewSimulator(nil)
	require.NoError(t, err)
	s := sim.(*Simulator)
	require.NoError(t, s.Close())

	err = s.Send(context.Background(), Frame{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimulatorSetFilterRecordsConfig(t *testing.T) {
	sim, err := NewSimulator(nil)
	require.NoError(t, err)
	s := sim.(*Simulator)

	cfg := FilterConfig{NodeID: 7, BitrateKbps: 1000}
	require.NoError(t, s.SetFilter(cfg))
	assert.Equal(t, cfg, s.Filter())
}
