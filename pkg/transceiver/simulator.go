package transceiver

import (
	"context"
	"sync"
)

// Simulator is an in-process Transceiver with no physical link at all,
// used by the transaction and facade test suites and by candsctl's
// --backend simulator dev mode. It has no notion of CAN-FD arbitration or
// acceptance filtering hardware; SetFilter only records the configuration
// for inspection.
type Simulator struct {
	mu       sync.Mutex
	sent     []Frame
	rx       []Frame
	filter   FilterConfig
	closed   bool
	loopback bool
}

// NewSimulator constructs an empty Simulator.
func NewSimulator(map[string]string) (Transceiver, error) {
	return &Simulator{}, nil
}

func init() {
	RegisterInterface("simulator", NewSimulator)
}

// Send records the frame as sent. Unless Loopback is enabled it does not
// loop the frame back to Receive — tests that want an echo either enable
// Loopback or call Inject explicitly, and tests that want to assert on
// outbound traffic call Sent.
func (s *Simulator) Send(_ context.Context, frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := make([]byte, len(frame.Data))
	copy(cp, frame.Data)
	echoed := Frame{XID: frame.XID, Data: cp}
	s.sent = append(s.sent, echoed)
	if s.loopback {
		s.rx = append(s.rx, echoed)
	}
	return nil
}

// Receive drains every frame queued since the last call.
func (s *Simulator) Receive(_ context.Context) ([]Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := s.rx
	s.rx = nil
	return out, nil
}

// SetFilter records the requested filter configuration.
func (s *Simulator) SetFilter(cfg FilterConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = cfg
	return nil
}

// Close marks the Simulator unusable.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Inject queues frames to be returned by the next Receive call, simulating
// inbound traffic from a peer.
func (s *Simulator) Inject(frames ...Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append(s.rx, frames...)
}

// Sent returns every frame handed to Send so far, for test assertions.
func (s *Simulator) Sent() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.sent))
	copy(out, s.sent)
	return out
}

// Filter returns the most recently applied filter configuration.
func (s *Simulator) Filter() FilterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Loopback wires Send to also Inject its own frame, turning this Simulator
// into a self-echoing link. Useful for exercising the facade end-to-end
// without a second party.
func (s *Simulator) Loopback(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopback = enabled
}
