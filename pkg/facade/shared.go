package facade

import (
	"context"
	"sync"
	"time"

	"github.com/digitalservo/cands-go/pkg/digitalservo"
)

// SharedInterface wraps an Interface with a mutex that serializes whole
// multi-attempt transactions across goroutines. Cyphal/CAN has no
// transaction id space wide enough to let two unrelated reliable calls
// race on the same link and still tell their replies apart, so a caller
// that shares one link between goroutines needs every reliable call to run
// to completion, one at a time, rather than interleave.
//
// A plain sync.Mutex is enough here: a goroutine that blocks acquiring it
// is already at the suspension point the concurrent mode needs, the same
// as the blocking mode's cooperative poll loop blocking on time.Sleep.
type SharedInterface struct {
	mu   sync.Mutex
	Iface *Interface
}

// NewShared wraps an existing Interface for concurrent use. It does not
// construct a new Interface, since the guard only needs to sit in front of
// one that already exists.
func NewShared(iface *Interface) *SharedInterface {
	return &SharedInterface{Iface: iface}
}

// SendMessage is safe to call concurrently; broadcasts never need the
// transaction guard since they have no reply to correlate.
func (s *SharedInterface) SendMessage(ctx context.Context, subjectID uint16, priority uint8, payload []byte) error {
	return s.Iface.SendMessage(ctx, subjectID, priority, payload)
}

// SendRequest is safe to call concurrently for the same reason SendMessage
// is: a one-shot request has no reply to correlate against a concurrent
// caller's.
func (s *SharedInterface) SendRequest(ctx context.Context, serviceID uint16, destNodeID uint8, priority uint8, payload []byte) error {
	return s.Iface.SendRequest(ctx, serviceID, destNodeID, priority, payload)
}

// SendResponse is safe to call concurrently, for the same reason.
func (s *SharedInterface) SendResponse(ctx context.Context, serviceID uint16, destNodeID uint8, priority uint8, payload []byte) error {
	return s.Iface.SendResponse(ctx, serviceID, destNodeID, priority, payload)
}

// SendDigitalservoSetValue guards the whole retrying set-value transaction
// behind the shared mutex so no other reliable call's replies can be
// mistaken for this one's while it is in flight.
func (s *SharedInterface) SendDigitalservoSetValue(ctx context.Context, destNodeID uint8, dict digitalservo.Dict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Iface.SendDigitalservoSetValue(ctx, destNodeID, dict)
}

// SendDigitalservoGetValue guards the whole retrying get-value transaction
// behind the shared mutex.
func (s *SharedInterface) SendDigitalservoGetValue(ctx context.Context, destNodeID uint8, key uint16) (digitalservo.Dict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Iface.SendDigitalservoGetValue(ctx, destNodeID, key)
}

// GetKeyValue guards against racing with an in-flight reliable call, since
// both drain the same FIFO buckets.
func (s *SharedInterface) GetKeyValue(ctx context.Context, keyFilter *uint16, sourceNodeIDFilter *uint8) (digitalservo.Dict, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Iface.GetKeyValue(ctx, keyFilter, sourceNodeIDFilter)
}

// GetGeneralStatus guards for the same reason GetKeyValue does.
func (s *SharedInterface) GetGeneralStatus(ctx context.Context) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Iface.GetGeneralStatus(ctx)
}

// GetResult guards for the same reason GetKeyValue does.
func (s *SharedInterface) GetResult(ctx context.Context, sourceNodeIDFilter *uint8) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Iface.GetResult(ctx, sourceNodeIDFilter)
}

// GetError guards for the same reason GetKeyValue does.
func (s *SharedInterface) GetError(ctx context.Context, sourceNodeIDFilter *uint8) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Iface.GetError(ctx, sourceNodeIDFilter)
}

// SetTimeout changes the retry policy under the guard so it can't race a
// reliable call reading it mid-transaction.
func (s *SharedInterface) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iface.SetTimeout(d)
}

// SetRetryCount changes the retry policy under the guard.
func (s *SharedInterface) SetRetryCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iface.SetRetryCount(n)
}
