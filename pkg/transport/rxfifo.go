package transport

import (
	"sync"

	"github.com/digitalservo/cands-go/internal/fifo"
	"github.com/sirupsen/logrus"
)

// DefaultBucketCapacity bounds how many completed frames a single port-id
// bucket holds before Push starts reporting backpressure. A full bucket is
// never silently overwritten — spec.md's Non-goals explicitly exclude
// unbounded backlog buffering, but dropping unread traffic silently would
// hide that a caller has stopped draining.
const DefaultBucketCapacity = 64

// RxFifo is the demultiplexed store of completed transfers, partitioned by
// port-id so that draining one subject's traffic never has to scan past
// another's, unlike a single scan-and-remove queue over all received
// frames.
type RxFifo struct {
	mu       sync.Mutex
	log      *logrus.Entry
	capacity int
	buckets  map[uint16]*fifo.Ring[RxFrame]
}

// NewRxFifo creates an empty RxFifo. Buckets are created lazily on first
// Push for a given port-id.
func NewRxFifo(log *logrus.Entry, bucketCapacity int) *RxFifo {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if bucketCapacity <= 0 {
		bucketCapacity = DefaultBucketCapacity
	}
	return &RxFifo{
		log:      log.WithField("component", "rxfifo"),
		capacity: bucketCapacity,
		buckets:  make(map[uint16]*fifo.Ring[RxFrame]),
	}
}

func (q *RxFifo) bucket(portID uint16) *fifo.Ring[RxFrame] {
	b, ok := q.buckets[portID]
	if !ok {
		b = fifo.NewRing[RxFrame](q.capacity)
		q.buckets[portID] = b
	}
	return b
}

// Push enqueues a completed frame, returning false if that port-id's bucket
// is full.
func (q *RxFifo) Push(frame RxFrame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	ok := q.bucket(frame.Props.PortID).Push(frame)
	if !ok {
		q.log.WithField("port_id", frame.Props.PortID).Warn("rx bucket full, dropping frame")
	}
	return ok
}

// DrainMatching removes and returns every queued frame on the given
// port-ids for which predicate returns true (or every frame on those
// port-ids, if predicate is nil). The result is grouped by port-id in the
// order portIDs lists them, FIFO order within each port-id; arrival order
// across different port-ids is not kept. Frames that don't match are left
// in their bucket in original relative order.
func (q *RxFifo) DrainMatching(portIDs []uint16, predicate func(RxFrame) bool) []RxFrame {
	if predicate == nil {
		predicate = func(RxFrame) bool { return true }
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []RxFrame
	for _, portID := range portIDs {
		b, ok := q.buckets[portID]
		if !ok {
			continue
		}
		out = append(out, b.DrainMatching(predicate)...)
	}
	return out
}

// DrainSourceNode removes and returns every queued frame on the given
// port-ids whose SourceNodeID matches sourceNodeID.
func (q *RxFifo) DrainSourceNode(portIDs []uint16, sourceNodeID uint8) []RxFrame {
	return q.DrainMatching(portIDs, func(f RxFrame) bool {
		return f.Props.SourceNodeID == sourceNodeID
	})
}

// PeekGeneralStatus drains every queued frame on portID and returns the
// first payload byte of the last one consumed, or 0xFF if none were
// queued. It always removes every matched frame, the same way
// get_digitalservo_general_status's result defaults to 0xFF and then
// unconditionally deletes every frame it scanned, whether or not one
// carried a usable status byte.
func (q *RxFifo) PeekGeneralStatus(portID uint16) byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	b, ok := q.buckets[portID]
	if !ok {
		return 0xFF
	}
	frames := b.DrainMatching(func(RxFrame) bool { return true })

	result := byte(0xFF)
	for _, f := range frames {
		if len(f.Payload) > 0 {
			result = f.Payload[0]
		}
	}
	return result
}

// Reset empties every bucket.
func (q *RxFifo) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.buckets {
		b.Reset()
	}
}

// Len reports how many completed frames are queued for portID.
func (q *RxFifo) Len(portID uint16) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.buckets[portID]
	if !ok {
		return 0
	}
	return b.Len()
}
