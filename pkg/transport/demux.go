package transport

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Demultiplexer combines the reassembly engine with the completed-frame
// FIFO: every inbound frame is folded into reassembly, and whatever
// transfer that completes lands in the FIFO for callers to drain by
// port-id.
type Demultiplexer struct {
	log         *logrus.Entry
	Reassembler *Reassembler
	Fifo        *RxFifo
}

// NewDemultiplexer wires a fresh Reassembler to a fresh RxFifo.
func NewDemultiplexer(log *logrus.Entry, bucketCapacity int) *Demultiplexer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Demultiplexer{
		log:         log.WithField("component", "demux"),
		Reassembler: NewReassembler(log),
		Fifo:        NewRxFifo(log, bucketCapacity),
	}
}

// IngestBatch folds a batch of inbound frames, in order, through the
// reassembly engine, pushing every transfer that completes successfully
// into the FIFO. It returns a joined error of every reassembly error
// encountered (CRC mismatch, toggle mismatch, empty frame), or nil if there
// were none; a failure on one frame never
// stops the rest of the batch from being processed.
func (d *Demultiplexer) IngestBatch(frames []RawFrame) error {
	var errs []error
	for _, raw := range frames {
		completed, err := d.Reassembler.Ingest(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if completed != nil {
			d.Fifo.Push(*completed)
		}
	}
	return errors.Join(errs...)
}

// Reset clears both in-progress reassembly state and every completed-frame
// bucket.
func (d *Demultiplexer) Reset() {
	d.Reassembler.Clear()
	d.Fifo.Reset()
}
