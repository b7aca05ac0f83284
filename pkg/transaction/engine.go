// Package transaction implements the reliable and unreliable request/
// response primitives digitalservo nodes are driven with: one-shot
// broadcast messages and service calls with no acknowledgement, and a
// reliable set-value/get-value pair that retries across attempt timeouts
// until it is acknowledged or its retry budget is spent.
//
// Blocking-mode and "shared" concurrent-mode callers both drive the same
// Engine methods; what differs between the two concurrency models (see
// pkg/facade) is only whether a mutex serializes callers before they ever
// reach the Engine, not anything inside it — a goroutine blocked on
// time.Sleep here already is the suspension point either mode needs.
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/digitalservo/cands-go/pkg/digitalservo"
	"github.com/digitalservo/cands-go/pkg/transceiver"
	"github.com/digitalservo/cands-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Settings governs how the reliable set/get-value calls retry.
type Settings struct {
	// Timeout bounds a single attempt: the time spent polling for a reply
	// before that attempt is abandoned and (if retries remain) a fresh
	// request is sent.
	Timeout time.Duration
	// RetryCount is how many additional attempts follow the first.
	RetryCount int
	// PollInterval is how long the engine cooperatively sleeps between
	// polls of the inbound FIFO within a single attempt.
	PollInterval time.Duration
}

// DefaultSettings returns the engine's out-of-the-box retry policy.
func DefaultSettings() Settings {
	return Settings{
		Timeout:      100 * time.Millisecond,
		RetryCount:   3,
		PollInterval: 2 * time.Millisecond,
	}
}

// ErrTimeout is returned once every attempt of a reliable call has been
// exhausted with no matching reply.
var ErrTimeout = errors.New("transaction: timed out waiting for reply")

// ErrSetValueRejected is returned when a set-value status reply arrived
// but was not all-zero, meaning the node rejected the write.
var ErrSetValueRejected = errors.New("transaction: node rejected set-value")

// Engine drives one node-facing link: a transceiver, the segmentation
// engine that frames outbound transfers, and the demultiplexer that
// inbound traffic lands in.
type Engine struct {
	Transceiver  transceiver.Transceiver
	Segmenter    *transport.Segmenter
	Demux        *transport.Demultiplexer
	SourceNodeID uint8
	Settings     Settings
	log          *logrus.Entry
}

// NewEngine wires an Engine from its three collaborators.
func NewEngine(tr transceiver.Transceiver, seg *transport.Segmenter, demux *transport.Demultiplexer, sourceNodeID uint8, settings Settings, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		Transceiver:  tr,
		Segmenter:    seg,
		Demux:        demux,
		SourceNodeID: sourceNodeID,
		Settings:     settings,
		log:          log.WithField("component", "transaction"),
	}
}

func (e *Engine) transmit(ctx context.Context, xid cyphal.XID, payload []byte) error {
	frames, err := e.Segmenter.Segment(xid, payload)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := e.Transceiver.Send(ctx, transceiver.Frame{XID: f.XID, Data: f.Payload}); err != nil {
			return err
		}
	}
	return nil
}

// SendMessage broadcasts an unreliable message on subjectID. Nothing is
// awaited; it either reaches the bus or it doesn't.
func (e *Engine) SendMessage(ctx context.Context, subjectID uint16, priority cyphal.Priority, payload []byte) error {
	xid, err := cyphal.EncodeMessage(subjectID, e.SourceNodeID, priority)
	if err != nil {
		return err
	}
	return e.transmit(ctx, xid, payload)
}

// SendRequest sends a one-shot service request with no acknowledgement,
// for callers that don't need the reliable retry/confirm behavior;
// SetValue/GetValue use it to send each of their attempts.
func (e *Engine) SendRequest(ctx context.Context, serviceID uint16, destNodeID uint8, priority cyphal.Priority, payload []byte) error {
	xid, err := cyphal.EncodeRequest(serviceID, e.SourceNodeID, destNodeID, priority)
	if err != nil {
		return err
	}
	return e.transmit(ctx, xid, payload)
}

// SendResponse sends a one-shot service response with no acknowledgement.
func (e *Engine) SendResponse(ctx context.Context, serviceID uint16, destNodeID uint8, priority cyphal.Priority, payload []byte) error {
	xid, err := cyphal.EncodeResponse(serviceID, e.SourceNodeID, destNodeID, priority)
	if err != nil {
		return err
	}
	return e.transmit(ctx, xid, payload)
}

// SendDigitalservoRequest is the deprecated one-shot request variant scoped
// to the digitalservo service ids, kept only because older call sites still
// reference it; SetValue/GetValue are the reliable replacements.
func (e *Engine) SendDigitalservoRequest(ctx context.Context, destNodeID uint8, payload []byte) error {
	return e.SendRequest(ctx, digitalservo.PortDeprecatedService, destNodeID, 4, payload)
}

// SendDigitalservoResponse is the deprecated one-shot response variant
// scoped to the digitalservo service ids.
func (e *Engine) SendDigitalservoResponse(ctx context.Context, destNodeID uint8, payload []byte) error {
	return e.SendResponse(ctx, digitalservo.PortDeprecatedService, destNodeID, 4, payload)
}

// pollAttempt drains the transceiver and demux once per PollInterval until
// match returns a non-nil result, ctx is cancelled, or the attempt's
// deadline passes. A CRC or toggle mismatch surfaced by the demux during
// polling is logged and otherwise ignored: within a single attempt it is
// treated exactly like a missing reply, never as a separate failure to
// retry against.
func (e *Engine) pollAttempt(ctx context.Context, deadline time.Time, match func() (digitalservo.Dict, bool)) (digitalservo.Dict, bool, error) {
	for {
		raw, err := e.Transceiver.Receive(ctx)
		if err != nil {
			return digitalservo.Dict{}, false, err
		}
		if len(raw) > 0 {
			batch := make([]transport.RawFrame, len(raw))
			for i, f := range raw {
				batch[i] = transport.RawFrame{XID: f.XID, Payload: f.Data}
			}
			if err := e.Demux.IngestBatch(batch); err != nil {
				e.log.WithError(err).Debug("frame error while polling for reply")
			}
		}

		if dict, ok := match(); ok {
			return dict, true, nil
		}

		select {
		case <-ctx.Done():
			return digitalservo.Dict{}, false, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return digitalservo.Dict{}, false, nil
		}
		time.Sleep(e.Settings.PollInterval)
	}
}

// SetValue reliably writes dict to destNodeID: it sends a set-value
// request and retries, up to Settings.RetryCount additional times, until a
// PortSetValueStatus reply from destNodeID arrives within an attempt's
// Settings.Timeout window. A reply whose status bytes are not all zero is
// reported as ErrSetValueRejected without further retries, since retrying
// an explicit rejection cannot change the outcome.
func (e *Engine) SetValue(ctx context.Context, destNodeID uint8, dict digitalservo.Dict) error {
	payload, err := dict.Serialize()
	if err != nil {
		return err
	}

	attempts := e.Settings.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := e.SendRequest(ctx, digitalservo.PortSetValue, destNodeID, 4, payload); err != nil {
			return err
		}

		deadline := time.Now().Add(e.Settings.Timeout)
		var status []byte
		var rejected bool
		_, matched, err := e.pollAttempt(ctx, deadline, func() (digitalservo.Dict, bool) {
			frames := e.Demux.Fifo.DrainSourceNode([]uint16{digitalservo.PortSetValueStatus}, destNodeID)
			for _, f := range frames {
				status = f.Payload
				rejected = !digitalservo.IsAllZeroStatus(status)
				return digitalservo.Dict{}, true
			}
			return digitalservo.Dict{}, false
		})
		if err != nil {
			return err
		}
		if matched {
			if rejected {
				return ErrSetValueRejected
			}
			return nil
		}
	}
	return ErrTimeout
}

// GetValue reliably reads key from destNodeID, retrying the same way
// SetValue does. A reply on any of digitalservo.PortGetValueResponse whose
// decoded key does not match is ignored and polling continues, since more
// than one key's traffic can share those port-ids.
func (e *Engine) GetValue(ctx context.Context, destNodeID uint8, key uint16) (digitalservo.Dict, error) {
	payload := digitalservo.Str{Key: key}.Serialize()

	attempts := e.Settings.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := e.SendRequest(ctx, digitalservo.PortGetValue, destNodeID, 4, payload); err != nil {
			return digitalservo.Dict{}, err
		}

		deadline := time.Now().Add(e.Settings.Timeout)
		dict, matched, err := e.pollAttempt(ctx, deadline, func() (digitalservo.Dict, bool) {
			frames := e.Demux.Fifo.DrainSourceNode(digitalservo.PortGetValueResponse, destNodeID)
			for _, f := range frames {
				d, err := digitalservo.DecodeDict(f.Payload)
				if err != nil {
					continue
				}
				if d.Key == key {
					return d, true
				}
			}
			return digitalservo.Dict{}, false
		})
		if err != nil {
			return digitalservo.Dict{}, err
		}
		if matched {
			return dict, nil
		}
	}
	return digitalservo.Dict{}, ErrTimeout
}
