// Package facade assembles the transceiver, transport, and transaction
// layers into the single outward-facing object callers drive a
// digitalservo node through: Interface for single-threaded blocking use,
// and SharedInterface for callers that share one link across goroutines.
package facade

import (
	"context"
	"errors"
	"time"

	"github.com/digitalservo/cands-go/pkg/cyphal"
	"github.com/digitalservo/cands-go/pkg/digitalservo"
	"github.com/digitalservo/cands-go/pkg/transaction"
	"github.com/digitalservo/cands-go/pkg/transceiver"
	"github.com/digitalservo/cands-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// GeneralStatusResultMask picks out the latched operation-result bit (1 =
// last operation succeeded) from the status byte a digitalservo node
// publishes on PortSetValueStatus. The sticky error flag GetError reports
// is a separate byte entirely, published on PortGeneralError, so it has no
// corresponding mask here.
const GeneralStatusResultMask = 0x01

// ErrNoStatus is returned by GetResult/GetError when no matching status
// frame is queued. GetGeneralStatus never returns it; it reports 0xFF
// instead.
var ErrNoStatus = errors.New("facade: no general status frame received yet")

// Interface is the blocking-mode outward-facing object: exactly one
// goroutine is expected to drive it at a time, the same assumption a
// single-threaded cooperative poll loop always made.
type Interface struct {
	Transceiver transceiver.Transceiver
	Segmenter   *transport.Segmenter
	Demux       *transport.Demultiplexer
	Engine      *transaction.Engine
	NodeID      uint8
	log         *logrus.Entry
}

// New constructs an Interface: it programs the hardware filter, seeds the
// segmentation engine's transfer-id counter from wall-clock time (so a
// restarted process never replays a transfer-id a peer has already seen),
// and wires a fresh transaction Engine around the given transceiver.
func New(tr transceiver.Transceiver, filter transceiver.FilterConfig, sourceNodeID uint8, settings transaction.Settings, log *logrus.Entry) (*Interface, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := tr.SetFilter(filter); err != nil {
		return nil, err
	}

	seed := uint8(time.Now().UnixMilli() % 32)
	seg := transport.NewSegmenter(seed, transport.DefaultMTU)
	demux := transport.NewDemultiplexer(log, transport.DefaultBucketCapacity)
	engine := transaction.NewEngine(tr, seg, demux, sourceNodeID, settings, log)

	return &Interface{
		Transceiver: tr,
		Segmenter:   seg,
		Demux:       demux,
		Engine:      engine,
		NodeID:      sourceNodeID,
		log:         log.WithField("component", "facade"),
	}, nil
}

// LoadFrames drains whatever the transceiver has received since the last
// call and folds it through reassembly/demux. Callers that only care about
// the reliable SendDigitalservoSetValue/GetValue calls never need to call
// this themselves — those calls poll internally — but anything reading
// broadcast traffic or the general-status port needs to pump it
// explicitly.
func (i *Interface) LoadFrames(ctx context.Context) error {
	raw, err := i.Transceiver.Receive(ctx)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	batch := make([]transport.RawFrame, len(raw))
	for idx, f := range raw {
		batch[idx] = transport.RawFrame{XID: f.XID, Payload: f.Data}
	}
	return i.Demux.IngestBatch(batch)
}

// SendMessage broadcasts an unreliable message.
func (i *Interface) SendMessage(ctx context.Context, subjectID uint16, priority uint8, payload []byte) error {
	return i.Engine.SendMessage(ctx, subjectID, clampPriority(priority), payload)
}

// SendRequest sends a one-shot service request with no acknowledgement.
func (i *Interface) SendRequest(ctx context.Context, serviceID uint16, destNodeID uint8, priority uint8, payload []byte) error {
	return i.Engine.SendRequest(ctx, serviceID, destNodeID, clampPriority(priority), payload)
}

// SendResponse sends a one-shot service response with no acknowledgement.
func (i *Interface) SendResponse(ctx context.Context, serviceID uint16, destNodeID uint8, priority uint8, payload []byte) error {
	return i.Engine.SendResponse(ctx, serviceID, destNodeID, clampPriority(priority), payload)
}

// SendDigitalservoSetValue reliably writes dict to destNodeID.
func (i *Interface) SendDigitalservoSetValue(ctx context.Context, destNodeID uint8, dict digitalservo.Dict) error {
	return i.Engine.SetValue(ctx, destNodeID, dict)
}

// SendDigitalservoGetValue reliably reads key from destNodeID.
func (i *Interface) SendDigitalservoGetValue(ctx context.Context, destNodeID uint8, key uint16) (digitalservo.Dict, error) {
	return i.Engine.GetValue(ctx, destNodeID, key)
}

// GetKeyValue scans whatever get-value responses are already queued
// (pumping LoadFrames once first), without sending a request or retrying.
// keyFilter and sourceNodeIDFilter are both optional (nil matches
// anything); a nil keyFilter matches queued values regardless of key. Every
// matching frame is drained, but only the Dict of the last one is
// returned; the earlier matches are discarded. It is for callers that want
// to opportunistically read a value a node already pushed out, rather than
// ask for one.
func (i *Interface) GetKeyValue(ctx context.Context, keyFilter *uint16, sourceNodeIDFilter *uint8) (digitalservo.Dict, bool, error) {
	if err := i.LoadFrames(ctx); err != nil {
		return digitalservo.Dict{}, false, err
	}
	frames := i.Demux.Fifo.DrainMatching(digitalservo.PortGetValueResponse, func(f transport.RxFrame) bool {
		if sourceNodeIDFilter != nil && f.Props.SourceNodeID != *sourceNodeIDFilter {
			return false
		}
		d, err := digitalservo.DecodeDict(f.Payload)
		if err != nil {
			return false
		}
		return keyFilter == nil || d.Key == *keyFilter
	})
	if len(frames) == 0 {
		return digitalservo.Dict{}, false, nil
	}
	last := frames[len(frames)-1]
	dict, err := digitalservo.DecodeDict(last.Payload)
	if err != nil {
		return digitalservo.Dict{}, false, err
	}
	return dict, true, nil
}

// GetGeneralStatus drains every queued general-status frame and returns the
// last one's first byte, or 0xFF if none were queued — mirroring
// get_digitalservo_general_status, which always returns a byte (defaulting
// to 0xFF) rather than an optional result, and unconditionally consumes
// every frame it scanned.
func (i *Interface) GetGeneralStatus(ctx context.Context) (byte, error) {
	if err := i.LoadFrames(ctx); err != nil {
		return 0, err
	}
	return i.Demux.Fifo.PeekGeneralStatus(digitalservo.PortSetValueStatus), nil
}

// scanStatusByte drains every frame on portID matching the optional
// sourceNodeIDFilter and returns the last matched payload's first byte. It
// reports ErrNoStatus if nothing matched, the way GetResult/GetError's
// bool-returning convenience API needs to distinguish "no status" from a
// legitimate zero byte, even though the status port itself has no such
// sentinel.
func (i *Interface) scanStatusByte(ctx context.Context, portID uint16, sourceNodeIDFilter *uint8) (byte, error) {
	if err := i.LoadFrames(ctx); err != nil {
		return 0, err
	}
	frames := i.Demux.Fifo.DrainMatching([]uint16{portID}, func(f transport.RxFrame) bool {
		return sourceNodeIDFilter == nil || f.Props.SourceNodeID == *sourceNodeIDFilter
	})
	if len(frames) == 0 {
		return 0, ErrNoStatus
	}
	last := frames[len(frames)-1]
	if len(last.Payload) == 0 {
		return 0, ErrNoStatus
	}
	return last.Payload[0], nil
}

// GetResult reports whether the latched general-status result bit
// indicates sourceNodeIDFilter's (or, if nil, any node's) last operation
// succeeded, matching the original get_result(source_node_id_opt).
func (i *Interface) GetResult(ctx context.Context, sourceNodeIDFilter *uint8) (bool, error) {
	status, err := i.scanStatusByte(ctx, digitalservo.PortSetValueStatus, sourceNodeIDFilter)
	if err != nil {
		return false, err
	}
	return status&GeneralStatusResultMask != 0, nil
}

// GetError reports whether sourceNodeIDFilter's (or, if nil, any node's)
// sticky error flag is set, read from the dedicated error subject
// (digitalservo.PortGeneralError) rather than the set-value status byte —
// matching the original get_error(source_node_id_opt), whose
// TARGET_PORT_ID (0x17C0) is distinct from get_result's.
func (i *Interface) GetError(ctx context.Context, sourceNodeIDFilter *uint8) (bool, error) {
	status, err := i.scanStatusByte(ctx, digitalservo.PortGeneralError, sourceNodeIDFilter)
	if err != nil {
		return false, err
	}
	return status != 0, nil
}

// SetTimeout changes the per-attempt timeout used by reliable calls.
func (i *Interface) SetTimeout(d time.Duration) {
	i.Engine.Settings.Timeout = d
}

// SetRetryCount changes how many additional attempts a reliable call makes.
func (i *Interface) SetRetryCount(n int) {
	i.Engine.Settings.RetryCount = n
}

// ResetSettings restores the default retry policy.
func (i *Interface) ResetSettings() {
	i.Engine.Settings = transaction.DefaultSettings()
}

// clampPriority saturates a caller-supplied priority to the 3-bit range
// Cyphal/CAN actually carries, rather than silently wrapping a too-large
// value into an unrelated priority level.
func clampPriority(p uint8) cyphal.Priority {
	if p > uint8(cyphal.MaxPriority) {
		return cyphal.MaxPriority
	}
	return cyphal.Priority(p)
}
