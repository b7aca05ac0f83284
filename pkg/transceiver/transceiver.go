// Package transceiver defines the boundary between the segmented transport
// and whatever physical link actually carries CAN-FD frames to and from a
// TCAN455x device: a USB-FTDI bridge, a Raspberry Pi SPI/GPIO link, or (for
// development and CI) a SocketCAN interface or an in-process simulator.
//
// This package never speaks to the TCAN455x register map itself — it only
// moves opaque frames across whichever medium a backend implements.
package transceiver

import (
	"context"
	"fmt"

	"github.com/digitalservo/cands-go/pkg/cyphal"
)

// Frame is one physical CAN-FD frame: a 29-bit extended id and up to 64
// bytes of payload, already framed by the transport layer (tail byte and,
// at the end of a multi-frame transfer, a CRC trailer already folded in).
type Frame struct {
	XID  cyphal.XID
	Data []byte
}

// FilterBank is one hardware acceptance-filter entry: frames whose XID,
// masked by Mask, equals ID are accepted; all others are rejected at the
// link before ever reaching software.
type FilterBank struct {
	ID   uint32
	Mask uint32
}

// FilterConfig is the full hardware filter profile applied to a
// Transceiver at startup, loaded from pkg/hwconfig.
type FilterConfig struct {
	NodeID      uint8
	BitrateKbps int
	DataBitrate int
	Banks       []FilterBank
}

// Transceiver is the contract every physical-link backend implements. A
// Transceiver is expected to buffer inbound frames internally between
// Receive calls; Receive drains whatever has arrived since the last call
// rather than blocking for a fixed batch size.
type Transceiver interface {
	// Send transmits a single frame, blocking until it has been handed to
	// the link (not until any peer has acknowledged it — Cyphal/CAN has no
	// link-level acknowledgement).
	Send(ctx context.Context, frame Frame) error

	// Receive returns every frame that has arrived since the last call,
	// without blocking for more than ctx allows. An empty, nil-error
	// result means nothing new has arrived.
	Receive(ctx context.Context) ([]Frame, error)

	// SetFilter (re)programs the hardware acceptance filter.
	SetFilter(cfg FilterConfig) error

	// Close releases the underlying link.
	Close() error
}

// NewFunc constructs a Transceiver backend from a set of string options
// (device paths, bitrates, pin numbers — whatever that backend needs).
type NewFunc func(options map[string]string) (Transceiver, error)

var registry = make(map[string]NewFunc)

// RegisterInterface makes a backend constructor available under name, for
// use by New. Backends register themselves from an init() function, the
// same pattern used for pluggable CAN bus backends elsewhere in this
// ecosystem.
func RegisterInterface(name string, fn NewFunc) {
	registry[name] = fn
}

// New constructs the named backend. It returns an error if name was never
// registered (usually meaning the backend's package was never imported).
func New(name string, options map[string]string) (Transceiver, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("transceiver: unknown backend %q", name)
	}
	return fn(options)
}

// Registered lists every backend name currently registered, mainly for
// diagnostics and candsctl's --list-backends flag.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
