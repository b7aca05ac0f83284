package transceiver

import (
	"context"
	"log/slog"
	"sync"

	sockcan "github.com/brutella/can"
	"github.com/digitalservo/cands-go/pkg/cyphal"
)

// socketcanBackend bridges this package's Transceiver contract to a Linux
// SocketCAN interface via brutella/can, for development and CI when no
// TCAN455x hardware is attached.
//
// brutella/can only speaks classic CAN, whose Frame.Data is a fixed 8-byte
// array — it cannot carry a full 64-byte CAN-FD frame. This backend is
// therefore only useful for single-frame digitalservo traffic (a
// set-value/get-value payload small enough to need no segmentation); any
// frame whose Data exceeds 8 bytes is rejected with ErrFrameTooLarge rather
// than silently truncated.
type socketcanBackend struct {
	mu     sync.Mutex
	bus    *sockcan.Bus
	rx     []Frame
	logger *slog.Logger
}

// NewSocketcan opens the SocketCAN interface named by options["iface"]
// (e.g. "vcan0" for a virtual interface suitable for CI).
func NewSocketcan(options map[string]string) (Transceiver, error) {
	iface := options["iface"]
	if iface == "" {
		iface = "vcan0"
	}
	bus, err := sockcan.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, err
	}

	b := &socketcanBackend{bus: bus, logger: slog.Default()}
	bus.Subscribe(b)
	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			b.logger.Error("socketcan bus closed", "iface", iface, "error", err)
		}
	}()
	return b, nil
}

func init() {
	RegisterInterface("socketcan", NewSocketcan)
}

const xidMask = 0x1FFFFFFF

// Handle implements brutella/can's frame-handler interface.
func (b *socketcanBackend) Handle(frame sockcan.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := make([]byte, frame.Length)
	copy(data, frame.Data[:frame.Length])
	b.rx = append(b.rx, Frame{XID: cyphal.XID(frame.ID & xidMask), Data: data})
}

func (b *socketcanBackend) Send(_ context.Context, frame Frame) error {
	if len(frame.Data) > 8 {
		return ErrFrameTooLarge
	}
	var data [8]byte
	copy(data[:], frame.Data)

	return b.bus.Publish(sockcan.Frame{
		ID:     uint32(frame.XID) & xidMask,
		Length: uint8(len(frame.Data)),
		Data:   data,
	})
}

func (b *socketcanBackend) Receive(_ context.Context) ([]Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.rx
	b.rx = nil
	return out, nil
}

// SetFilter is a no-op: brutella/can exposes no acceptance-filter
// configuration, and the filter banks are not applied in software either;
// every received frame is passed on to reassembly/demux, and callers pick
// frames out by port-id when draining.
func (b *socketcanBackend) SetFilter(FilterConfig) error {
	return nil
}

func (b *socketcanBackend) Close() error {
	return b.bus.Disconnect()
}
