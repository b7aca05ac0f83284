package transceiver

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/daedaluz/goserial"
	"github.com/digitalservo/cands-go/pkg/cyphal"
)

// usbFTDIBackend talks to a TCAN455x that is reached through a USB-FTDI
// serial bridge: every frame is framed on the wire as a 4-byte
// little-endian XID, a 1-byte length, and that many payload bytes.
type usbFTDIBackend struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	r      *bufio.Reader
	logger *slog.Logger
}

// NewUSBFTDI opens the serial device named by options["device"] (default
// "/dev/ttyUSB0") at the baud rate named by options["baud"] (default
// 3000000, matching the TCAN455x FTDI bridge's default link speed).
func NewUSBFTDI(options map[string]string) (Transceiver, error) {
	device := options["device"]
	if device == "" {
		device = "/dev/ttyUSB0"
	}
	baud := 3000000
	if v := options["baud"]; v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("transceiver: invalid baud %q: %w", v, err)
		}
		baud = parsed
	}

	port, err := serial.Open(device, serial.WithBaudrate(baud))
	if err != nil {
		return nil, err
	}
	return &usbFTDIBackend{port: port, r: bufio.NewReader(port), logger: slog.Default()}, nil
}

func init() {
	RegisterInterface("usbftdi", NewUSBFTDI)
}

func (b *usbFTDIBackend) Send(_ context.Context, frame Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header[0:4], uint32(frame.XID))
	header[4] = byte(len(frame.Data))

	if _, err := b.port.Write(header); err != nil {
		return err
	}
	_, err := b.port.Write(frame.Data)
	return err
}

func (b *usbFTDIBackend) Receive(ctx context.Context) ([]Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var frames []Frame
	for {
		if b.r.Buffered() < 5 {
			break
		}
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		default:
		}

		header := make([]byte, 5)
		if _, err := io.ReadFull(b.r, header); err != nil {
			b.logger.Error("usbftdi: short header read", "error", err)
			return frames, err
		}
		xid := binary.LittleEndian.Uint32(header[0:4])
		n := int(header[4])
		data := make([]byte, n)
		if _, err := io.ReadFull(b.r, data); err != nil {
			b.logger.Error("usbftdi: short payload read", "xid", xid, "want", n, "error", err)
			return frames, err
		}
		frames = append(frames, Frame{XID: cyphal.XID(xid), Data: data})
	}
	return frames, nil
}

// SetFilter is not implemented over this link: the TCAN455x register
// access needed to program its own acceptance filter banks goes through
// SPI, not the FTDI serial bridge. The filter banks are not applied in
// software either: every received frame is passed on to the demux, and
// callers pick frames out by port-id when draining.
func (b *usbFTDIBackend) SetFilter(FilterConfig) error {
	return nil
}

func (b *usbFTDIBackend) Close() error {
	return b.port.Close()
}
