package transceiver

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/daedaluz/goserial/spi"
	"github.com/digitalservo/cands-go/pkg/cyphal"
	gpiocdev "github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// csSettleDelay is how long this backend pauses after asserting chip-select
// before the first SPI transfer of a burst, giving the TCAN455x time to
// wake its SPI interface. unix.Nanosleep is used directly rather than
// time.Sleep because this delay is short enough (a few microseconds) that
// the runtime's timer goroutine overhead would dominate it.
var csSettleDelay = unix.Timespec{Sec: 0, Nsec: 2000}

func settleChipSelect() {
	remaining := csSettleDelay
	_ = unix.Nanosleep(&remaining, nil)
}

// GPIO line offsets on the Raspberry Pi header used to drive and read the
// TCAN455x's interrupt and general-purpose input lines.
const (
	gpioInterruptLine = 25
	gpioInputLine     = 24
	gpioInputAllBase  = 16 // GPIO_INPUT_PIN_NUM: first of a contiguous bank of input lines
	gpioInputAllCount = 4
)

// raspberryPiBackend drives a TCAN455x over SPI with its interrupt and
// general-purpose input lines exposed through the Linux GPIO character
// device, the way this device is wired when it sits directly on a
// Raspberry Pi's 40-pin header rather than behind a USB-FTDI bridge.
type raspberryPiBackend struct {
	mu     sync.Mutex
	bus    *spi.Device
	intr   *gpiocdev.Line
	in     *gpiocdev.Line
	inAll  *gpiocdev.Lines
	rx     []Frame
	logger *slog.Logger
}

// NewRaspberryPi opens the SPI device named by options["spi"] (default
// "/dev/spidev0.0") and the GPIO chip named by options["gpiochip"]
// (default "gpiochip0").
func NewRaspberryPi(options map[string]string) (Transceiver, error) {
	spiDev := options["spi"]
	if spiDev == "" {
		spiDev = "/dev/spidev0.0"
	}
	gpiochip := options["gpiochip"]
	if gpiochip == "" {
		gpiochip = "gpiochip0"
	}
	speed := 10000000
	if v := options["speed_hz"]; v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("transceiver: invalid speed_hz %q: %w", v, err)
		}
		speed = parsed
	}

	dev, err := spi.Open(spiDev, spi.Mode0, uint32(speed))
	if err != nil {
		return nil, err
	}

	b := &raspberryPiBackend{bus: dev, logger: slog.Default()}

	b.intr, err = gpiocdev.RequestLine(gpiochip, gpioInterruptLine,
		gpiocdev.AsInput, gpiocdev.WithEventHandler(b.onInterrupt), gpiocdev.WithBothEdges)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("transceiver: requesting interrupt line: %w", err)
	}

	b.in, err = gpiocdev.RequestLine(gpiochip, gpioInputLine, gpiocdev.AsInput)
	if err != nil {
		b.intr.Close()
		dev.Close()
		return nil, fmt.Errorf("transceiver: requesting input line: %w", err)
	}

	offsets := make([]int, gpioInputAllCount)
	for i := range offsets {
		offsets[i] = gpioInputAllBase + i
	}
	b.inAll, err = gpiocdev.RequestLines(gpiochip, offsets, gpiocdev.AsInput)
	if err != nil {
		b.in.Close()
		b.intr.Close()
		dev.Close()
		return nil, fmt.Errorf("transceiver: requesting input bank: %w", err)
	}

	return b, nil
}

func init() {
	RegisterInterface("raspberrypi", NewRaspberryPi)
}

// onInterrupt runs on the TCAN455x's interrupt line going active; it pulls
// one pending frame off the device over SPI. A real TCAN455x register
// protocol (read the RX FIFO status register, then the RX FIFO itself) is
// out of scope here — this only models the shape of the handler, moving an
// already-framed blob across the bus the same way usbftdi.go does over
// serial.
func (b *raspberryPiBackend) onInterrupt(evt gpiocdev.LineEvent) {
	header := make([]byte, 5)
	if err := b.bus.Transfer(header, header); err != nil {
		b.logger.Error("raspberrypi: header transfer failed", "error", err)
		return
	}
	n := int(header[4])
	if n == 0 {
		return
	}
	data := make([]byte, n)
	if err := b.bus.Transfer(data, data); err != nil {
		b.logger.Error("raspberrypi: payload transfer failed", "want", n, "error", err)
		return
	}
	xid := binary.LittleEndian.Uint32(header[0:4])

	b.mu.Lock()
	b.rx = append(b.rx, Frame{XID: cyphal.XID(xid), Data: data})
	b.mu.Unlock()
}

func (b *raspberryPiBackend) Send(_ context.Context, frame Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header[0:4], uint32(frame.XID))
	header[4] = byte(len(frame.Data))

	settleChipSelect()
	if err := b.bus.Transfer(header, nil); err != nil {
		return err
	}
	return b.bus.Transfer(frame.Data, nil)
}

func (b *raspberryPiBackend) Receive(_ context.Context) ([]Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.rx
	b.rx = nil
	return out, nil
}

// SetFilter is a no-op over SPI in this backend, as in the other backends:
// the filter banks are not applied anywhere, every received frame is
// passed on to the demux, and callers pick frames out by port-id when
// draining.
func (b *raspberryPiBackend) SetFilter(FilterConfig) error {
	return nil
}

func (b *raspberryPiBackend) Close() error {
	b.inAll.Close()
	b.in.Close()
	b.intr.Close()
	return b.bus.Close()
}

// GPIReadOne reads the instantaneous level of the single general-purpose
// input line (GPIO_INPUT_PIN_NUM in the original digitalservo firmware
// interface), returning true for a high level.
func (b *raspberryPiBackend) GPIReadOne() (bool, error) {
	v, err := b.in.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// GPIReadAll reads every line in the general-purpose input bank at once,
// in ascending offset order.
func (b *raspberryPiBackend) GPIReadAll() ([]bool, error) {
	values := make([]int, gpioInputAllCount)
	if err := b.inAll.Values(values); err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v != 0
	}
	return out, nil
}
