// Package bustest provides a recording SPI port and fake control lines to
// test drivers built on spibus.
package bustest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Op is one transaction seen on the bus.
type Op struct {
	Device string           // device whose chip-select was asserted
	DC     gpio.Level       // data/command line level, High when the device has none
	Speed  physic.Frequency // clock in effect
	W      []byte
	R      []byte // bytes returned to the driver
}

// Command is a command byte with the data bytes that followed it.
type Command struct {
	Cmd  byte
	Data []byte
}

// Pin is a fake GPIO line that logs every level change to its Recorder.
type Pin struct {
	*gpiotest.Pin
	rec *Recorder
	// Err is returned by Out when set.
	Err error
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if p.Err != nil {
		return p.Err
	}
	if err := p.Pin.Out(l); err != nil {
		return err
	}
	p.rec.log(fmt.Sprintf("%s=%s", p.N, l))
	return nil
}

type device struct {
	name string
	cs   *Pin
	dc   *Pin
}

// Recorder implements spi.PortCloser and spi.Conn and records every
// transaction along with which device was selected.
type Recorder struct {
	mu      sync.Mutex
	devices []*device
	ops     []Op
	events  []string
	speeds  []physic.Frequency

	connected bool
	speed     physic.Frequency

	// MaxTx is reported through conn.Limits. Zero means 4096.
	MaxTx int
	// Respond fills the read buffer of a transaction.
	Respond func(device string, w, r []byte)
	// Fail makes Tx return an error once FailAfter transactions succeeded.
	Fail      error
	FailAfter int
	// Closed is set by Close.
	Closed bool
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Device creates the chip-select and data/command lines of a device.
func (r *Recorder) Device(name string) (cs, dc *Pin) {
	cs = r.pin(name + ".CS")
	dc = r.pin(name + ".DC")
	r.mu.Lock()
	r.devices = append(r.devices, &device{name: name, cs: cs, dc: dc})
	r.mu.Unlock()
	return cs, dc
}

// DeviceNoDC creates the chip-select line of a device without a data/command
// line.
func (r *Recorder) DeviceNoDC(name string) *Pin {
	cs := r.pin(name + ".CS")
	r.mu.Lock()
	r.devices = append(r.devices, &device{name: name, cs: cs})
	r.mu.Unlock()
	return cs
}

// Line creates a free-standing fake line (reset, backlight, interrupt).
func (r *Recorder) Line(name string) *Pin {
	return r.pin(name)
}

func (r *Recorder) pin(name string) *Pin {
	return &Pin{Pin: &gpiotest.Pin{N: name, L: gpio.High}, rec: r}
}

// String implements spi.Port.
func (r *Recorder) String() string {
	return "bustest"
}

// Connect implements spi.Port.
func (r *Recorder) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil, errors.New("bustest: already connected")
	}
	if mode&spi.NoCS == 0 {
		return nil, errors.New("bustest: expected NoCS")
	}
	if bits != 8 {
		return nil, fmt.Errorf("bustest: unexpected %d bits per word", bits)
	}
	r.connected = true
	r.speed = f
	return r, nil
}

// LimitSpeed implements spi.PortCloser.
func (r *Recorder) LimitSpeed(f physic.Frequency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speed = f
	r.speeds = append(r.speeds, f)
	r.events = append(r.events, "speed="+f.String())
	return nil
}

// Close implements io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}

// Duplex implements conn.Conn.
func (r *Recorder) Duplex() conn.Duplex {
	return conn.Full
}

// MaxTxSize implements conn.Limits.
func (r *Recorder) MaxTxSize() int {
	if r.MaxTx == 0 {
		return 4096
	}
	return r.MaxTx
}

// Tx implements conn.Conn.
func (r *Recorder) Tx(w, rd []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil && len(r.ops) >= r.FailAfter {
		return r.Fail
	}
	if len(w) > r.MaxTxSize() {
		return fmt.Errorf("bustest: %d bytes exceeds %d", len(w), r.MaxTxSize())
	}
	var sel []*device
	for _, d := range r.devices {
		if d.cs.Read() == gpio.Low {
			sel = append(sel, d)
		}
	}
	if len(sel) != 1 {
		return fmt.Errorf("bustest: %d devices selected", len(sel))
	}
	d := sel[0]
	op := Op{Device: d.name, DC: gpio.High, Speed: r.speed, W: append([]byte(nil), w...)}
	if d.dc != nil {
		op.DC = d.dc.Read()
	}
	if len(rd) != 0 {
		if r.Respond != nil {
			r.Respond(d.name, w, rd)
		}
		op.R = append([]byte(nil), rd...)
	}
	r.ops = append(r.ops, op)
	r.events = append(r.events, fmt.Sprintf("tx %s %d", d.name, len(w)))
	return nil
}

// TxPackets implements spi.Conn.
func (r *Recorder) TxPackets(p []spi.Packet) error {
	for _, pk := range p {
		if err := r.Tx(pk.W, pk.R); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) log(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Ops returns a copy of the recorded transactions.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// Events returns the interleaved log of line changes, speed changes and
// transactions, e.g. "lcd.CS=Low", "speed=1MHz", "tx lcd 3".
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Speeds returns every speed passed to LimitSpeed.
func (r *Recorder) Speeds() []physic.Frequency {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]physic.Frequency(nil), r.speeds...)
}

// Reset forgets every recorded transaction and event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
	r.events = nil
	r.speeds = nil
}

// Commands decodes the transactions sent to a device into commands: a
// single byte sent with DC low starts a command, bytes sent with DC high
// are appended to it.
func (r *Recorder) Commands(device string) []Command {
	var out []Command
	for _, op := range r.Ops() {
		if op.Device != device {
			continue
		}
		if op.DC == gpio.Low {
			for _, b := range op.W {
				out = append(out, Command{Cmd: b})
			}
			continue
		}
		if len(out) == 0 {
			out = append(out, Command{Cmd: 0})
		}
		last := &out[len(out)-1]
		last.Data = append(last.Data, op.W...)
	}
	return out
}

var _ spi.PortCloser = &Recorder{}
var _ spi.Conn = &Recorder{}
var _ conn.Limits = &Recorder{}
var _ gpio.PinIO = &Pin{}
