// Package spibus shares one SPI port between several peripherals.
//
// Every peripheral on the bus owns its own chip-select line, driven through a
// GPIO pin instead of the controller's hardware CS, and optionally a
// data/command line. The Arbiter serializes all transfers with a mutex,
// switches the clock to the rate requested by each transfer before asserting
// chip-select, and splits long payloads into chunks the kernel driver accepts.
package spibus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// DefaultChunkSize is the transfer ceiling of the Linux spidev driver when
// the connection does not report one.
const DefaultChunkSize = 4096

// ErrTransport is wrapped by every error caused by the bus or a control line.
// The transfer that failed is abandoned and not retried.
var ErrTransport = errors.New("spibus: transport failure")

// Mode selects the level of the data/command line during a transfer.
type Mode uint8

const (
	// Command drives the data/command line low.
	Command Mode = iota
	// Data drives the data/command line high.
	Data
)

func (m Mode) String() string {
	if m == Command {
		return "command"
	}
	return "data"
}

func (m Mode) level() gpio.Level {
	return gpio.Level(m == Data)
}

// Opts is the configuration for the Arbiter.
type Opts struct {
	// MaxSpeed is the clock requested when the port is connected. Per-transfer
	// speeds are limited from it. Default: 40MHz.
	MaxSpeed physic.Frequency
	// ChunkSize overrides the transfer ceiling reported by the connection.
	ChunkSize int
}

// Target is a peripheral attached to the bus.
type Target struct {
	name string
	cs   gpio.PinOut // active low
	dc   gpio.PinOut // nil when the peripheral has no data/command line
}

// Name returns the name given to Attach.
func (t *Target) Name() string {
	return t.name
}

// Arbiter owns an SPI port and the chip-select lines of its peripherals.
type Arbiter struct {
	mu      sync.Mutex
	port    spi.PortCloser
	c       spi.Conn
	chunk   int
	speed   physic.Frequency // clock currently programmed on the port
	targets []*Target
	closed  bool
}

// New connects to the port in mode 0, 8 bits per word, with hardware
// chip-select disabled.
//
// opts can be nil to use defaults.
func New(p spi.PortCloser, opts *Opts) (*Arbiter, error) {
	if opts == nil {
		opts = &Opts{}
	}
	maxSpeed := opts.MaxSpeed
	if maxSpeed == 0 {
		maxSpeed = 40 * physic.MegaHertz
	}
	if maxSpeed < 0 {
		return nil, errors.New("spibus: max speed must be positive")
	}
	if opts.ChunkSize < 0 {
		return nil, errors.New("spibus: chunk size must not be negative")
	}

	c, err := p.Connect(maxSpeed, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		return nil, fmt.Errorf("spibus: failed to connect: %w", err)
	}

	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
		if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
			chunk = l.MaxTxSize()
		}
	}

	return &Arbiter{
		port:  p,
		c:     c,
		chunk: chunk,
		speed: maxSpeed,
	}, nil
}

// Attach registers a peripheral and drives its chip-select line inactive.
//
// dc can be nil for peripherals without a data/command line.
func (a *Arbiter) Attach(name string, cs, dc gpio.PinOut) (*Target, error) {
	if cs == nil {
		return nil, fmt.Errorf("spibus: %s: chip-select pin is required", name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, errors.New("spibus: closed")
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to release CS: %w", ErrTransport, name, err)
	}
	if dc != nil {
		if err := dc.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("%w: %s: failed to set DC: %w", ErrTransport, name, err)
		}
	}
	t := &Target{name: name, cs: cs, dc: dc}
	a.targets = append(a.targets, t)
	return t, nil
}

// ChunkSize returns the largest payload sent in a single bus transaction.
func (a *Arbiter) ChunkSize() int {
	return a.chunk
}

// Write sends b to t at speed f, with the data/command line set for mode.
//
// Chip-select stays asserted for the whole payload, however many chunks it
// takes, and is released before Write returns, also on failure.
func (a *Arbiter) Write(t *Target, mode Mode, b []byte, f physic.Frequency) error {
	return a.Burst(f, func(tx *Tx) error {
		return tx.Write(t, mode, b)
	})
}

// Command sends a command byte followed by its payload inside a single
// chip-select bracket. payload can be empty.
func (a *Arbiter) Command(t *Target, cmd byte, payload []byte, f physic.Frequency) error {
	return a.Burst(f, func(tx *Tx) error {
		return tx.Command(t, cmd, payload)
	})
}

// Exchange does one full-duplex transfer with t. r must be as long as w.
func (a *Arbiter) Exchange(t *Target, w, r []byte, f physic.Frequency) error {
	return a.Burst(f, func(tx *Tx) error {
		return tx.Exchange(t, w, r)
	})
}

// Burst holds the bus for the duration of fn. Every transfer issued through
// tx runs at speed f and brackets its own chip-select.
func (a *Arbiter) Burst(f physic.Frequency, fn func(tx *Tx) error) error {
	if f <= 0 {
		return errors.New("spibus: speed must be positive")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("spibus: closed")
	}
	if f != a.speed {
		// The clock must be stable before any chip-select goes low.
		if err := a.port.LimitSpeed(f); err != nil {
			return fmt.Errorf("%w: failed to set speed %s: %w", ErrTransport, f, err)
		}
		a.speed = f
	}
	return fn(&Tx{a: a})
}

// Close releases every chip-select line and closes the port. Further calls
// are no-ops.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for _, t := range a.targets {
		if err := t.cs.Out(gpio.High); err != nil {
			errs = append(errs, fmt.Errorf("spibus: %s: failed to release CS: %w", t.name, err))
		}
	}
	if err := a.port.Close(); err != nil {
		errs = append(errs, fmt.Errorf("spibus: failed to close port: %w", err))
	}
	return errors.Join(errs...)
}

// String returns a string representation of the arbiter.
func (a *Arbiter) String() string {
	return fmt.Sprintf("spibus.Arbiter{%s, %d targets}", a.port, len(a.targets))
}

// Tx issues transfers while the bus is held by Burst. It must not be used
// after fn returns.
type Tx struct {
	a *Arbiter
}

// Write is the same as Arbiter.Write within a burst.
func (tx *Tx) Write(t *Target, mode Mode, b []byte) error {
	if err := tx.setMode(t, mode); err != nil {
		return err
	}
	return tx.selected(t, func() error {
		return tx.send(t, b)
	})
}

// Command is the same as Arbiter.Command within a burst.
func (tx *Tx) Command(t *Target, cmd byte, payload []byte) error {
	if t.dc == nil {
		return fmt.Errorf("spibus: %s: no data/command line", t.name)
	}
	if err := tx.setMode(t, Command); err != nil {
		return err
	}
	return tx.selected(t, func() error {
		if err := tx.send(t, []byte{cmd}); err != nil {
			return err
		}
		if len(payload) == 0 {
			return nil
		}
		if err := tx.setMode(t, Data); err != nil {
			return err
		}
		return tx.send(t, payload)
	})
}

// Exchange is the same as Arbiter.Exchange within a burst.
func (tx *Tx) Exchange(t *Target, w, r []byte) error {
	if len(r) != len(w) {
		return errors.New("spibus: read buffer must match write length")
	}
	if len(w) > tx.a.chunk {
		return fmt.Errorf("spibus: %s: exchange of %d bytes exceeds %d", t.name, len(w), tx.a.chunk)
	}
	return tx.selected(t, func() error {
		if err := tx.a.c.Tx(w, r); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, t.name, err)
		}
		return nil
	})
}

func (tx *Tx) setMode(t *Target, mode Mode) error {
	if t.dc == nil {
		return nil
	}
	if err := t.dc.Out(mode.level()); err != nil {
		return fmt.Errorf("%w: %s: failed to set DC for %s: %w", ErrTransport, t.name, mode, err)
	}
	return nil
}

// selected runs fn with t's chip-select asserted.
func (tx *Tx) selected(t *Target, fn func() error) error {
	if err := t.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: %s: failed to assert CS: %w", ErrTransport, t.name, err)
	}
	err := fn()
	if rerr := t.cs.Out(gpio.High); rerr != nil && err == nil {
		err = fmt.Errorf("%w: %s: failed to release CS: %w", ErrTransport, t.name, rerr)
	}
	return err
}

func (tx *Tx) send(t *Target, b []byte) error {
	for len(b) > 0 {
		n := min(len(b), tx.a.chunk)
		if err := tx.a.c.Tx(b[:n], nil); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, t.name, err)
		}
		b = b[n:]
	}
	return nil
}
