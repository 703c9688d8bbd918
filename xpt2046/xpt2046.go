// Package xpt2046 reads an XPT2046 resistive touch controller sharing an SPI
// bus with displays.
//
// The pen interrupt line tells whether the panel is pressed, so the bus is
// only used while it is. Each axis is oversampled, the extreme readings are
// discarded and the rest averaged, then the raw 12-bit values are mapped to
// display pixels with a per-installation Calibration.
package xpt2046

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/BOTO145/and-desk/spibus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers/touch"
)

// Control bytes: start bit, channel, 12-bit differential mode, power-down
// between conversions with the pen interrupt enabled.
const (
	ReadX byte = 0x90
	ReadY byte = 0xD0
)

// ErrCalibration is wrapped by calibration validation errors.
var ErrCalibration = errors.New("xpt2046: invalid calibration")

// Calibration maps raw readings to display pixels.
type Calibration struct {
	XMin, XMax int // Raw X readings at the two edges of the display
	YMin, YMax int // Raw Y readings at the two edges of the display

	SwapXY bool // Controller X axis runs along the display Y axis
	FlipX  bool // Mirror the display X axis
	FlipY  bool // Mirror the display Y axis
}

// DefaultCalibration matches the 2.8" ILI9341 breakout with touch.
var DefaultCalibration = Calibration{XMin: 445, XMax: 3492, YMin: 606, YMax: 3615}

// Validate reports a calibration that cannot map readings.
func (c Calibration) Validate() error {
	if c.XMin == c.XMax {
		return fmt.Errorf("%w: X range is empty (%d)", ErrCalibration, c.XMin)
	}
	if c.YMin == c.YMax {
		return fmt.Errorf("%w: Y range is empty (%d)", ErrCalibration, c.YMin)
	}
	for _, v := range []int{c.XMin, c.XMax, c.YMin, c.YMax} {
		if v < 0 || v > 4095 {
			return fmt.Errorf("%w: %d is not a 12-bit reading", ErrCalibration, v)
		}
	}
	return nil
}

// Map converts raw readings to a point of a w×h display. Readings outside
// the calibrated range are clamped to the display edge.
func (c Calibration) Map(rawX, rawY, w, h int) image.Point {
	if c.SwapXY {
		rawX, rawY = rawY, rawX
	}
	x := scale(rawX, c.XMin, c.XMax, w)
	y := scale(rawY, c.YMin, c.YMax, h)
	if c.FlipX {
		x = w - 1 - x
	}
	if c.FlipY {
		y = h - 1 - y
	}
	return image.Point{X: clamp(x, w), Y: clamp(y, h)}
}

func scale(raw, lo, hi, extent int) int {
	return (raw - lo) * extent / (hi - lo)
}

func clamp(v, extent int) int {
	return max(0, min(v, extent-1))
}

// Filter sorts samples and returns the mean of the middle half, discarding
// the lowest and highest quarter. samples is reordered.
func Filter(samples []uint16) uint16 {
	if len(samples) == 0 {
		return 0
	}
	slices.Sort(samples)
	drop := len(samples) / 4
	mid := samples[drop : len(samples)-drop]
	sum := 0
	for _, s := range mid {
		sum += int(s)
	}
	return uint16(sum / len(mid))
}

// Opts is the configuration for the touch controller.
type Opts struct {
	// Display extent the readings are mapped to.
	W, H int

	Calibration Calibration

	// Control bytes of the two axes. Default: ReadX, ReadY.
	XCmd, YCmd byte

	// Speed is the SPI clock. Default: 1MHz.
	Speed physic.Frequency

	// Samples is the number of acquisitions per axis. Default: 8.
	Samples int

	// IRQActiveHigh inverts the pen interrupt, which is active low on the
	// XPT2046.
	IRQActiveHigh bool
}

// Dev is a handle to an XPT2046 on a shared bus.
type Dev struct {
	bus *spibus.Arbiter
	t   *spibus.Target
	irq gpio.PinIn

	w, h       int
	cal        Calibration
	xCmd, yCmd byte
	speed      physic.Frequency
	active     gpio.Level

	samples []uint16
	w3, r3  [3]byte
}

// New creates a touch controller handle. irq is configured as an input with
// a pull-up when the interrupt is active low.
func New(bus *spibus.Arbiter, t *spibus.Target, irq gpio.PinIn, opts *Opts) (*Dev, error) {
	if bus == nil || t == nil {
		return nil, errors.New("xpt2046: bus and target are required")
	}
	if irq == nil {
		return nil, errors.New("xpt2046: IRQ pin is required")
	}
	if opts == nil {
		return nil, errors.New("xpt2046: options are required")
	}
	if opts.W <= 0 || opts.H <= 0 {
		return nil, fmt.Errorf("xpt2046: invalid display size %dx%d", opts.W, opts.H)
	}
	if err := opts.Calibration.Validate(); err != nil {
		return nil, err
	}
	if opts.Samples < 0 || opts.Speed < 0 {
		return nil, errors.New("xpt2046: samples and speed must not be negative")
	}

	d := &Dev{
		bus:    bus,
		t:      t,
		irq:    irq,
		w:      opts.W,
		h:      opts.H,
		cal:    opts.Calibration,
		xCmd:   opts.XCmd,
		yCmd:   opts.YCmd,
		speed:  opts.Speed,
		active: gpio.Low,
	}
	if d.xCmd == 0 {
		d.xCmd = ReadX
	}
	if d.yCmd == 0 {
		d.yCmd = ReadY
	}
	if d.speed == 0 {
		d.speed = physic.MegaHertz
	}
	n := opts.Samples
	if n == 0 {
		n = 8
	}
	d.samples = make([]uint16, n)

	pull := gpio.PullUp
	if opts.IRQActiveHigh {
		d.active = gpio.High
		pull = gpio.PullDown
	}
	if err := irq.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("xpt2046: failed to configure IRQ: %w", err)
	}
	return d, nil
}

// Touched reports whether the pen interrupt is asserted.
func (d *Dev) Touched() bool {
	return d.irq.Read() == d.active
}

// Sample returns the calibrated position of the current touch. ok is false,
// and the bus untouched, when the panel is not pressed.
func (d *Dev) Sample() (p image.Point, ok bool, err error) {
	if !d.Touched() {
		return image.Point{}, false, nil
	}
	x, y, err := d.Raw()
	if err != nil {
		return image.Point{}, false, err
	}
	return d.cal.Map(int(x), int(y), d.w, d.h), true, nil
}

// Raw returns the filtered raw readings of both axes, regardless of the pen
// interrupt.
func (d *Dev) Raw() (x, y uint16, err error) {
	err = d.bus.Burst(d.speed, func(tx *spibus.Tx) error {
		var err error
		if x, err = d.axis(tx, d.xCmd); err != nil {
			return err
		}
		y, err = d.axis(tx, d.yCmd)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("xpt2046: %w", err)
	}
	return x, y, nil
}

// axis acquires every sample of one channel, each in its own chip-select
// bracket, and filters them.
func (d *Dev) axis(tx *spibus.Tx, cmd byte) (uint16, error) {
	d.w3 = [3]byte{cmd, 0, 0}
	for i := range d.samples {
		if err := tx.Exchange(d.t, d.w3[:], d.r3[:]); err != nil {
			return 0, err
		}
		d.samples[i] = (uint16(d.r3[1])<<8 | uint16(d.r3[2])) >> 3
	}
	return Filter(d.samples), nil
}

// ReadTouchPoint implements touch.Pointer. Z is 1 while the panel is pressed
// and 0 otherwise, including on bus errors.
func (d *Dev) ReadTouchPoint() touch.Point {
	p, ok, err := d.Sample()
	if err != nil || !ok {
		return touch.Point{}
	}
	return touch.Point{X: p.X, Y: p.Y, Z: 1}
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("xpt2046.Dev{%dx%d}", d.w, d.h)
}

var _ touch.Pointer = &Dev{}
