package tft

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/BOTO145/and-desk/spibus"
	"github.com/BOTO145/and-desk/tft/image565"
	"golang.org/x/image/draw"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

var (
	// ErrNotReady is returned by pixel operations before Init succeeded, or
	// after a transport failure.
	ErrNotReady = errors.New("tft: not initialized")
	// ErrHalted is returned by every operation after Halt.
	ErrHalted = errors.New("tft: halted")
)

// State is the lifecycle state of a panel.
type State uint8

const (
	Uninit State = iota
	Resetting
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "uninit"
	case Resetting:
		return "resetting"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// BacklightFrequency is the PWM frequency driven on the backlight pin.
const BacklightFrequency = 500 * physic.Hertz

// Opts is the configuration for a panel.
type Opts struct {
	Profile Profile

	// Optional lines
	RST gpio.PinOut // Reset pin, active low (nil if not used)
	BL  gpio.PinOut // Backlight pin (nil if not used)

	// Scaler resamples frames whose size differs from the panel.
	// Default: draw.NearestNeighbor.
	Scaler draw.Scaler

	// ResetPulse is how long RST is held low, and how long to wait after
	// releasing it. Default: 100ms.
	ResetPulse time.Duration

	// Sleep is used for reset and post-command delays. Default: time.Sleep.
	Sleep func(time.Duration)
}

// Dev is the device handle for one panel on a shared bus.
type Dev struct {
	// Communication
	bus *spibus.Arbiter
	t   *spibus.Target
	rst gpio.PinOut
	bl  gpio.PinOut

	profile Profile
	rect    image.Rectangle

	// Pixel buffers
	buffer *image565.Image // Packed frame, reused by every push
	scaled *image.RGBA     // Resampling target, allocated on first use

	scaler draw.Scaler
	pulse  time.Duration
	sleep  func(time.Duration)

	state  State
	halted bool
}

// New creates a panel driver on target t. The panel is not touched until
// Init is called.
func New(bus *spibus.Arbiter, t *spibus.Target, opts *Opts) (*Dev, error) {
	if bus == nil || t == nil {
		return nil, errors.New("tft: bus and target are required")
	}
	if opts == nil {
		return nil, errors.New("tft: options are required")
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}
	p := opts.Profile.clone()

	d := &Dev{
		bus:     bus,
		t:       t,
		rst:     opts.RST,
		bl:      opts.BL,
		profile: p,
		rect:    image.Rect(0, 0, p.W, p.H),
		buffer:  image565.New(image.Rect(0, 0, p.W, p.H)),
		scaler:  opts.Scaler,
		pulse:   opts.ResetPulse,
		sleep:   opts.Sleep,
	}
	if d.scaler == nil {
		d.scaler = draw.NearestNeighbor
	}
	if d.pulse == 0 {
		d.pulse = 100 * time.Millisecond
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	return d, nil
}

// Init resets the panel and replays its initialization table.
//
// It can be called again after a transport failure to recover the panel.
func (d *Dev) Init() error {
	if d.halted {
		return ErrHalted
	}

	// Hardware reset sequence (if RST pin is provided)
	d.state = Resetting
	if d.rst != nil {
		if err := d.rst.Out(gpio.Low); err != nil {
			d.state = Uninit
			return fmt.Errorf("tft: %s: failed to pull RST low: %w", d.profile.Name, err)
		}
		d.sleep(d.pulse)
		if err := d.rst.Out(gpio.High); err != nil {
			d.state = Uninit
			return fmt.Errorf("tft: %s: failed to pull RST high: %w", d.profile.Name, err)
		}
		d.sleep(d.pulse)
	}

	d.state = Initializing
	for _, s := range d.profile.sequence() {
		if err := d.command(s.Cmd, s.Data...); err != nil {
			return err
		}
		if s.Delay > 0 {
			d.sleep(s.Delay)
		}
	}
	d.state = Ready
	return nil
}

// State returns the lifecycle state of the panel.
func (d *Dev) State() State {
	return d.state
}

// Profile returns a copy of the panel profile.
func (d *Dev) Profile() Profile {
	return d.profile.clone()
}

// command sends a register and its payload. A transport failure leaves the
// panel in an unknown state.
func (d *Dev) command(cmd byte, data ...byte) error {
	if err := d.bus.Command(d.t, cmd, data, d.profile.Speed); err != nil {
		d.state = Uninit
		return fmt.Errorf("tft: %s: command 0x%02X: %w", d.profile.Name, cmd, err)
	}
	return nil
}

// sendData streams pixel bytes after RAMWR.
func (d *Dev) sendData(pixels []byte) error {
	if err := d.bus.Write(d.t, spibus.Data, pixels, d.profile.Speed); err != nil {
		d.state = Uninit
		return fmt.Errorf("tft: %s: pixel data: %w", d.profile.Name, err)
	}
	return nil
}

// setWindow programs the inclusive address window r and opens memory write.
func (d *Dev) setWindow(r image.Rectangle) error {
	x0, y0 := r.Min.X, r.Min.Y
	x1, y1 := r.Max.X-1, r.Max.Y-1
	if err := d.command(CASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.command(RASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return d.command(RAMWR)
}

// writeRect writes packed pixels to a rectangular region of the panel.
func (d *Dev) writeRect(r image.Rectangle, pixels []byte) error {
	if err := d.setWindow(r); err != nil {
		return err
	}
	return d.sendData(pixels)
}

func (d *Dev) ready() error {
	if d.halted {
		return ErrHalted
	}
	if d.state != Ready {
		return ErrNotReady
	}
	return nil
}

// Encode resamples frame to the panel size if needed and packs it into the
// driver's pixel buffer, which is returned. The buffer is overwritten by the
// next Encode or Push.
func (d *Dev) Encode(frame image.Image) *image565.Image {
	src := frame
	if b := frame.Bounds(); b.Dx() != d.rect.Dx() || b.Dy() != d.rect.Dy() {
		if d.scaled == nil {
			d.scaled = image.NewRGBA(d.rect)
		}
		d.scaler.Scale(d.scaled, d.rect, frame, b, draw.Src, nil)
		src = d.scaled
	}
	encode(d.buffer, src)
	return d.buffer
}

// encode packs src, whose size matches dst, into dst.
func encode(dst *image565.Image, src image.Image) {
	b := src.Bounds()
	if rgba, ok := src.(*image.RGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < b.Dx(); x++ {
				i := 4 * x
				dst.SetRGB(x, y, row[i], row[i+1], row[i+2])
			}
		}
		return
	}
	if p, ok := src.(*image565.Image); ok {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				dst.SetRGB565(x, y, p.RGB565At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			dst.SetRGB(x, y, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
}

// Push encodes frame and writes it over the whole panel.
//
// A frame of a different size is resampled first. On a transport failure
// the panel keeps its previous content and must be initialized again.
func (d *Dev) Push(frame image.Image) error {
	if err := d.ready(); err != nil {
		return err
	}
	buf := d.Encode(frame)
	return d.writeRect(d.rect, buf.Pix())
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return image565.Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Draw updates the region dst of the panel from src at sp. Unlike Push, src
// is not resampled.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if err := d.ready(); err != nil {
		return err
	}

	// Clip to display bounds
	dst = dst.Intersect(d.rect)
	if dst.Empty() {
		return nil
	}

	// Full-frame fast path
	if dst == d.rect && sp == (image.Point{}) && src.Bounds() == d.rect {
		return d.Push(src)
	}

	region := image565.New(image.Rect(0, 0, dst.Dx(), dst.Dy()))
	draw.Draw(region, region.Bounds(), src, sp, draw.Src)
	return d.writeRect(dst, region.Pix())
}

// Invert inverts the display colors.
func (d *Dev) Invert(invert bool) error {
	if err := d.ready(); err != nil {
		return err
	}
	if invert {
		return d.command(INVON)
	}
	return d.command(INVOFF)
}

// SetBrightness drives the backlight with the given duty cycle. Pins without
// PWM support are switched fully on or off.
func (d *Dev) SetBrightness(duty gpio.Duty) error {
	if d.halted {
		return ErrHalted
	}
	if d.bl == nil {
		return errors.New("tft: no backlight pin")
	}
	if duty < 0 || duty > gpio.DutyMax {
		return fmt.Errorf("tft: invalid duty %s", duty)
	}
	if err := d.bl.PWM(duty, BacklightFrequency); err == nil {
		return nil
	}
	return d.bl.Out(gpio.Level(duty > 0))
}

// Halt turns the panel and its backlight off.
// After calling Halt, the display will not respond to further commands.
func (d *Dev) Halt() error {
	if d.halted {
		return nil
	}
	d.halted = true
	var errs []error
	if d.bl != nil {
		if err := d.bl.Out(gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("tft: %s: backlight: %w", d.profile.Name, err))
		}
	}
	if d.state == Ready {
		if err := d.command(DISPOFF); err != nil {
			errs = append(errs, err)
		}
	}
	d.state = Uninit
	return errors.Join(errs...)
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("tft.Dev{%s, %dx%d}", d.profile.Name, d.rect.Dx(), d.rect.Dy())
}

var _ display.Drawer = &Dev{}
