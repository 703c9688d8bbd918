package anddesk

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/BOTO145/and-desk/config"
	"github.com/BOTO145/and-desk/scheduler"
	"github.com/BOTO145/and-desk/spibus"
	"github.com/BOTO145/and-desk/tft"
	"github.com/BOTO145/and-desk/xpt2046"
)

// PinFunc resolves a GPIO line by name. gpioreg.ByName is one.
type PinFunc func(name string) gpio.PinIO

// Desk is the hardware of the desk: both panels and the touch controller
// on one SPI bus.
type Desk struct {
	Bus       *spibus.Arbiter
	Primary   *tft.Dev
	Secondary *tft.Dev     // nil when not configured
	Touch     *xpt2046.Dev // nil when disabled
}

// Open initializes the host drivers and builds the desk from cfg.
func Open(cfg config.Config) (*Desk, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("anddesk: failed to initialize periph: %w", err)
	}
	port, err := spireg.Open(cfg.SPI)
	if err != nil {
		return nil, fmt.Errorf("anddesk: failed to open SPI port %q: %w", cfg.SPI, err)
	}
	d, err := New(port, gpioreg.ByName, cfg)
	if err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

// New builds the desk on port. Nothing is sent to the panels until they are
// initialized. On error, port is left open.
func New(port spi.PortCloser, pins PinFunc, cfg config.Config) (*Desk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bus, err := spibus.New(port, &spibus.Opts{MaxSpeed: physic.Frequency(cfg.MaxSpeed)})
	if err != nil {
		return nil, err
	}
	d := &Desk{Bus: bus}

	if d.Primary, err = panel(bus, pins, "primary", cfg.Primary); err != nil {
		return nil, err
	}
	if cfg.Secondary != nil {
		if d.Secondary, err = panel(bus, pins, "secondary", *cfg.Secondary); err != nil {
			return nil, err
		}
	}
	if cfg.Touch.Enabled {
		if d.Touch, err = touch(bus, pins, cfg.Touch, d.Primary.Bounds().Dx(), d.Primary.Bounds().Dy()); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func lookup(pins PinFunc, role, name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	p := pins(name)
	if p == nil {
		return nil, fmt.Errorf("anddesk: %s: GPIO pin %s not found", role, name)
	}
	return p, nil
}

func panel(bus *spibus.Arbiter, pins PinFunc, role string, pc config.Panel) (*tft.Dev, error) {
	prof, err := pc.Resolve()
	if err != nil {
		return nil, err
	}
	cs, err := lookup(pins, role+".cs", pc.CS)
	if err != nil {
		return nil, err
	}
	dc, err := lookup(pins, role+".dc", pc.DC)
	if err != nil {
		return nil, err
	}
	t, err := bus.Attach(role, cs, dc)
	if err != nil {
		return nil, err
	}
	opts := &tft.Opts{Profile: prof}
	// Optional lines stay nil interfaces when absent.
	if pc.RST != "" {
		if opts.RST, err = lookup(pins, role+".rst", pc.RST); err != nil {
			return nil, err
		}
	}
	if pc.BL != "" {
		if opts.BL, err = lookup(pins, role+".bl", pc.BL); err != nil {
			return nil, err
		}
	}
	dev, err := tft.New(bus, t, opts)
	if err != nil {
		return nil, err
	}
	if opts.BL != nil {
		// Full brightness from start-up.
		if err := dev.SetBrightness(gpio.DutyMax); err != nil {
			return nil, fmt.Errorf("anddesk: %s: %w", role, err)
		}
	}
	return dev, nil
}

func touch(bus *spibus.Arbiter, pins PinFunc, tc config.Touch, w, h int) (*xpt2046.Dev, error) {
	cs, err := lookup(pins, "touch.cs", tc.CS)
	if err != nil {
		return nil, err
	}
	irq, err := lookup(pins, "touch.irq", tc.IRQ)
	if err != nil {
		return nil, err
	}
	t, err := bus.Attach("touch", cs, nil)
	if err != nil {
		return nil, err
	}
	return xpt2046.New(bus, t, irq, &xpt2046.Opts{
		W:             w,
		H:             h,
		Calibration:   tc.Calibration,
		Speed:         physic.Frequency(tc.Speed),
		Samples:       tc.Samples,
		IRQActiveHigh: tc.IRQActiveHigh,
	})
}

// Panels returns the panels as the scheduler sees them. secondary is nil
// when not configured.
func (d *Desk) Panels() (primary, secondary scheduler.Panel) {
	primary = d.Primary
	if d.Secondary != nil {
		secondary = d.Secondary
	}
	return primary, secondary
}

// TouchSource returns the touch controller, or nil when disabled.
func (d *Desk) TouchSource() scheduler.TouchSource {
	if d.Touch == nil {
		return nil
	}
	return d.Touch
}

// Close turns the panels off, releases every chip-select line and closes
// the SPI port.
func (d *Desk) Close() error {
	var errs []error
	for _, p := range []*tft.Dev{d.Primary, d.Secondary} {
		if p != nil {
			if err := p.Halt(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := d.Bus.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Desk) String() string {
	return fmt.Sprintf("anddesk.Desk{%s, %s, %s, %s}", d.Bus, d.Primary, d.Secondary, d.Touch)
}
