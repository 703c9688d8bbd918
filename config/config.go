// Package config loads the desk configuration: pin assignments, panel
// profiles, touch calibration, loop timing and the MQTT broker.
//
// The file is JSON. Missing fields keep their defaults, so a file only
// needs to hold what differs from Default.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/BOTO145/and-desk/tft"
	"github.com/BOTO145/and-desk/xpt2046"
)

// FileName is the name of the configuration file under the user config
// directory.
const FileName = "config.json"

// Duration is a time.Duration written as a string such as "300ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Frequency is a physic.Frequency written as a string such as "40MHz".
type Frequency physic.Frequency

func (f Frequency) MarshalJSON() ([]byte, error) {
	return json.Marshal(physic.Frequency(f).String())
}

func (f *Frequency) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	var v physic.Frequency
	if err := v.Set(s); err != nil {
		return err
	}
	*f = Frequency(v)
	return nil
}

// Panel is one display on the shared bus.
type Panel struct {
	Profile string `json:"profile"` // "ili9341" or "st7735"
	CS      string `json:"cs"`
	DC      string `json:"dc"`
	RST     string `json:"rst,omitempty"`
	BL      string `json:"bl,omitempty"`

	// Optional overrides of the profile.
	Speed       Frequency `json:"speed,omitempty"`
	Orientation *byte     `json:"orientation,omitempty"`
}

// Resolve returns the panel profile with overrides applied.
func (p Panel) Resolve() (tft.Profile, error) {
	prof, err := tft.ByName(p.Profile)
	if err != nil {
		return tft.Profile{}, err
	}
	if p.Speed != 0 {
		prof.Speed = physic.Frequency(p.Speed)
	}
	if p.Orientation != nil {
		o := tft.Orientation(*p.Orientation)
		if o.Landscape() != prof.Orientation.Landscape() {
			prof.W, prof.H = prof.H, prof.W
		}
		prof.Orientation = o
	}
	return prof, prof.Validate()
}

func (p Panel) validate(name string) error {
	if p.CS == "" || p.DC == "" {
		return fmt.Errorf("config: %s: cs and dc pins are required", name)
	}
	if _, err := p.Resolve(); err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	return nil
}

// Touch is the touch controller.
type Touch struct {
	Enabled       bool                `json:"enabled"`
	CS            string              `json:"cs"`
	IRQ           string              `json:"irq"`
	IRQActiveHigh bool                `json:"irq_active_high,omitempty"`
	Speed         Frequency           `json:"speed,omitempty"`
	Samples       int                 `json:"samples,omitempty"`
	Calibration   xpt2046.Calibration `json:"calibration"`
}

// Loop is the frame scheduler timing.
type Loop struct {
	FrameRate         Frequency `json:"frame_rate"`
	SecondaryInterval Duration  `json:"secondary_interval"`
	FocusTick         Duration  `json:"focus_tick"`
	Debounce          Duration  `json:"debounce"`
}

// MQTT is the stats broker. An empty broker disables the feed.
type MQTT struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Prefix   string `json:"prefix"`
}

// Config is the whole desk configuration.
type Config struct {
	SPI       string    `json:"spi"` // spireg port name, "" for the first one
	MaxSpeed  Frequency `json:"max_speed"`
	Primary   Panel     `json:"primary"`
	Secondary *Panel    `json:"secondary,omitempty"`
	Touch     Touch     `json:"touch"`
	Loop      Loop      `json:"loop"`
	MQTT      MQTT      `json:"mqtt"`
}

// Default returns the reference wiring: an ILI9341 with touch and an ST7735
// on SPI0 of a Raspberry Pi.
func Default() Config {
	return Config{
		MaxSpeed: Frequency(40 * physic.MegaHertz),
		Primary: Panel{
			Profile: "ili9341",
			CS:      "GPIO8",
			DC:      "GPIO25",
			RST:     "GPIO24",
			BL:      "GPIO18",
		},
		Secondary: &Panel{
			Profile: "st7735",
			CS:      "GPIO5",
			DC:      "GPIO23",
			RST:     "GPIO4",
		},
		Touch: Touch{
			Enabled:     true,
			CS:          "GPIO7",
			IRQ:         "GPIO17",
			Calibration: xpt2046.DefaultCalibration,
		},
		Loop: Loop{
			FrameRate:         Frequency(10 * physic.Hertz),
			SecondaryInterval: Duration(5 * time.Second),
			FocusTick:         Duration(time.Minute),
			Debounce:          Duration(300 * time.Millisecond),
		},
		MQTT: MQTT{
			ClientID: "anddesk",
			Prefix:   "anddesk",
		},
	}
}

// Path returns the default location of the configuration file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "anddesk", FileName), nil
}

// Load reads path over Default and validates the result. A missing file is
// not an error when allowMissing is set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path, creating the directory.
func Save(path string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Validate reports configuration faults.
func (c Config) Validate() error {
	if c.MaxSpeed <= 0 {
		return errors.New("config: max_speed must be positive")
	}
	if err := c.Primary.validate("primary"); err != nil {
		return err
	}
	if c.Secondary != nil {
		if err := c.Secondary.validate("secondary"); err != nil {
			return err
		}
	}
	if c.Touch.Enabled {
		if c.Touch.CS == "" || c.Touch.IRQ == "" {
			return errors.New("config: touch: cs and irq pins are required")
		}
		if err := c.Touch.Calibration.Validate(); err != nil {
			return fmt.Errorf("config: touch: %w", err)
		}
	}
	if c.Loop.FrameRate <= 0 || c.Loop.SecondaryInterval <= 0 || c.Loop.FocusTick <= 0 || c.Loop.Debounce < 0 {
		return errors.New("config: loop: rates and intervals must be positive")
	}

	// Every line drives exactly one function.
	used := map[string]string{}
	claim := func(pin, what string) error {
		if pin == "" {
			return nil
		}
		if prev, ok := used[pin]; ok {
			return fmt.Errorf("config: %s is used by both %s and %s", pin, prev, what)
		}
		used[pin] = what
		return nil
	}
	claims := [][2]string{
		{c.Primary.CS, "primary.cs"}, {c.Primary.DC, "primary.dc"},
		{c.Primary.RST, "primary.rst"}, {c.Primary.BL, "primary.bl"},
	}
	if c.Secondary != nil {
		claims = append(claims,
			[2]string{c.Secondary.CS, "secondary.cs"}, [2]string{c.Secondary.DC, "secondary.dc"},
			[2]string{c.Secondary.RST, "secondary.rst"}, [2]string{c.Secondary.BL, "secondary.bl"})
	}
	if c.Touch.Enabled {
		claims = append(claims, [2]string{c.Touch.CS, "touch.cs"}, [2]string{c.Touch.IRQ, "touch.irq"})
	}
	for _, cl := range claims {
		if err := claim(cl[0], cl[1]); err != nil {
			return err
		}
	}
	return nil
}
