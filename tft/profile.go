package tft

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Registers shared by the ILI9341 and ST7735 command sets.
const (
	SWRESET = 0x01 // Software reset
	SLPOUT  = 0x11 // Sleep out
	NORON   = 0x13 // Normal display mode on
	GAMSET  = 0x26 // Gamma curve select
	INVOFF  = 0x20 // Display inversion off
	INVON   = 0x21 // Display inversion on
	DISPOFF = 0x28 // Display off
	DISPON  = 0x29 // Display on
	CASET   = 0x2A // Column address set
	RASET   = 0x2B // Row address set
	RAMWR   = 0x2C // Memory write
	MADCTL  = 0x36 // Memory access control
	COLMOD  = 0x3A // Interface pixel format
)

// Orientation is the MADCTL byte: scan direction and color order.
type Orientation byte

// MADCTL bits.
const (
	MY  Orientation = 0x80 // Row address order
	MX  Orientation = 0x40 // Column address order
	MV  Orientation = 0x20 // Row/column exchange
	ML  Orientation = 0x10 // Vertical refresh order
	BGR Orientation = 0x08 // Blue-green-red color filter
	MH  Orientation = 0x04 // Horizontal refresh order
)

// Landscape reports whether rows and columns are exchanged.
func (o Orientation) Landscape() bool {
	return o&MV != 0
}

// Step is one entry of an initialization table: a register, its payload and
// the time to wait once it was sent.
//
// A step for MADCTL with a nil payload is filled with the profile's
// Orientation when the table is replayed.
type Step struct {
	Cmd   byte
	Data  []byte
	Delay time.Duration
}

// Profile describes one panel model in one orientation.
type Profile struct {
	Name        string
	W, H        int              // Visible area in pixels, as oriented
	Speed       physic.Frequency // SPI clock used for every transfer
	Orientation Orientation
	Init        []Step
}

// maxDim is the largest address the 16-bit window registers can hold.
const maxDim = 1 << 15

// Validate reports configuration errors in the profile.
func (p *Profile) Validate() error {
	if p.W <= 0 || p.H <= 0 || p.W > maxDim || p.H > maxDim {
		return fmt.Errorf("tft: %s: invalid size %dx%d", p.Name, p.W, p.H)
	}
	if p.Speed <= 0 {
		return fmt.Errorf("tft: %s: speed must be positive", p.Name)
	}
	if len(p.Init) == 0 {
		return fmt.Errorf("tft: %s: empty initialization table", p.Name)
	}
	slots := 0
	for _, s := range p.Init {
		if s.Delay < 0 {
			return fmt.Errorf("tft: %s: negative delay after 0x%02X", p.Name, s.Cmd)
		}
		if s.Cmd == MADCTL && s.Data == nil {
			slots++
		}
	}
	if slots != 1 {
		return errors.New("tft: " + p.Name + ": initialization table needs exactly one MADCTL slot")
	}
	return nil
}

// sequence returns the table with the orientation slot filled in.
func (p Profile) sequence() []Step {
	out := make([]Step, len(p.Init))
	copy(out, p.Init)
	for i := range out {
		if out[i].Cmd == MADCTL && out[i].Data == nil {
			out[i].Data = []byte{byte(p.Orientation)}
		}
	}
	return out
}

// clone returns a deep copy so that the driver owns its table.
func (p Profile) clone() Profile {
	init := make([]Step, len(p.Init))
	for i, s := range p.Init {
		init[i] = s
		if s.Data != nil {
			init[i].Data = append([]byte{}, s.Data...)
		}
	}
	p.Init = init
	return p
}

// ILI9341 returns the profile of a 320x240 ILI9341 panel in landscape,
// connector on the right.
func ILI9341() Profile {
	return Profile{
		Name:        "ILI9341",
		W:           320,
		H:           240,
		Speed:       40 * physic.MegaHertz,
		Orientation: MY | MV | MX | BGR,
		Init: []Step{
			{Cmd: SWRESET, Delay: 150 * time.Millisecond},
			{Cmd: SLPOUT, Delay: 120 * time.Millisecond},
			{Cmd: 0xCF, Data: []byte{0x00, 0x83, 0x30}},             // Power control B
			{Cmd: 0xED, Data: []byte{0x64, 0x03, 0x12, 0x81}},       // Power on sequence
			{Cmd: 0xE8, Data: []byte{0x85, 0x01, 0x79}},             // Driver timing A
			{Cmd: 0xCB, Data: []byte{0x39, 0x2C, 0x00, 0x34, 0x02}}, // Power control A
			{Cmd: 0xF7, Data: []byte{0x20}},                         // Pump ratio
			{Cmd: 0xEA, Data: []byte{0x00, 0x00}},                   // Driver timing B
			{Cmd: 0xC0, Data: []byte{0x26}},                         // Power control 1
			{Cmd: 0xC1, Data: []byte{0x11}},                         // Power control 2
			{Cmd: 0xC5, Data: []byte{0x35, 0x3E}},                   // VCOM control 1
			{Cmd: 0xC7, Data: []byte{0xBE}},                         // VCOM control 2
			{Cmd: MADCTL},
			{Cmd: COLMOD, Data: []byte{0x55}},       // 16 bits per pixel
			{Cmd: 0xB1, Data: []byte{0x00, 0x1B}},   // Frame rate 70Hz
			{Cmd: 0xF2, Data: []byte{0x08}},         // 3-gamma off
			{Cmd: GAMSET, Data: []byte{0x01}},       // Gamma curve 1
			{Cmd: 0xE0, Data: []byte{0x1F, 0x1A, 0x18, 0x0A, 0x0F, 0x06, 0x45, 0x87, 0x32, 0x0A, 0x07, 0x02, 0x07, 0x05, 0x00}},
			{Cmd: 0xE1, Data: []byte{0x00, 0x25, 0x27, 0x05, 0x10, 0x09, 0x3A, 0x78, 0x4D, 0x05, 0x18, 0x0D, 0x38, 0x3A, 0x1F}},
			{Cmd: DISPON, Delay: 50 * time.Millisecond},
		},
	}
}

// ST7735 returns the profile of a 160x128 ST7735 (red tab) panel in
// landscape.
func ST7735() Profile {
	return Profile{
		Name:        "ST7735",
		W:           160,
		H:           128,
		Speed:       15 * physic.MegaHertz,
		Orientation: MX | MV | BGR,
		Init: []Step{
			{Cmd: SWRESET, Delay: 150 * time.Millisecond},
			{Cmd: SLPOUT, Delay: 500 * time.Millisecond},
			{Cmd: 0xB1, Data: []byte{0x01, 0x2C, 0x2D}},       // Frame rate control
			{Cmd: 0xB4, Data: []byte{0x07}},                   // No inversion
			{Cmd: 0xC0, Data: []byte{0xA2, 0x02, 0x84}},       // Power control 1
			{Cmd: 0xC1, Data: []byte{0xC5}},                   // Power control 2
			{Cmd: 0xC2, Data: []byte{0x0A, 0x00}},             // Power control 3
			{Cmd: 0xC5, Data: []byte{0x8A, 0x2A}},             // VCOM
			{Cmd: COLMOD, Data: []byte{0x05}},                 // 16 bits per pixel
			{Cmd: MADCTL},
			{Cmd: 0xE0, Data: []byte{0x02, 0x1C, 0x07, 0x12, 0x37, 0x32, 0x29, 0x2D, 0x29, 0x25, 0x2B, 0x39, 0x00, 0x01, 0x03, 0x10}},
			{Cmd: 0xE1, Data: []byte{0x03, 0x1D, 0x07, 0x06, 0x2E, 0x2C, 0x29, 0x2D, 0x2E, 0x2E, 0x37, 0x3F, 0x00, 0x00, 0x02, 0x10}},
			{Cmd: NORON, Delay: 10 * time.Millisecond},
			{Cmd: DISPON, Delay: 100 * time.Millisecond},
		},
	}
}

// ByName returns a built-in profile.
func ByName(name string) (Profile, error) {
	switch name {
	case "ili9341", "ILI9341":
		return ILI9341(), nil
	case "st7735", "ST7735":
		return ST7735(), nil
	}
	return Profile{}, fmt.Errorf("tft: unknown panel %q", name)
}
