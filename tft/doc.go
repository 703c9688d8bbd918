// Package tft drives ILI9341 and ST7735 color TFT panels sharing an SPI bus.
//
// Both controllers speak the same MIPI-DBI command set: a register byte sent
// with the data/command line low, followed by its parameters with the line
// high. A panel is described by a Profile, a declarative table of registers
// replayed verbatim at start-up. This driver implements the display.Drawer
// interface from periph.io.
//
// # Display Characteristics
//
// - 16-bit RGB565 color, streamed high byte first
// - ILI9341: 320×240 in landscape, clocked at 40MHz
// - ST7735: 160×128 in landscape, clocked at 15MHz
// - Frames of any size are resampled to the panel
// - Display inversion
// - Optional PWM backlight
//
// # Hardware Connection
//
// All panels share the SPI clock and data lines. Chip-select is driven by a
// GPIO per panel, not by the SPI controller:
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	SCK         → SPI Clock (SCLK)
//	SDI/MOSI    → SPI Data (MOSI)
//	SDO/MISO    → SPI Data (MISO), ILI9341 only, shared with the touch controller
//	DC/RS       → GPIO (any available pin)
//	CS          → GPIO (one per panel)
//	RESET       → Optional: GPIO for hardware reset
//	LED         → Optional: GPIO for the backlight
//
// # Basic Usage
//
//	package main
//
//	import (
//		"image"
//		"image/color"
//		"image/draw"
//
//		"github.com/BOTO145/and-desk/spibus"
//		"github.com/BOTO145/and-desk/tft"
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/conn/v3/spi/spireg"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		// Initialize periph.io
//		host.Init()
//
//		// Open SPI bus and share it
//		port, _ := spireg.Open("")
//		bus, _ := spibus.New(port, nil)
//		defer bus.Close()
//
//		// Attach the panel with its chip-select and data/command lines
//		lcd, _ := bus.Attach("ili9341", gpioreg.ByName("GPIO8"), gpioreg.ByName("GPIO25"))
//
//		dev, _ := tft.New(bus, lcd, &tft.Opts{
//			Profile: tft.ILI9341(),
//			RST:     gpioreg.ByName("GPIO24"),
//		})
//		defer dev.Halt()
//		dev.Init()
//
//		// Paint the whole panel red
//		img := image.NewRGBA(dev.Bounds())
//		draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 255, A: 255}), image.Point{}, draw.Src)
//		dev.Push(img)
//	}
//
// # Lifecycle
//
// A panel starts Uninit. Init pulses the reset line (100ms low, 100ms high),
// then replays the profile's table, honoring the delay after each register,
// and leaves the panel Ready. Push and Draw fail with ErrNotReady in any
// other state.
//
// Any failure on the bus abandons the transfer and returns the panel to
// Uninit: the glass keeps showing its last frame until Init runs again.
//
// # Orientation
//
// The MADCTL register selects the scan direction and color order. Profiles
// reserve a slot for it in their table, filled from Profile.Orientation, so
// a panel mounted differently only needs another byte:
//
//	p := tft.ILI9341()
//	p.Orientation = tft.MV | tft.BGR // landscape, connector on the left
//
// # Pushing Frames
//
// Push writes a whole frame: it programs the column (CASET) and row (RASET)
// window over the full panel, opens memory write (RAMWR) and streams W×H×2
// bytes in one chip-select bracket, split by the bus arbiter into chunks the
// SPI driver accepts. A frame whose size differs from the panel is resampled
// with golang.org/x/image/draw, nearest-neighbor by default.
//
// Draw updates a sub-rectangle without resampling, for callers that track
// damaged regions themselves.
//
// # Datasheets
//
// https://cdn-shop.adafruit.com/datasheets/ILI9341.pdf
// https://www.displayfuture.com/Display/datasheet/controller/ST7735.pdf
//
// # Compatibility with periph.io
//
// Dev implements display.Drawer and can be used with any periph.io tool or
// library expecting one.
package tft
