// Package anddesk drives a desk dashboard made of two SPI TFT panels and a
// resistive touch screen sharing one SPI bus.
//
// The primary panel is a 320×240 ILI9341 with an XPT2046 touch controller;
// the secondary panel is a 160×128 ST7735 showing a status widget. Both
// panels implement display.Drawer from periph.io and take ordinary
// image.Image frames, converted to 16-bit RGB565 on the way out.
//
// # Packages
//
//	spibus     serializes every transfer on the shared bus
//	tft        generic panel driver, one instance per panel profile
//	xpt2046    touch sampling, filtering and calibration
//	router     screen state machine and hit-regions
//	scheduler  the control loop
//	content    default screens
//	stats      data shown on the screens, fed over MQTT
//	config     pin assignments and timing
//	termsim    runs the desk in a terminal
//
// # Hardware Connection
//
// The reference wiring on a Raspberry Pi, SPI0 with chip-select driven as
// plain GPIO:
//
//	Signal           Raspberry Pi
//	SCLK             GPIO11 (SPI0 CLK)
//	MOSI             GPIO10 (SPI0 MOSI)
//	MISO             GPIO9  (SPI0 MISO, touch only)
//	ILI9341 CS       GPIO8
//	ILI9341 DC       GPIO25
//	ILI9341 RST      GPIO24
//	ILI9341 LED      GPIO18 (PWM)
//	ST7735 CS        GPIO5
//	ST7735 DC        GPIO23
//	ST7735 RST       GPIO4
//	XPT2046 CS       GPIO7
//	XPT2046 IRQ      GPIO17
//
// Other pins are set in the configuration file, see package config.
//
// # Basic Usage
//
//	cfg, err := config.Load(path, true)
//	if err != nil {
//		log.Fatal(err)
//	}
//	d, err := anddesk.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//
//	primary, secondary := d.Panels()
//	s, err := scheduler.New(primary, secondary, d.TouchSource(), content.New(content.DefaultTheme), nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(s.Run(ctx))
//
// # Bus Sharing
//
// All three devices share SCLK, MOSI and MISO. The panels run at different
// clock speeds (40MHz and 15MHz) and the touch controller at 1MHz; the
// arbiter switches the clock before asserting a chip-select and never
// leaves two chip-select lines low at once.
//
// # Failure Handling
//
// A failed transfer is returned to the caller and never retried. The
// scheduler then stops pushing to that panel, which keeps showing its last
// frame, until it is initialized again. The other panel and touch input
// keep working.
package anddesk
