package image565

import (
	"image"
	"image/color"
	"math/bits"

	"tinygo.org/x/drivers/pixel"
)

// RGB565 is a packed 16-bit color: 5 bits red, 6 bits green, 5 bits blue,
// most significant first.
type RGB565 uint16

// NewRGB565 packs 8-bit channels, truncating the low bits.
func NewRGB565(r, g, b uint8) RGB565 {
	return fromWire(pixel.NewRGB565BE(r, g, b))
}

// RGBA converts the color to standard RGBA. Channels are expanded so that
// full intensity maps back to 0xFFFF.
func (c RGB565) RGBA() (r, g, b, a uint32) {
	return c.wire().RGBA().RGBA()
}

// wire returns the value in the byte order stored in the pixel buffer.
func (c RGB565) wire() pixel.RGB565BE {
	return pixel.RGB565BE(bits.ReverseBytes16(uint16(c)))
}

func fromWire(c pixel.RGB565BE) RGB565 {
	return RGB565(bits.ReverseBytes16(uint16(c)))
}

func toRGB565(c color.Color) color.Color {
	if v, ok := c.(RGB565); ok {
		return v
	}
	r, g, b, _ := c.RGBA()
	return NewRGB565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Model converts colors to RGB565. Alpha is ignored.
var Model = color.ModelFunc(toRGB565)

// Image is an RGB565 image laid out row by row, high byte first, ready to be
// streamed to the panel.
type Image struct {
	Rect image.Rectangle // Image bounds
	buf  pixel.Image[pixel.RGB565BE]
}

// New creates a new black Image with the specified bounds.
func New(r image.Rectangle) *Image {
	if r.Empty() {
		return &Image{Rect: r}
	}
	return &Image{
		Rect: r,
		buf:  pixel.NewImage[pixel.RGB565BE](r.Dx(), r.Dy()),
	}
}

// ColorModel returns the color model of the image.
func (p *Image) ColorModel() color.Model {
	return Model
}

// Bounds returns the image bounds.
func (p *Image) Bounds() image.Rectangle {
	return p.Rect
}

// Opaque reports whether the image is fully opaque, which RGB565 always is.
func (p *Image) Opaque() bool {
	return true
}

// At returns the color of the pixel at (x, y).
// It implements the image.Image interface.
func (p *Image) At(x, y int) color.Color {
	return p.RGB565At(x, y)
}

// RGB565At returns the packed color of the pixel at (x, y).
func (p *Image) RGB565At(x, y int) RGB565 {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return 0
	}
	return fromWire(p.buf.Get(x-p.Rect.Min.X, y-p.Rect.Min.Y))
}

// Set sets the color of the pixel at (x, y).
func (p *Image) Set(x, y int, c color.Color) {
	p.SetRGB565(x, y, Model.Convert(c).(RGB565))
}

// SetRGB565 sets the packed color of the pixel at (x, y).
// This is faster than Set() as it doesn't require color conversion.
func (p *Image) SetRGB565(x, y int, c RGB565) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	p.buf.Set(x-p.Rect.Min.X, y-p.Rect.Min.Y, c.wire())
}

// SetRGB sets the pixel at (x, y) from 8-bit channels.
func (p *Image) SetRGB(x, y int, r, g, b uint8) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	p.buf.Set(x-p.Rect.Min.X, y-p.Rect.Min.Y, pixel.NewRGB565BE(r, g, b))
}

// Fill paints every pixel with c.
func (p *Image) Fill(c RGB565) {
	if p.Rect.Empty() {
		return
	}
	p.buf.FillSolidColor(c.wire())
}

// Pix returns the packed pixel bytes, 2 per pixel, rows top to bottom.
//
// The slice aliases the image: it changes with the next Set.
func (p *Image) Pix() []byte {
	if p.Rect.Empty() {
		return nil
	}
	return p.buf.RawBuffer()
}

// Stride returns the number of bytes per row.
func (p *Image) Stride() int {
	return 2 * p.Rect.Dx()
}
