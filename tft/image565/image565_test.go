package image565

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestNewRGB565(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    RGB565
	}{
		{"black", 0, 0, 0, 0x0000},
		{"red", 255, 0, 0, 0xF800},
		{"green", 0, 255, 0, 0x07E0},
		{"blue", 0, 0, 255, 0x001F},
		{"white", 255, 255, 255, 0xFFFF},
		{"low bits dropped", 0x07, 0x03, 0x07, 0x0000},
		{"mid gray", 0x80, 0x80, 0x80, 0x8410},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRGB565(tt.r, tt.g, tt.b); got != tt.want {
				t.Errorf("NewRGB565(%d, %d, %d) = 0x%04X, want 0x%04X", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestRGB565RGBA(t *testing.T) {
	tests := []struct {
		name       string
		c          RGB565
		wr, wg, wb uint32
	}{
		{"black", 0x0000, 0, 0, 0},
		{"white", 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
		{"red", 0xF800, 0xFFFF, 0, 0},
		{"green", 0x07E0, 0, 0xFFFF, 0},
		{"blue", 0x001F, 0, 0, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b, a := tt.c.RGBA()
			if r != tt.wr || g != tt.wg || b != tt.wb || a != 0xFFFF {
				t.Errorf("RGBA() = (%x, %x, %x, %x), want (%x, %x, %x, ffff)", r, g, b, a, tt.wr, tt.wg, tt.wb)
			}
		})
	}
}

// Decoding an encoded color lands within the quantization step of each
// channel: 8 for red and blue, 4 for green.
func TestRoundTripPrecision(t *testing.T) {
	for v := 0; v < 256; v += 3 {
		c := uint8(v)
		got := color.RGBAModel.Convert(NewRGB565(c, c, c)).(color.RGBA)
		if diff(got.R, c) >= 8 || diff(got.B, c) >= 8 {
			t.Errorf("red/blue %d decoded to %d/%d", c, got.R, got.B)
		}
		if diff(got.G, c) >= 4 {
			t.Errorf("green %d decoded to %d", c, got.G)
		}
	}
}

func diff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func TestModelConvert(t *testing.T) {
	tests := []struct {
		name  string
		input color.Color
		want  RGB565
	}{
		{"passthrough", RGB565(0x1234), 0x1234},
		{"black", color.Black, 0x0000},
		{"white", color.White, 0xFFFF},
		{"rgba red", color.RGBA{0xFF, 0, 0, 0xFF}, 0xF800},
		{"gray16", color.Gray16{Y: 0xFFFF}, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Model.Convert(tt.input).(RGB565); got != tt.want {
				t.Errorf("Model.Convert(%v) = 0x%04X, want 0x%04X", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		rect       image.Rectangle
		wantStride int
		wantPixLen int
	}{
		{"320x240", image.Rect(0, 0, 320, 240), 640, 153600},
		{"160x128", image.Rect(0, 0, 160, 128), 320, 40960},
		{"4x1", image.Rect(0, 0, 4, 1), 8, 8},
		{"offset rect", image.Rect(10, 20, 13, 22), 6, 12},
		{"empty", image.Rectangle{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := New(tt.rect)
			if img.Bounds() != tt.rect {
				t.Errorf("Bounds() = %v, want %v", img.Bounds(), tt.rect)
			}
			if img.Stride() != tt.wantStride {
				t.Errorf("Stride() = %d, want %d", img.Stride(), tt.wantStride)
			}
			if len(img.Pix()) != tt.wantPixLen {
				t.Errorf("len(Pix()) = %d, want %d", len(img.Pix()), tt.wantPixLen)
			}
		})
	}
}

func TestPixLayout(t *testing.T) {
	img := New(image.Rect(0, 0, 4, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 0, 255})
	img.Set(2, 0, color.RGBA{0, 0, 255, 255})
	img.Set(3, 0, color.RGBA{255, 255, 255, 255})

	want := []byte{0xF8, 0x00, 0x07, 0xE0, 0x00, 0x1F, 0xFF, 0xFF}
	if got := img.Pix(); !bytes.Equal(got, want) {
		t.Errorf("Pix() = % X, want % X", got, want)
	}
}

func TestSetAndGet(t *testing.T) {
	img := New(image.Rect(10, 20, 14, 22))

	img.SetRGB565(11, 21, 0xABCD)
	if got := img.RGB565At(11, 21); got != 0xABCD {
		t.Errorf("RGB565At(11, 21) = 0x%04X, want 0xABCD", got)
	}
	// Row 1, column 1: offset (1*4 + 1) * 2.
	if got := img.Pix()[10:12]; !bytes.Equal(got, []byte{0xAB, 0xCD}) {
		t.Errorf("Pix()[10:12] = % X, want AB CD", got)
	}

	img.SetRGB(13, 20, 0, 0, 255)
	if got := img.RGB565At(13, 20); got != 0x001F {
		t.Errorf("RGB565At(13, 20) = 0x%04X, want 0x001F", got)
	}
}

func TestOutOfBounds(t *testing.T) {
	img := New(image.Rect(0, 0, 2, 2))

	// Must not panic.
	img.Set(-1, 0, color.White)
	img.SetRGB565(2, 0, 0xFFFF)
	img.SetRGB(0, 5, 255, 255, 255)

	if got := img.RGB565At(5, 5); got != 0 {
		t.Errorf("RGB565At out of bounds = 0x%04X, want 0", got)
	}
	for i, b := range img.Pix() {
		if b != 0 {
			t.Fatalf("Pix()[%d] = 0x%02X, out-of-bounds write leaked", i, b)
		}
	}
}

func TestFillAndDraw(t *testing.T) {
	img := New(image.Rect(0, 0, 3, 2))
	img.Fill(0x07E0)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if got := img.RGB565At(x, y); got != 0x07E0 {
				t.Fatalf("RGB565At(%d, %d) = 0x%04X after Fill", x, y, got)
			}
		}
	}

	draw.Draw(img, image.Rect(1, 0, 2, 2), image.NewUniform(color.RGBA{0, 0, 255, 255}), image.Point{}, draw.Src)
	if got := img.RGB565At(1, 1); got != 0x001F {
		t.Errorf("RGB565At(1, 1) = 0x%04X after draw, want 0x001F", got)
	}
	if got := img.RGB565At(0, 1); got != 0x07E0 {
		t.Errorf("RGB565At(0, 1) = 0x%04X, should be untouched", got)
	}
}

func TestImageInterface(t *testing.T) {
	var _ image.Image = &Image{}
	var _ draw.Image = &Image{}

	img := New(image.Rect(0, 0, 1, 1))
	if img.ColorModel() != Model {
		t.Error("ColorModel() did not return Model")
	}
	if !img.Opaque() {
		t.Error("Opaque() = false")
	}
}
