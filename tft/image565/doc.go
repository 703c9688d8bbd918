// Package image565 provides the 16-bit RGB565 image format streamed to
// ILI9341 and ST7735 display controllers.
//
// Each pixel is packed into two bytes, high byte first. Red keeps its top 5
// bits, green its top 6 bits and blue its top 5 bits.
//
// Memory layout example for a 2-pixel row:
//
//	Pixels: 0                 1
//	Colors: (255, 0, 0)       (0, 0, 255)
//	Values: 0xF800            0x001F
//	Bytes:  0xF8 0x00         0x00 0x1F
//
// This package provides:
//
// - RGB565: a color type holding the packed 16-bit value
// - Model: a color model for converting standard Go colors to RGB565
// - Image: an image.Image whose Pix slice can be sent to the panel as is
//
// Example usage:
//
//	// Create a 320x240 image
//	img := image565.New(image.Rect(0, 0, 320, 240))
//
//	// Paint it red
//	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 255, A: 255}), image.Point{}, draw.Src)
//
//	// Get a pixel
//	println(img.RGB565At(10, 20)) // Output: 63488 (0xF800)
package image565
