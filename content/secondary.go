package content

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freemono"
	"tinygo.org/x/tinyfont/proggy"

	"github.com/BOTO145/and-desk/scheduler"
)

// canvas lets tinyfont draw into an image.RGBA.
type canvas struct {
	*image.RGBA
}

var _ drivers.Displayer = canvas{}

func (c canvas) Size() (x, y int16) {
	b := c.Bounds()
	return int16(b.Dx()), int16(b.Dy())
}

func (c canvas) SetPixel(x, y int16, col color.RGBA) {
	c.SetRGBA(int(x), int(y), col)
}

func (c canvas) Display() error { return nil }

// Secondary draws the status widget: clock, date and deck health.
func (r *Renderer) Secondary(s scheduler.Snapshot) (image.Image, error) {
	w, h := s.Size.X, s.Size.Y
	if w <= 0 || h <= 0 || w > math.MaxInt16 || h > math.MaxInt16 {
		return nil, fmt.Errorf("content: invalid frame size %v", s.Size)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), r.Theme.Background)
	cv := canvas{img}
	t := r.Theme

	tinyfont.WriteLine(cv, &freemono.Regular9pt7b, 6, 20, s.Time, t.Text)
	tinyfont.WriteLine(cv, &proggy.TinySZ8pt7b, 6, 36, s.Date, t.Dim)

	d := s.Stats.Deck
	status, c := "deck offline", t.Bad
	if d.Online {
		status, c = "deck online", t.Good
	}
	tinyfont.WriteLine(cv, &proggy.TinySZ8pt7b, 6, 56, status, c)
	if d.Online {
		bar(img, 6, 64, w-12, "CPU", d.CPU, t)
		bar(img, 6, 80, w-12, "RAM", d.RAM, t)
		tinyfont.WriteLine(cv, &proggy.TinySZ8pt7b, 6, 106, fmt.Sprintf("%.0f C", d.TempC), t.Text)
	}
	if s.Router.FocusActive {
		tinyfont.WriteLine(cv, &proggy.TinySZ8pt7b, int16(w/2), 106,
			fmt.Sprintf("focus %dm", s.Router.FocusRemaining()), t.Accent)
	}
	return img, nil
}

// bar draws a labelled percentage gauge 10 pixels high.
func bar(img *image.RGBA, x, y, w int, label string, pct float64, t Theme) {
	tinyfont.WriteLine(canvas{img}, &proggy.TinySZ8pt7b, int16(x), int16(y+8), label, t.Dim)
	x0 := x + 28
	full := image.Rect(x0, y, x+w, y+10)
	fill(img, full, t.Bar)
	pct = math.Max(0, math.Min(pct, 100))
	fill(img, image.Rect(x0, y, x0+int(float64(full.Dx())*pct/100), y+10), t.Accent)
}

// angleFrac returns the clockwise angle of (dx, dy) from twelve o'clock as a
// fraction of a turn, in [0, 1). Screen y grows downwards.
func angleFrac(dx, dy int) float64 {
	a := math.Atan2(float64(dx), float64(-dy))
	if a < 0 {
		a += 2 * math.Pi
	}
	return a / (2 * math.Pi)
}
