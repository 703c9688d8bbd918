// Package content draws the default desk screens.
//
// The primary panel gets one of the router screens, drawn with the x/image
// basic font. The secondary panel gets a small status widget drawn with
// tinyfont. Frames are plain *image.RGBA; the display drivers take care of
// the panel pixel format.
package content

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/BOTO145/and-desk/router"
	"github.com/BOTO145/and-desk/scheduler"
)

// Theme is the palette of the screens.
type Theme struct {
	Background color.RGBA
	Bar        color.RGBA
	Text       color.RGBA
	Dim        color.RGBA
	Accent     color.RGBA
	Good       color.RGBA
	Bad        color.RGBA
}

// DefaultTheme is a dark theme.
var DefaultTheme = Theme{
	Background: color.RGBA{0x10, 0x12, 0x18, 0xFF},
	Bar:        color.RGBA{0x22, 0x26, 0x30, 0xFF},
	Text:       color.RGBA{0xF0, 0xF0, 0xF0, 0xFF},
	Dim:        color.RGBA{0x90, 0x96, 0xA0, 0xFF},
	Accent:     color.RGBA{0x3C, 0x9C, 0xFF, 0xFF},
	Good:       color.RGBA{0x4C, 0xC8, 0x6A, 0xFF},
	Bad:        color.RGBA{0xE8, 0x4C, 0x3C, 0xFF},
}

var titles = map[router.ScreenID]string{
	router.Dashboard:  "Desk",
	router.Apps:       "Apps",
	router.Brief:      "Daily brief",
	router.Emails:     "Inbox",
	router.SystemCare: "System care",
	router.Focus:      "Focus",
}

// Renderer implements scheduler.Content.
type Renderer struct {
	Theme Theme
	face  font.Face // ASCII only
}

// New returns a renderer using theme.
func New(theme Theme) *Renderer {
	return &Renderer{Theme: theme, face: basicfont.Face7x13}
}

var _ scheduler.Content = &Renderer{}

// Primary draws the current router screen.
func (r *Renderer) Primary(s scheduler.Snapshot) (image.Image, []router.HitRegion, error) {
	w, h := s.Size.X, s.Size.Y
	if w <= 0 || h <= 0 {
		return nil, nil, fmt.Errorf("content: invalid frame size %v", s.Size)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), r.Theme.Background)

	screen := s.Router.Screen
	fill(img, image.Rect(0, 0, w, router.BarHeight), r.Theme.Bar)
	r.text(img, 6, 17, titles[screen], r.Theme.Text)
	r.textRight(img, w-6, 17, s.Time, r.Theme.Text)

	switch screen {
	case router.Dashboard:
		r.dashboard(img, s)
	case router.Apps:
		r.apps(img)
	case router.Brief:
		r.brief(img, s)
	case router.Emails:
		r.emails(img, s)
	case router.SystemCare:
		r.systemCare(img, s)
	case router.Focus:
		r.focus(img, s)
	default:
		return nil, nil, fmt.Errorf("content: no layout for screen %v", screen)
	}
	if screen != router.Dashboard {
		r.footer(img)
	}
	return img, router.DefaultRegions(screen, w, h), nil
}

func (r *Renderer) dashboard(img *image.RGBA, s scheduler.Snapshot) {
	t := r.Theme
	r.text(img, 14, 48, s.Date, t.Dim)
	wt := s.Stats.Weather
	if wt.Summary != "" {
		r.text(img, 14, 66, fmt.Sprintf("%.0fC %s", wt.TempC, wt.Summary), t.Text)
	}

	// The disk opens the apps grid; its filled share is the unread count.
	pie := router.PieRegion
	center := image.Pt((pie.X0+pie.X1)/2, (pie.Y0+pie.Y1)/2)
	radius := min(pie.X1-pie.X0, pie.Y1-pie.Y0) / 2
	disk(img, center, radius, t.Bar)
	share := float64(s.Stats.Unread) / 20
	ring(img, center, radius, min(share, 1), t.Accent)
	r.textCentered(img, center.X, center.Y+4, "Apps", t.Text)

	x := pie.X1 + 20
	r.machine(img, x, 100, "Deck", s.Stats.Deck.Online, s.Stats.Deck.CPU, s.Stats.Deck.TempC)
	r.machine(img, x, 136, "Server", s.Stats.Server.Online, s.Stats.Server.CPU, s.Stats.Server.TempC)
	if s.Router.FocusActive {
		r.text(img, x, 172, fmt.Sprintf("Focus: %d min left", s.Router.FocusRemaining()), t.Accent)
	}
	if s.Stats.Unread > 0 {
		r.text(img, x, 190, fmt.Sprintf("%d unread", s.Stats.Unread), t.Dim)
	}
}

func (r *Renderer) machine(img *image.RGBA, x, y int, name string, online bool, cpu, temp float64) {
	c, state := r.Theme.Bad, "offline"
	if online {
		c, state = r.Theme.Good, fmt.Sprintf("cpu %.0f%% %.0fC", cpu, temp)
	}
	fill(img, image.Rect(x, y-9, x+8, y-1), c)
	r.text(img, x+14, y, name, r.Theme.Text)
	r.text(img, x+14, y+14, state, r.Theme.Dim)
}

func (r *Renderer) apps(img *image.RGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for i, rc := range router.TileRects(w, h) {
		// TileRects are inclusive of their last pixel.
		rc.Max = rc.Max.Add(image.Pt(1, 1))
		fill(img, rc, r.Theme.Bar)
		outline(img, rc, r.Theme.Accent)
		mid := rc.Min.Add(rc.Size().Div(2))
		r.textCentered(img, mid.X, mid.Y+4, titles[router.AppTiles[i]], r.Theme.Text)
	}
}

func (r *Renderer) brief(img *image.RGBA, s scheduler.Snapshot) {
	y := r.lines(img, router.BarHeight+18, "Today", nil)
	var events []string
	for _, e := range s.Stats.Events {
		events = append(events, e.Time+"  "+e.Title)
	}
	y = r.lines(img, y, "", events)
	y = r.lines(img, y+6, "Reminders", s.Stats.Reminders)
	if s.Stats.Summary != "" {
		r.lines(img, y+6, "Summary", wrap(s.Stats.Summary, (img.Bounds().Dx()-20)/7))
	}
}

func (r *Renderer) emails(img *image.RGBA, s scheduler.Snapshot) {
	y := router.BarHeight + 18
	r.text(img, 10, y, fmt.Sprintf("%d unread", s.Stats.Unread), r.Theme.Dim)
	for _, e := range s.Stats.Emails {
		y += 30
		if y > img.Bounds().Dy()-router.FooterHeight-6 {
			break
		}
		c := r.Theme.Dim
		if e.Unread {
			c = r.Theme.Text
		}
		r.text(img, 10, y, e.From, c)
		r.text(img, 10, y+14, clip(e.Subject, (img.Bounds().Dx()-20)/7), r.Theme.Dim)
	}
}

func (r *Renderer) systemCare(img *image.RGBA, s scheduler.Snapshot) {
	t := r.Theme
	y := router.BarHeight + 24
	r.text(img, 10, y, fmt.Sprintf("Temp files: %d (%.1f MB)", s.Stats.TempFiles, s.Stats.TempFilesMB), t.Text)
	d := s.Stats.Deck
	r.text(img, 10, y+20, fmt.Sprintf("Disk: %.0f / %.0f GB", d.DiskUsed, d.DiskTotal), t.Text)
	r.text(img, 10, y+40, fmt.Sprintf("RAM %.0f%%  GPU %.0f%%", d.RAM, d.GPU), t.Text)
	if d.Uptime != "" {
		r.text(img, 10, y+60, "Up "+d.Uptime, t.Dim)
	}
	if s.Router.Cleaned {
		r.text(img, 10, y+100, "Cleaned.", t.Good)
	} else {
		r.text(img, 10, y+100, "Tap anywhere to clean up.", t.Accent)
	}
}

func (r *Renderer) focus(img *image.RGBA, s scheduler.Snapshot) {
	t := r.Theme
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cx, cy := w/2, (h+router.BarHeight-router.FooterHeight)/2
	st := s.Router
	if st.FocusActive {
		frac := float64(st.FocusElapsed) / float64(max(st.FocusSession, 1))
		disk(img, image.Pt(cx, cy), 60, t.Bar)
		ring(img, image.Pt(cx, cy), 60, frac, t.Accent)
		r.textCentered(img, cx, cy+4, fmt.Sprintf("%d min", st.FocusRemaining()), t.Text)
		if st.FocusApp != "" {
			r.textCentered(img, cx, cy+78, clip(st.FocusApp, 40), t.Dim)
		}
		return
	}
	msg := st.FocusMessage
	if msg == "" {
		msg = "No session running."
	}
	r.textCentered(img, cx, cy+4, msg, t.Text)
}

func (r *Renderer) footer(img *image.RGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	fill(img, image.Rect(0, h-router.FooterHeight, w, h), r.Theme.Bar)
	r.text(img, 6, h-5, "< Back", r.Theme.Text)
}

// lines draws an optional heading then one line per item, returning the
// baseline below the last one.
func (r *Renderer) lines(img *image.RGBA, y int, heading string, items []string) int {
	if heading != "" {
		r.text(img, 10, y, heading, r.Theme.Accent)
		y += 16
	}
	for _, it := range items {
		if y > img.Bounds().Dy()-router.FooterHeight-4 {
			break
		}
		r.text(img, 16, y, it, r.Theme.Text)
		y += 15
	}
	return y
}

func (r *Renderer) text(img *image.RGBA, x, y int, s string, c color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (r *Renderer) textRight(img *image.RGBA, x, y int, s string, c color.Color) {
	r.text(img, x-font.MeasureString(r.face, s).Round(), y, s, c)
}

func (r *Renderer) textCentered(img *image.RGBA, x, y int, s string, c color.Color) {
	r.text(img, x-font.MeasureString(r.face, s).Round()/2, y, s, c)
}

func fill(img draw.Image, rc image.Rectangle, c color.Color) {
	draw.Draw(img, rc, image.NewUniform(c), image.Point{}, draw.Src)
}

func outline(img *image.RGBA, rc image.Rectangle, c color.RGBA) {
	for x := rc.Min.X; x < rc.Max.X; x++ {
		img.SetRGBA(x, rc.Min.Y, c)
		img.SetRGBA(x, rc.Max.Y-1, c)
	}
	for y := rc.Min.Y; y < rc.Max.Y; y++ {
		img.SetRGBA(rc.Min.X, y, c)
		img.SetRGBA(rc.Max.X-1, y, c)
	}
}

func disk(img *image.RGBA, c image.Point, radius int, col color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(c.X+dx, c.Y+dy, col)
			}
		}
	}
}

// ring draws the outer band of a disk clockwise from twelve o'clock,
// covering frac of the circle.
func ring(img *image.RGBA, c image.Point, radius int, frac float64, col color.RGBA) {
	if frac <= 0 {
		return
	}
	inner := radius - 6
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := dx*dx + dy*dy
			if d2 > radius*radius || d2 < inner*inner {
				continue
			}
			if angleFrac(dx, dy) <= frac {
				img.SetRGBA(c.X+dx, c.Y+dy, col)
			}
		}
	}
}

func clip(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func wrap(s string, width int) []string {
	var out []string
	line := ""
	for _, word := range strings.Fields(s) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) <= width:
			line += " " + word
		default:
			out = append(out, line)
			line = word
		}
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}
