// Package termsim shows the desk panels in a terminal, for running without
// hardware.
//
// Each panel is drawn with upper half block characters, two pixels per
// cell, downscaled by an integer factor. A left click on the primary panel
// is a touch.
package termsim

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"golang.org/x/image/draw"
)

const upperHalf = '▀'

// Sim owns the terminal screen.
type Sim struct {
	screen tcell.Screen

	mu     sync.Mutex
	panels []*Panel
	status string

	touches chan image.Point
	quit    chan struct{}
	once    sync.Once
}

// New takes over s. It initializes s and enables the mouse.
func New(s tcell.Screen) (*Sim, error) {
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("termsim: %w", err)
	}
	s.EnableMouse()
	s.HideCursor()
	s.Clear()
	return &Sim{
		screen:  s,
		touches: make(chan image.Point, 1),
		quit:    make(chan struct{}),
	}, nil
}

// Panel is a simulated display. It implements scheduler.Panel.
type Panel struct {
	sim    *Sim
	name   string
	bounds image.Rectangle
	origin image.Point // top left cell
	cols   int
	rows   int
	frame  *image.RGBA // cols × 2·rows
}

// AddPanel places a w×h panel with its top left cell at (x, y), shrunk by
// scale in both directions.
func (s *Sim) AddPanel(name string, w, h, x, y, scale int) (*Panel, error) {
	if w <= 0 || h <= 0 || scale <= 0 {
		return nil, fmt.Errorf("termsim: invalid panel %dx%d/%d", w, h, scale)
	}
	cols := max(w/scale, 1)
	rows := max(h/scale/2, 1)
	p := &Panel{
		sim:    s,
		name:   name,
		bounds: image.Rect(0, 0, w, h),
		origin: image.Pt(x, y),
		cols:   cols,
		rows:   rows,
		frame:  image.NewRGBA(image.Rect(0, 0, cols, rows*2)),
	}
	s.mu.Lock()
	s.panels = append(s.panels, p)
	s.mu.Unlock()
	return p, nil
}

// Cells returns the area p occupies, in cells.
func (p *Panel) Cells() image.Rectangle {
	return image.Rectangle{Min: p.origin, Max: p.origin.Add(image.Pt(p.cols, p.rows))}
}

func (p *Panel) String() string {
	return "termsim." + p.name
}

// Bounds returns the simulated panel size in pixels.
func (p *Panel) Bounds() image.Rectangle {
	return p.bounds
}

// Init blanks the panel.
func (p *Panel) Init() error {
	draw.Draw(p.frame, p.frame.Bounds(), image.Black, image.Point{}, draw.Src)
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.paint()
	p.sim.screen.Show()
	return nil
}

// Push draws frame, scaled to the panel cells.
func (p *Panel) Push(frame image.Image) error {
	draw.NearestNeighbor.Scale(p.frame, p.frame.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	p.sim.mu.Lock()
	defer p.sim.mu.Unlock()
	p.paint()
	p.sim.screen.Show()
	return nil
}

func (p *Panel) paint() {
	for row := 0; row < p.rows; row++ {
		for col := 0; col < p.cols; col++ {
			top := p.frame.RGBAAt(col, 2*row)
			bottom := p.frame.RGBAAt(col, 2*row+1)
			st := tcell.StyleDefault.Foreground(rgb(top)).Background(rgb(bottom))
			p.sim.screen.SetContent(p.origin.X+col, p.origin.Y+row, upperHalf, nil, st)
		}
	}
}

func rgb(c color.RGBA) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// pixel maps a cell of p to the pixel at its center.
func (p *Panel) pixel(x, y int) (image.Point, bool) {
	if !image.Pt(x, y).In(p.Cells()) {
		return image.Point{}, false
	}
	w, h := p.bounds.Dx(), p.bounds.Dy()
	cx, cy := x-p.origin.X, y-p.origin.Y
	return image.Pt((2*cx+1)*w/(2*p.cols), (2*cy+1)*h/(2*p.rows)), true
}

// SetStatus writes s on the last row of the terminal.
func (s *Sim) SetStatus(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = text
	w, h := s.screen.Size()
	if h == 0 {
		return
	}
	text = runewidth.Truncate(text, w, "…")
	x := 0
	for _, r := range text {
		s.screen.SetContent(x, h-1, r, nil, tcell.StyleDefault)
		x += runewidth.RuneWidth(r)
	}
	for ; x < w; x++ {
		s.screen.SetContent(x, h-1, ' ', nil, tcell.StyleDefault)
	}
	s.screen.Show()
}

// Touch returns a touch source fed by clicks on p.
func (s *Sim) Touch(p *Panel) *Touch {
	return &Touch{sim: s, panel: p}
}

// Touch implements scheduler.TouchSource.
type Touch struct {
	sim   *Sim
	panel *Panel
}

// Sample returns the last click, if any, without blocking.
func (t *Touch) Sample() (image.Point, bool, error) {
	select {
	case p := <-t.sim.touches:
		return p, true, nil
	default:
		return image.Point{}, false, nil
	}
}

// Quit is closed when the user asks to leave (q, Escape or Ctrl-C).
func (s *Sim) Quit() <-chan struct{} {
	return s.quit
}

// Pump reads terminal events until the screen is closed. touch is the panel
// clicks are reported for.
func (s *Sim) Pump(touch *Panel) {
	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			return
		}
		s.handle(ev, touch)
	}
}

func (s *Sim) handle(ev tcell.Event, touch *Panel) {
	switch ev := ev.(type) {
	case *tcell.EventMouse:
		if ev.Buttons()&tcell.Button1 == 0 || touch == nil {
			return
		}
		x, y := ev.Position()
		p, ok := touch.pixel(x, y)
		if !ok {
			return
		}
		// Keep the latest click only.
		select {
		case <-s.touches:
		default:
		}
		s.touches <- p
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			s.once.Do(func() { close(s.quit) })
		}
	case *tcell.EventResize:
		s.mu.Lock()
		s.screen.Sync()
		s.mu.Unlock()
	}
}

// Close restores the terminal.
func (s *Sim) Close() {
	s.screen.Fini()
}
