package termsim

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func newSim(t *testing.T, w, h int) *Sim {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	s, err := New(screen)
	if err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(w, h)
	t.Cleanup(s.Close)
	return s
}

func readLine(s tcell.Screen, x, y, width int) string {
	runes := make([]rune, width)
	for i := range runes {
		ch, _, _, _ := s.GetContent(x+i, y)
		if ch == 0 {
			ch = ' '
		}
		runes[i] = ch
	}
	return strings.TrimRight(string(runes), " ")
}

func TestAddPanel(t *testing.T) {
	s := newSim(t, 130, 40)
	p, err := s.AddPanel("ili9341", 320, 240, 0, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.Cells(), image.Rect(0, 0, 80, 30); got != want {
		t.Fatalf("Cells() = %v, want %v", got, want)
	}
	if got, want := p.Bounds(), image.Rect(0, 0, 320, 240); got != want {
		t.Fatalf("Bounds() = %v, want %v", got, want)
	}
	if got := p.String(); got != "termsim.ili9341" {
		t.Fatalf("String() = %q", got)
	}
	if _, err := s.AddPanel("bad", 0, 240, 0, 0, 4); err == nil {
		t.Fatal("expected error for empty panel")
	}
}

func TestPushHalfBlocks(t *testing.T) {
	s := newSim(t, 130, 40)
	p, _ := s.AddPanel("st7735", 160, 128, 82, 0, 4)

	frame := image.NewRGBA(image.Rect(0, 0, 160, 128))
	red := color.RGBA{0xFF, 0, 0, 0xFF}
	blue := color.RGBA{0, 0, 0xFF, 0xFF}
	draw.Draw(frame, image.Rect(0, 0, 160, 64), image.NewUniform(red), image.Point{}, draw.Src)
	draw.Draw(frame, image.Rect(0, 64, 160, 128), image.NewUniform(blue), image.Point{}, draw.Src)
	if err := p.Push(frame); err != nil {
		t.Fatal(err)
	}

	ch, _, style, _ := s.screen.GetContent(82, 0)
	fg, bg, _ := style.Decompose()
	if ch != upperHalf || fg != rgb(red) || bg != rgb(red) {
		t.Fatalf("top cell = %q fg=%v bg=%v", ch, fg, bg)
	}
	_, _, style, _ = s.screen.GetContent(82+39, 15)
	fg, bg, _ = style.Decompose()
	if fg != rgb(blue) || bg != rgb(blue) {
		t.Fatalf("bottom cell fg=%v bg=%v", fg, bg)
	}
	// Left of the panel is untouched.
	if ch, _, _, _ := s.screen.GetContent(81, 0); ch == upperHalf {
		t.Fatal("panel drew outside its cells")
	}
}

func TestInitBlanks(t *testing.T) {
	s := newSim(t, 90, 40)
	p, _ := s.AddPanel("ili9341", 320, 240, 0, 0, 4)
	white := image.NewRGBA(image.Rect(0, 0, 320, 240))
	draw.Draw(white, white.Bounds(), image.White, image.Point{}, draw.Src)
	p.Push(white)
	if err := p.Init(); err != nil {
		t.Fatal(err)
	}
	_, _, style, _ := s.screen.GetContent(10, 10)
	fg, bg, _ := style.Decompose()
	black := tcell.NewRGBColor(0, 0, 0)
	if fg != black || bg != black {
		t.Fatalf("cell after Init fg=%v bg=%v", fg, bg)
	}
}

func TestClickIsTouch(t *testing.T) {
	s := newSim(t, 130, 40)
	p, _ := s.AddPanel("ili9341", 320, 240, 0, 0, 4)
	touch := s.Touch(p)

	if _, ok, _ := touch.Sample(); ok {
		t.Fatal("touch without click")
	}

	s.handle(tcell.NewEventMouse(12, 15, tcell.ButtonNone, tcell.ModNone), p)
	if _, ok, _ := touch.Sample(); ok {
		t.Fatal("mouse motion reported as touch")
	}
	s.handle(tcell.NewEventMouse(100, 15, tcell.Button1, tcell.ModNone), p)
	if _, ok, _ := touch.Sample(); ok {
		t.Fatal("click outside the panel reported as touch")
	}

	s.handle(tcell.NewEventMouse(0, 0, tcell.Button1, tcell.ModNone), p)
	s.handle(tcell.NewEventMouse(12, 15, tcell.Button1, tcell.ModNone), p)
	pt, ok, err := touch.Sample()
	if err != nil || !ok {
		t.Fatalf("Sample() = %v, %v, %v", pt, ok, err)
	}
	// Only the latest click is kept, mapped to the cell center.
	if want := image.Pt(50, 124); pt != want {
		t.Fatalf("Sample() = %v, want %v", pt, want)
	}
	if _, ok, _ := touch.Sample(); ok {
		t.Fatal("click reported twice")
	}
}

func TestQuitKeys(t *testing.T) {
	for _, ev := range []*tcell.EventKey{
		tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone),
		tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone),
		tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl),
	} {
		s := newSim(t, 80, 25)
		s.handle(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone), nil)
		select {
		case <-s.Quit():
			t.Fatal("quit on x")
		default:
		}
		s.handle(ev, nil)
		s.handle(ev, nil)
		select {
		case <-s.Quit():
		default:
			t.Fatalf("no quit on %v", ev.Name())
		}
	}
}

func TestStatusLine(t *testing.T) {
	s := newSim(t, 20, 10)
	s.SetStatus("dashboard 09:30")
	if got := readLine(s.screen, 0, 9, 20); got != "dashboard 09:30" {
		t.Fatalf("status = %q", got)
	}
	s.SetStatus("a status line that is far too long")
	got := readLine(s.screen, 0, 9, 20)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 20 {
		t.Fatalf("truncated status = %q", got)
	}
	s.SetStatus("short")
	if got := readLine(s.screen, 0, 9, 20); got != "short" {
		t.Fatalf("status after shrink = %q", got)
	}
}

func TestPumpStopsOnClose(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	s, err := New(screen)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := s.AddPanel("ili9341", 320, 240, 0, 0, 4)
	done := make(chan struct{})
	go func() {
		s.Pump(p)
		close(done)
	}()
	screen.InjectMouse(1, 1, tcell.Button1, tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	<-s.Quit()
	s.Close()
	<-done
}
