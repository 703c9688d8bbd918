package scheduler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jonboulle/clockwork"

	"github.com/BOTO145/and-desk/router"
	"github.com/BOTO145/and-desk/stats"
)

var t0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fakePanel struct {
	name    string
	bounds  image.Rectangle
	inits   int
	initErr error
	pushes  []image.Image
	pushErr error
	onPush  func()
}

func (p *fakePanel) String() string          { return p.name }
func (p *fakePanel) Bounds() image.Rectangle { return p.bounds }

func (p *fakePanel) Init() error {
	p.inits++
	return p.initErr
}

func (p *fakePanel) Push(frame image.Image) error {
	if p.onPush != nil {
		p.onPush()
	}
	if p.pushErr != nil {
		return p.pushErr
	}
	p.pushes = append(p.pushes, frame)
	return nil
}

type touch struct {
	p   image.Point
	ok  bool
	err error
}

type fakeTouch struct {
	queue []touch
	polls int
}

func (f *fakeTouch) Sample() (image.Point, bool, error) {
	f.polls++
	if len(f.queue) == 0 {
		return image.Point{}, false, nil
	}
	t := f.queue[0]
	f.queue = f.queue[1:]
	return t.p, t.ok, t.err
}

type fakeContent struct {
	primary      []Snapshot
	secondary    []Snapshot
	primaryErr   error
	secondaryErr error
	regions      []router.HitRegion
}

func (f *fakeContent) Primary(s Snapshot) (image.Image, []router.HitRegion, error) {
	f.primary = append(f.primary, s)
	if f.primaryErr != nil {
		return nil, nil, f.primaryErr
	}
	return image.NewUniform(color.White), f.regions, nil
}

func (f *fakeContent) Secondary(s Snapshot) (image.Image, error) {
	f.secondary = append(f.secondary, s)
	if f.secondaryErr != nil {
		return nil, f.secondaryErr
	}
	return image.NewUniform(color.Black), nil
}

type rig struct {
	s         *Scheduler
	clock     clockwork.FakeClock
	primary   *fakePanel
	secondary *fakePanel
	touch     *fakeTouch
	content   *fakeContent
	log       *bytes.Buffer
}

func newRig(c *qt.C, opts Opts) *rig {
	r := &rig{
		clock:     clockwork.NewFakeClockAt(t0),
		primary:   &fakePanel{name: "ili9341", bounds: image.Rect(0, 0, 320, 240)},
		secondary: &fakePanel{name: "st7735", bounds: image.Rect(0, 0, 160, 128)},
		touch:     &fakeTouch{},
		content:   &fakeContent{},
		log:       &bytes.Buffer{},
	}
	opts.Clock = r.clock
	opts.Logger = log.New(r.log, "", 0)
	s, err := New(r.primary, r.secondary, r.touch, r.content, &opts)
	c.Assert(err, qt.IsNil)
	r.s = s
	return r
}

func TestNewValidation(t *testing.T) {
	c := qt.New(t)
	p := &fakePanel{bounds: image.Rect(0, 0, 4, 1)}
	_, err := New(nil, nil, nil, &fakeContent{}, nil)
	c.Assert(err, qt.ErrorMatches, "scheduler: a primary panel is required")
	_, err = New(p, nil, nil, nil, nil)
	c.Assert(err, qt.ErrorMatches, "scheduler: content is required")
	_, err = New(p, nil, nil, &fakeContent{}, &Opts{Debounce: -time.Second})
	c.Assert(err, qt.ErrorMatches, "scheduler: rates and intervals must be positive")
	_, err = New(&fakePanel{}, nil, nil, &fakeContent{}, nil)
	c.Assert(err, qt.ErrorMatches, `scheduler: primary panel has empty bounds .*`)

	s, err := New(p, nil, nil, &fakeContent{}, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(s.budget, qt.Equals, 100*time.Millisecond)
	c.Assert(s.interval, qt.Equals, 5*time.Second)
	c.Assert(s.State().Screen, qt.Equals, router.Dashboard)
	c.Assert(s.State().Regions, qt.DeepEquals, []router.HitRegion{router.PieRegion})
}

func TestStepCadence(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})

	c.Assert(r.s.Step(), qt.Equals, 100*time.Millisecond)
	c.Assert(r.primary.pushes, qt.HasLen, 1)
	c.Assert(r.secondary.pushes, qt.HasLen, 1)

	// The secondary panel is refreshed every 5s, the primary every cycle.
	for i := 0; i < 49; i++ {
		r.clock.Advance(100 * time.Millisecond)
		r.s.Step()
	}
	c.Assert(r.primary.pushes, qt.HasLen, 50)
	c.Assert(r.secondary.pushes, qt.HasLen, 1)

	r.clock.Advance(100 * time.Millisecond)
	r.s.Step()
	c.Assert(r.primary.pushes, qt.HasLen, 51)
	c.Assert(r.secondary.pushes, qt.HasLen, 2)
	c.Assert(r.touch.polls, qt.Equals, 51)
}

func TestStepSnapshot(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{Stats: stats.NewStore(stats.Snapshot{Unread: 4})})
	r.s.Step()

	p := r.content.primary[0]
	c.Assert(p.Time, qt.Equals, "09:30")
	c.Assert(p.Date, qt.Equals, "Mon, 04 May 2026")
	c.Assert(p.Now, qt.Equals, t0)
	c.Assert(p.Size, qt.Equals, image.Pt(320, 240))
	c.Assert(p.Stats.Unread, qt.Equals, 4)
	c.Assert(p.Router.Screen, qt.Equals, router.Dashboard)
	c.Assert(r.content.secondary[0].Size, qt.Equals, image.Pt(160, 128))
}

func TestStepOverrunDoesNotSleep(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.primary.onPush = func() { r.clock.Advance(150 * time.Millisecond) }
	c.Assert(r.s.Step(), qt.Equals, time.Duration(0))

	r.primary.onPush = func() { r.clock.Advance(30 * time.Millisecond) }
	c.Assert(r.s.Step(), qt.Equals, 70*time.Millisecond)
}

func TestStepRoutesTouch(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.touch.queue = []touch{{p: image.Pt(50, 120), ok: true}}

	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Apps)
	// The frame drawn in the same cycle already shows the new screen.
	c.Assert(r.content.primary[0].Router.Screen, qt.Equals, router.Apps)
	// Regions of the new screen are in place for the next touch.
	c.Assert(r.s.State().Regions, qt.DeepEquals, router.DefaultRegions(router.Apps, 320, 240))
	c.Assert(r.log.String(), qt.Equals, "anddesk: screen dashboard -> apps\n")
}

func TestStepDebounce(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	// Second touch lands on the emails tile but too soon after the first.
	r.touch.queue = []touch{
		{p: image.Pt(50, 120), ok: true},
		{p: image.Pt(50, 60), ok: true},
		{p: image.Pt(50, 60), ok: true},
	}
	r.s.Step()
	r.clock.Advance(250 * time.Millisecond)
	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Apps)

	r.clock.Advance(100 * time.Millisecond)
	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Emails)
}

func TestStepTouchError(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.touch.queue = []touch{{err: errors.New("bus down")}}
	r.s.Step()
	c.Assert(r.primary.pushes, qt.HasLen, 1)
	c.Assert(r.log.String(), qt.Equals, "anddesk: touch: bus down\n")
}

func TestStepTouchErrorLoggedOnce(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	down := touch{err: errors.New("bus down")}
	r.touch.queue = []touch{down, down, down, {}}
	for i := 0; i < 4; i++ {
		r.s.Step()
		r.clock.Advance(100 * time.Millisecond)
	}
	c.Assert(r.touch.polls, qt.Equals, 4)
	c.Assert(r.log.String(), qt.Equals, "anddesk: touch: bus down\nanddesk: touch recovered\n")
}

func TestStepContentErrorKeepsRegions(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.content.primaryErr = errors.New("no font")

	// The new screen never renders, yet its back zone still works.
	r.touch.queue = []touch{{p: image.Pt(50, 120), ok: true}}
	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Apps)
	c.Assert(r.s.State().Regions, qt.DeepEquals, router.DefaultRegions(router.Apps, 320, 240))

	r.touch.queue = []touch{{p: image.Pt(20, 238), ok: true}}
	r.clock.Advance(time.Second)
	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Dashboard)
	c.Assert(r.primary.pushes, qt.HasLen, 0)
}

func TestStateConcurrentReads(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			st := r.s.State()
			if st.Screen != router.Dashboard && st.Screen != router.Apps {
				t.Errorf("unexpected screen %s", st.Screen)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		p := image.Pt(50, 120) // apps
		if i%2 == 1 {
			p = image.Pt(20, 238) // back
		}
		r.touch.queue = []touch{{p: p, ok: true}}
		r.s.Step()
		r.clock.Advance(time.Second)
	}
	close(done)
	wg.Wait()
	c.Assert(r.s.State().Screen, qt.Equals, router.Dashboard)
}

func TestStepContentRegions(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	custom := []router.HitRegion{{X0: 0, Y0: 0, X1: 10, Y1: 10, Target: router.Apps}}
	r.content.regions = custom
	r.s.Step()
	c.Assert(r.s.State().Regions, qt.DeepEquals, custom)

	r.touch.queue = []touch{{p: image.Pt(5, 5), ok: true}}
	r.clock.Advance(time.Second)
	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Apps)
}

func TestStepContentErrorSkipsPush(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.content.primaryErr = errors.New("no font")

	r.s.Step()
	r.clock.Advance(100 * time.Millisecond)
	r.s.Step()
	c.Assert(r.primary.pushes, qt.HasLen, 0)
	c.Assert(r.secondary.pushes, qt.HasLen, 1)
	c.Assert(strings.Count(r.log.String(), "no font"), qt.Equals, 1)

	r.content.primaryErr = nil
	r.clock.Advance(100 * time.Millisecond)
	r.s.Step()
	c.Assert(r.primary.pushes, qt.HasLen, 1)
	c.Assert(r.log.String(), qt.Contains, "anddesk: primary content recovered")
}

func TestStepPushFailureFreezesPanel(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{SecondaryInterval: 100 * time.Millisecond})
	r.s.Step()
	c.Assert(r.secondary.pushes, qt.HasLen, 1)

	fault := errors.New("spibus: transport failure: st7735: EIO")
	r.secondary.pushErr = fault
	for i := 0; i < 3; i++ {
		r.clock.Advance(100 * time.Millisecond)
		r.s.Step()
	}
	c.Assert(r.s.Frozen(r.secondary), qt.Equals, fault)
	c.Assert(r.s.Frozen(r.primary), qt.IsNil)
	c.Assert(r.primary.pushes, qt.HasLen, 4)
	c.Assert(r.secondary.pushes, qt.HasLen, 1)
	c.Assert(strings.Count(r.log.String(), "frozen"), qt.Equals, 1)

	// Touch is still served.
	r.touch.queue = []touch{{p: image.Pt(50, 120), ok: true}}
	r.clock.Advance(100 * time.Millisecond)
	r.s.Step()
	c.Assert(r.s.State().Screen, qt.Equals, router.Apps)

	r.secondary.pushErr = nil
	c.Assert(r.s.Reinit(r.secondary), qt.IsNil)
	c.Assert(r.secondary.inits, qt.Equals, 1)
	c.Assert(r.s.Frozen(r.secondary), qt.IsNil)
	r.s.Step()
	c.Assert(r.secondary.pushes, qt.HasLen, 2)
	c.Assert(r.log.String(), qt.Contains, "anddesk: st7735 resumed")
}

func TestReinitFailureKeepsFreeze(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.primary.pushErr = errors.New("EIO")
	r.s.Step()
	r.primary.initErr = errors.New("still broken")
	c.Assert(r.s.Reinit(r.primary), qt.ErrorMatches, "still broken")
	c.Assert(r.s.Frozen(r.primary), qt.ErrorMatches, "EIO")
}

func TestStepFocusCommands(t *testing.T) {
	c := qt.New(t)
	cmds := make(chan stats.Command, 4)
	r := newRig(c, Opts{Commands: cmds})

	cmds <- stats.Command{Kind: stats.StartFocus, Minutes: 2, App: "VS Code"}
	r.s.Step()
	st := r.s.State()
	c.Assert(st.FocusActive, qt.IsTrue)
	c.Assert(st.FocusSession, qt.Equals, 2)
	c.Assert(st.FocusStarted, qt.Equals, t0)
	c.Assert(st.FocusApp, qt.Equals, "VS Code")
	c.Assert(r.log.String(), qt.Contains, "anddesk: focus session started, 2 min on VS Code")
	c.Assert(r.content.primary[0].Router.FocusApp, qt.Equals, "VS Code")

	r.clock.Advance(59 * time.Second)
	r.s.Step()
	c.Assert(r.s.State().FocusElapsed, qt.Equals, 0)

	r.clock.Advance(time.Second)
	r.s.Step()
	c.Assert(r.s.State().FocusElapsed, qt.Equals, 1)

	r.clock.Advance(time.Minute)
	r.s.Step()
	st = r.s.State()
	c.Assert(st.FocusActive, qt.IsFalse)
	c.Assert(st.FocusMessage, qt.Equals, router.MessageComplete)
	c.Assert(r.log.String(), qt.Contains, "anddesk: focus session complete after 2 min")

	cmds <- stats.Command{Kind: stats.StartFocus}
	cmds <- stats.Command{Kind: stats.StopFocus}
	close(cmds)
	r.s.Step()
	st = r.s.State()
	c.Assert(st.FocusActive, qt.IsFalse)
	c.Assert(st.FocusMessage, qt.Equals, router.MessageEnded)
	c.Assert(r.s.cmds, qt.IsNil)
}

func TestRunInitFailure(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	r.secondary.initErr = errors.New("no reset line")
	err := r.s.Run(context.Background())
	c.Assert(err, qt.ErrorMatches, "scheduler: secondary panel: no reset line")
	c.Assert(r.primary.pushes, qt.HasLen, 0)
}

func TestRun(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, Opts{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- r.s.Run(ctx) }()

	// Run sleeps on the clock between frames.
	r.clock.BlockUntil(1)
	r.clock.Advance(100 * time.Millisecond)
	r.clock.BlockUntil(1)
	cancel()
	c.Assert(<-done, qt.IsNil)

	c.Assert(r.primary.inits, qt.Equals, 1)
	c.Assert(r.secondary.inits, qt.Equals, 1)
	c.Assert(r.primary.pushes, qt.HasLen, 2)
}
