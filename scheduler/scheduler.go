// Package scheduler runs the control loop of the desk: one goroutine that
// polls touch, advances the router and pushes frames to both panels.
//
// Timing is expressed as logical clocks (frame due, secondary due, focus
// minute) compared against a clockwork.Clock, so a FakeClock drives the loop
// deterministically in tests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync/atomic"
	"time"

	"github.com/BOTO145/and-desk/router"
	"github.com/BOTO145/and-desk/stats"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/physic"
)

// Panel is a display the scheduler pushes frames to. *tft.Dev implements it.
type Panel interface {
	Init() error
	Push(frame image.Image) error
	Bounds() image.Rectangle
}

// TouchSource is polled once per cycle. *xpt2046.Dev implements it.
type TouchSource interface {
	Sample() (image.Point, bool, error)
}

// StatsSource provides the data shown on the screens. *stats.Store
// implements it.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// Snapshot is everything the content layer needs to draw one frame.
type Snapshot struct {
	Now    time.Time
	Time   string // "15:04"
	Date   string // "Mon, 02 Jan 2006"
	Router router.State
	Stats  stats.Snapshot

	// Size is the size of the panel the frame is for.
	Size image.Point
}

// Content draws frames. Primary also returns the hit-regions of the frame;
// nil means router.DefaultRegions.
type Content interface {
	Primary(s Snapshot) (image.Image, []router.HitRegion, error)
	Secondary(s Snapshot) (image.Image, error)
}

// Opts is the scheduler configuration.
type Opts struct {
	FrameRate         physic.Frequency // Default: 10Hz
	SecondaryInterval time.Duration    // Default: 5s
	FocusTick         time.Duration    // Default: 1m
	Debounce          time.Duration    // Default: 300ms

	Clock  clockwork.Clock // Default: the real clock
	Logger *log.Logger     // Default: log.Default()

	// Stats and Commands are optional.
	Stats    StatsSource
	Commands <-chan stats.Command
}

// DefaultOpts is the recommended configuration.
var DefaultOpts = Opts{
	FrameRate:         10 * physic.Hertz,
	SecondaryInterval: 5 * time.Second,
	FocusTick:         time.Minute,
	Debounce:          router.DefaultDebounce,
}

// Scheduler owns the router state. Run and Step must be called from one
// goroutine; State may be called from any goroutine.
type Scheduler struct {
	primary   Panel
	secondary Panel
	touch     TouchSource
	content   Content
	stats     StatsSource
	cmds      <-chan stats.Command

	clock     clockwork.Clock
	logger    *log.Logger
	budget    time.Duration
	interval  time.Duration
	focusTick time.Duration
	debounce  *router.Debouncer

	state router.State
	shown atomic.Pointer[router.State] // copy of state as of the last cycle
	size  image.Point

	secondaryAt   time.Time
	secondarySeen bool
	frozen        map[Panel]error
	contentFailed [2]bool
	touchFailed   bool
}

// New returns a scheduler driving primary and secondary. secondary and touch
// may be nil.
func New(primary, secondary Panel, touch TouchSource, content Content, opts *Opts) (*Scheduler, error) {
	if primary == nil {
		return nil, errors.New("scheduler: a primary panel is required")
	}
	if content == nil {
		return nil, errors.New("scheduler: content is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.FrameRate == 0 {
		o.FrameRate = DefaultOpts.FrameRate
	}
	if o.SecondaryInterval == 0 {
		o.SecondaryInterval = DefaultOpts.SecondaryInterval
	}
	if o.FocusTick == 0 {
		o.FocusTick = DefaultOpts.FocusTick
	}
	if o.Debounce == 0 {
		o.Debounce = DefaultOpts.Debounce
	}
	if o.FrameRate < 0 || o.SecondaryInterval < 0 || o.FocusTick < 0 || o.Debounce < 0 {
		return nil, errors.New("scheduler: rates and intervals must be positive")
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	size := primary.Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("scheduler: primary panel has empty bounds %v", primary.Bounds())
	}
	s := &Scheduler{
		primary:   primary,
		secondary: secondary,
		touch:     touch,
		content:   content,
		stats:     o.Stats,
		cmds:      o.Commands,
		clock:     o.Clock,
		logger:    o.Logger,
		budget:    o.FrameRate.Period(),
		interval:  o.SecondaryInterval,
		focusTick: o.FocusTick,
		debounce:  router.NewDebouncer(o.Debounce),
		state:     router.NewState(),
		size:      size,
		frozen:    map[Panel]error{},
	}
	s.state.Regions = router.DefaultRegions(s.state.Screen, size.X, size.Y)
	s.publish()
	return s, nil
}

// State returns a copy of the router state as of the end of the last Step.
func (s *Scheduler) State() router.State {
	st := *s.shown.Load()
	st.Regions = append([]router.HitRegion(nil), st.Regions...)
	return st
}

// current returns a copy of the live router state.
func (s *Scheduler) current() router.State {
	st := s.state
	st.Regions = append([]router.HitRegion(nil), st.Regions...)
	return st
}

func (s *Scheduler) publish() {
	st := s.current()
	s.shown.Store(&st)
}

// Frozen returns the error that froze p, or nil.
func (s *Scheduler) Frozen(p Panel) error {
	return s.frozen[p]
}

// Init initializes both panels.
func (s *Scheduler) Init() error {
	if err := s.primary.Init(); err != nil {
		return fmt.Errorf("scheduler: primary panel: %w", err)
	}
	if s.secondary != nil {
		if err := s.secondary.Init(); err != nil {
			return fmt.Errorf("scheduler: secondary panel: %w", err)
		}
	}
	return nil
}

// Reinit initializes p again and, on success, resumes pushing to it.
func (s *Scheduler) Reinit(p Panel) error {
	if err := p.Init(); err != nil {
		return err
	}
	if _, ok := s.frozen[p]; ok {
		delete(s.frozen, p)
		s.logger.Printf("anddesk: %v resumed", p)
	}
	if p == s.secondary {
		s.secondarySeen = false
	}
	return nil
}

// Run initializes the panels then runs one Step per frame until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Init(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		rest := s.Step()
		if rest <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(rest):
		}
	}
}

// Step runs one cycle and returns what is left of the frame budget, 0 if
// the cycle overran.
func (s *Scheduler) Step() time.Duration {
	start := s.clock.Now()
	s.drain(start)
	if st, ok := router.TickFocus(s.state, start, s.focusTick); ok {
		s.state = st
		if !st.FocusActive {
			s.logger.Printf("anddesk: focus session complete after %d min", st.FocusElapsed)
		}
	}
	s.poll(start)

	snap := s.snapshot(start)
	s.pushPrimary(snap)
	if s.secondary != nil && (!s.secondarySeen || start.Sub(s.secondaryAt) >= s.interval) {
		s.secondaryAt = start
		s.secondarySeen = true
		s.pushSecondary(snap)
	}
	s.publish()

	if elapsed := s.clock.Since(start); elapsed < s.budget {
		return s.budget - elapsed
	}
	return 0
}

func (s *Scheduler) drain(now time.Time) {
	if s.cmds == nil {
		return
	}
	for {
		select {
		case c, ok := <-s.cmds:
			if !ok {
				s.cmds = nil
				return
			}
			s.apply(c, now)
		default:
			return
		}
	}
}

func (s *Scheduler) apply(c stats.Command, now time.Time) {
	switch c.Kind {
	case stats.StartFocus:
		s.state = router.StartFocus(s.state, c.Minutes, now)
		s.state.FocusApp = c.App
		if c.App != "" {
			s.logger.Printf("anddesk: focus session started, %d min on %s", s.state.FocusSession, c.App)
		} else {
			s.logger.Printf("anddesk: focus session started, %d min", s.state.FocusSession)
		}
	case stats.StopFocus:
		s.state = router.StopFocus(s.state)
	default:
		s.logger.Printf("anddesk: unknown command %d", c.Kind)
	}
}

func (s *Scheduler) poll(now time.Time) {
	if s.touch == nil {
		return
	}
	p, ok, err := s.touch.Sample()
	if err != nil {
		if !s.touchFailed {
			s.logger.Printf("anddesk: touch: %v", err)
		}
		s.touchFailed = true
		return
	}
	if s.touchFailed {
		s.logger.Printf("anddesk: touch recovered")
		s.touchFailed = false
	}
	if !ok || !s.debounce.Accept(now) {
		return
	}
	st, res := router.Route(s.state, p)
	s.state = st
	if res.ScreenChanged {
		s.logger.Printf("anddesk: screen %s -> %s", res.From, res.To)
	}
}

func (s *Scheduler) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Now:    now,
		Time:   now.Format("15:04"),
		Date:   now.Format("Mon, 02 Jan 2006"),
		Router: s.current(),
		Size:   s.size,
	}
	if s.stats != nil {
		snap.Stats = s.stats.Snapshot()
	}
	return snap
}

func (s *Scheduler) pushPrimary(snap Snapshot) {
	frame, regions, err := s.content.Primary(snap)
	if !s.contentOK(0, "primary", err) {
		// Keep the screen reachable until a frame declares its regions.
		if s.state.Regions == nil {
			s.state.Regions = router.DefaultRegions(s.state.Screen, s.size.X, s.size.Y)
		}
		return
	}
	if regions == nil {
		regions = router.DefaultRegions(s.state.Screen, s.size.X, s.size.Y)
	}
	s.state.Regions = regions
	s.push(s.primary, frame)
}

func (s *Scheduler) pushSecondary(snap Snapshot) {
	snap.Size = s.secondary.Bounds().Size()
	frame, err := s.content.Secondary(snap)
	if !s.contentOK(1, "secondary", err) {
		return
	}
	s.push(s.secondary, frame)
}

// contentOK logs the first of a run of content errors.
func (s *Scheduler) contentOK(i int, name string, err error) bool {
	if err == nil {
		if s.contentFailed[i] {
			s.logger.Printf("anddesk: %s content recovered", name)
		}
		s.contentFailed[i] = false
		return true
	}
	if !s.contentFailed[i] {
		s.logger.Printf("anddesk: %s content: %v; skipping frames", name, err)
	}
	s.contentFailed[i] = true
	return false
}

// push sends frame to p unless p is frozen. A failed push freezes p on its
// last frame until Reinit.
func (s *Scheduler) push(p Panel, frame image.Image) {
	if _, ok := s.frozen[p]; ok {
		return
	}
	if err := p.Push(frame); err != nil {
		s.frozen[p] = err
		s.logger.Printf("anddesk: %v frozen: %v", p, err)
	}
}
