// Package router holds the screen state machine of the desk dashboard.
//
// Route is a pure function from the current State and one touch point to
// the next State. Which rectangles of the screen react to touches is
// declared by the renderer each frame as a list of HitRegions.
package router

import (
	"fmt"
	"image"
	"time"
)

// ScreenID names a screen of the primary display.
type ScreenID uint8

const (
	Dashboard ScreenID = iota
	Apps
	Brief
	Emails
	SystemCare
	Focus
)

var screenNames = [...]string{
	Dashboard:  "dashboard",
	Apps:       "apps",
	Brief:      "brief",
	Emails:     "emails",
	SystemCare: "sysmon",
	Focus:      "focus",
}

func (s ScreenID) String() string {
	if int(s) < len(screenNames) {
		return screenNames[s]
	}
	return fmt.Sprintf("ScreenID(%d)", uint8(s))
}

// Screens lists every screen in declaration order.
func Screens() []ScreenID {
	return []ScreenID{Dashboard, Apps, Brief, Emails, SystemCare, Focus}
}

// ParseScreenID is the inverse of ScreenID.String.
func ParseScreenID(s string) (ScreenID, error) {
	for i, n := range screenNames {
		if n == s {
			return ScreenID(i), nil
		}
	}
	return 0, fmt.Errorf("router: unknown screen %q", s)
}

// isApp reports whether s is reachable from the apps grid.
func (s ScreenID) isApp() bool {
	switch s {
	case Brief, Emails, SystemCare, Focus:
		return true
	}
	return false
}

// HitRegion is a rectangle of the screen, bounds inclusive, that leads to
// Target when touched.
type HitRegion struct {
	X0, Y0, X1, Y1 int
	Target         ScreenID
}

// Contains reports whether p lies inside the region, edges included.
func (r HitRegion) Contains(p image.Point) bool {
	return p.X >= r.X0 && p.X <= r.X1 && p.Y >= r.Y0 && p.Y <= r.Y1
}

// Rect returns the region as a half-open image.Rectangle.
func (r HitRegion) Rect() image.Rectangle {
	return image.Rect(r.X0, r.Y0, r.X1+1, r.Y1+1)
}

// HitTest returns the first region, in declaration order, containing p.
func HitTest(p image.Point, regions []HitRegion) (HitRegion, bool) {
	for _, r := range regions {
		if r.Contains(p) {
			return r, true
		}
	}
	return HitRegion{}, false
}

// hitTarget is HitTest restricted to regions accepted by match.
func hitTarget(p image.Point, regions []HitRegion, match func(ScreenID) bool) (HitRegion, bool) {
	for _, r := range regions {
		if match(r.Target) && r.Contains(p) {
			return r, true
		}
	}
	return HitRegion{}, false
}

// Focus session messages.
const (
	MessageEnded    = "Session ended."
	MessageComplete = "Session complete!"
)

// DefaultFocusMinutes is the length of a focus session.
const DefaultFocusMinutes = 25

// State is everything the router reads and writes.
type State struct {
	Screen ScreenID

	// Regions are the hit-regions of the current screen, replaced after
	// every render.
	Regions []HitRegion

	// Focus session
	FocusActive  bool
	FocusElapsed int // minutes
	FocusSession int // minutes
	FocusMessage string
	FocusApp     string    // what the session is for, may be empty
	FocusStarted time.Time // time of the last minute advance

	// Cleaned is set once the system care clean-up ran.
	Cleaned bool
}

// NewState returns the state at start-up: the dashboard.
func NewState() State {
	return State{Screen: Dashboard, FocusSession: DefaultFocusMinutes}
}

// Result describes what a touch did.
type Result struct {
	Changed       bool // the state changed
	ScreenChanged bool // the screen changed
	From, To      ScreenID
}

// Route applies one touch at p to s and returns the new state.
func Route(s State, p image.Point) (State, Result) {
	res := Result{From: s.Screen, To: s.Screen}
	isBack := func(t ScreenID) bool { return t == Dashboard }

	switch s.Screen {
	case Dashboard:
		if _, ok := hitTarget(p, s.Regions, func(t ScreenID) bool { return t == Apps }); ok {
			s.Screen = Apps
		}

	case Apps:
		if r, ok := hitTarget(p, s.Regions, ScreenID.isApp); ok {
			s.Screen = r.Target
		} else if _, ok := hitTarget(p, s.Regions, isBack); ok {
			s.Screen = Dashboard
		}

	default:
		if _, ok := hitTarget(p, s.Regions, isBack); ok {
			s = leave(s)
			s.Screen = Dashboard
		} else if s.Screen == SystemCare && !s.Cleaned {
			s.Cleaned = true
			res.Changed = true
		}
	}

	if s.Screen != res.From {
		res.To = s.Screen
		res.Changed = true
		res.ScreenChanged = true
		// The previous screen's regions no longer apply.
		s.Regions = nil
	}
	return s, res
}

// leave applies the side effects of navigating away from s.Screen.
func leave(s State) State {
	switch s.Screen {
	case Focus:
		if s.FocusActive {
			s.FocusActive = false
			s.FocusElapsed = 0
			s.FocusMessage = MessageEnded
		}
	case SystemCare:
		s.Cleaned = false
	}
	return s
}

// StartFocus starts a focus session of the given length at now.
// A non-positive length keeps the current session length.
func StartFocus(s State, minutes int, now time.Time) State {
	if minutes > 0 {
		s.FocusSession = minutes
	}
	if s.FocusSession <= 0 {
		s.FocusSession = DefaultFocusMinutes
	}
	s.FocusActive = true
	s.FocusElapsed = 0
	s.FocusMessage = ""
	s.FocusStarted = now
	return s
}

// StopFocus ends the running focus session, if any.
func StopFocus(s State) State {
	if !s.FocusActive {
		return s
	}
	s.FocusActive = false
	s.FocusElapsed = 0
	s.FocusMessage = MessageEnded
	return s
}

// TickFocus advances a running session by one minute when at least tick
// elapsed since the last advance. It reports whether the state changed.
func TickFocus(s State, now time.Time, tick time.Duration) (State, bool) {
	if !s.FocusActive || now.Sub(s.FocusStarted) < tick {
		return s, false
	}
	s.FocusElapsed++
	s.FocusStarted = now
	if s.FocusElapsed >= s.FocusSession {
		s.FocusActive = false
		s.FocusMessage = MessageComplete
	}
	return s, true
}

// FocusRemaining returns the minutes left in the session.
func (s State) FocusRemaining() int {
	return max(0, s.FocusSession-s.FocusElapsed)
}

// Debouncer drops touches that follow the last accepted one too closely.
type Debouncer struct {
	Interval time.Duration
	last     time.Time
	seen     bool
}

// DefaultDebounce is the minimum time between two accepted touches.
const DefaultDebounce = 300 * time.Millisecond

// NewDebouncer returns a Debouncer. A zero interval means DefaultDebounce.
func NewDebouncer(interval time.Duration) *Debouncer {
	if interval == 0 {
		interval = DefaultDebounce
	}
	return &Debouncer{Interval: interval}
}

// Accept reports whether a touch at now is accepted, and records it if so.
// A touch must come strictly more than Interval after the last accepted one.
// Rejected touches are dropped, not queued.
func (d *Debouncer) Accept(now time.Time) bool {
	if d.seen && now.Sub(d.last) <= d.Interval {
		return false
	}
	d.last = now
	d.seen = true
	return true
}
