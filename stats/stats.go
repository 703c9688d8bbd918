// Package stats holds the data shown on the desk screens. It is refreshed
// out of band, from the MQTT feed, and read by the frame scheduler once per
// frame.
package stats

import (
	"sync"
	"time"
)

// Machine is the health of a monitored computer.
type Machine struct {
	Online    bool    `json:"online"`
	CPU       float64 `json:"cpu"`       // percent
	RAM       float64 `json:"ram"`       // percent
	GPU       float64 `json:"gpu"`       // percent
	TempC     float64 `json:"temp_c"`    // degrees Celsius
	DiskUsed  float64 `json:"disk_used"` // GB
	DiskTotal float64 `json:"disk_total"`
	Uptime    string  `json:"uptime"`
}

// Weather is the current local forecast.
type Weather struct {
	TempC   float64 `json:"temp_c"`
	Summary string  `json:"summary"`
	Icon    string  `json:"icon"`
	HighC   float64 `json:"high_c"`
	LowC    float64 `json:"low_c"`
}

// Event is a calendar entry.
type Event struct {
	Time  string `json:"time"`
	Title string `json:"title"`
}

// Email is an inbox entry.
type Email struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Unread  bool   `json:"unread"`
}

// Snapshot is a consistent copy of everything the screens show.
type Snapshot struct {
	Deck    Machine `json:"deck"`
	Server  Machine `json:"server"`
	Weather Weather `json:"weather"`

	Events    []Event  `json:"events"`
	Reminders []string `json:"reminders"`
	Summary   string   `json:"summary"`

	Emails []Email `json:"emails"`
	Unread int     `json:"unread"`

	TempFiles   int     `json:"temp_files"`
	TempFilesMB float64 `json:"temp_files_mb"`

	Updated time.Time `json:"-"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Events = append([]Event(nil), s.Events...)
	s.Reminders = append([]string(nil), s.Reminders...)
	s.Emails = append([]Email(nil), s.Emails...)
	return s
}

// Store is a Snapshot shared between writers and the frame loop.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStore returns a store holding s.
func NewStore(s Snapshot) *Store {
	return &Store{snap: s.Clone()}
}

// Snapshot returns a copy of the current data.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap.Clone()
}

// Update applies fn to the stored snapshot under the write lock.
func (st *Store) Update(fn func(*Snapshot)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(&st.snap)
}

// CommandKind is an action requested from outside the frame loop.
type CommandKind uint8

const (
	StartFocus CommandKind = iota + 1
	StopFocus
)

// Command is applied by the frame loop at the start of a cycle.
type Command struct {
	Kind    CommandKind
	Minutes int    // session length for StartFocus, 0 for the default
	App     string // what the session is for, optional
}
