package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FeedOpts is the configuration of an MQTT feed.
type FeedOpts struct {
	Broker   string // e.g. "tcp://localhost:1883"
	ClientID string // Default: "anddesk"
	Prefix   string // Topic prefix. Default: "anddesk"

	// Timeout bounds connecting and subscribing. Default: 10s.
	Timeout time.Duration

	Logger *log.Logger
}

// Feed keeps a Store up to date from JSON messages published under a topic
// prefix:
//
//	<prefix>/deck         Machine
//	<prefix>/server       Machine
//	<prefix>/weather      Weather
//	<prefix>/brief        {"events": [...], "reminders": [...], "summary": "..."}
//	<prefix>/inbox        {"emails": [...], "unread": N}
//	<prefix>/care         {"temp_files": N, "temp_files_mb": X}
//	<prefix>/focus/start  {"minutes": N} (payload optional)
//	<prefix>/focus/stop   (no payload)
//
// Focus messages are turned into Commands for the frame loop.
type Feed struct {
	store   *Store
	prefix  string
	timeout time.Duration
	logger  *log.Logger
	cmds    chan Command
	now     func() time.Time

	client mqtt.Client
}

// NewFeed returns a feed writing to store. It does not connect.
func NewFeed(store *Store, opts *FeedOpts) (*Feed, error) {
	if store == nil {
		return nil, errors.New("stats: store is required")
	}
	if opts == nil {
		opts = &FeedOpts{}
	}
	f := &Feed{
		store:   store,
		prefix:  strings.TrimSuffix(opts.Prefix, "/"),
		timeout: opts.Timeout,
		logger:  opts.Logger,
		cmds:    make(chan Command, 8),
		now:     time.Now,
	}
	if f.prefix == "" {
		f.prefix = "anddesk"
	}
	if f.timeout == 0 {
		f.timeout = 10 * time.Second
	}
	if f.logger == nil {
		f.logger = log.Default()
	}
	if opts.Broker != "" {
		id := opts.ClientID
		if id == "" {
			id = "anddesk"
		}
		co := mqtt.NewClientOptions().
			AddBroker(opts.Broker).
			SetClientID(id).
			SetAutoReconnect(true).
			SetOnConnectHandler(f.onConnect).
			SetConnectionLostHandler(func(_ mqtt.Client, err error) {
				f.logger.Printf("stats: connection lost: %v", err)
			})
		f.client = mqtt.NewClient(co)
	}
	return f, nil
}

// Start connects to the broker. Subscriptions are made, and remade after a
// reconnect, by the connect handler.
func (f *Feed) Start() error {
	if f.client == nil {
		return errors.New("stats: no broker configured")
	}
	tok := f.client.Connect()
	if !tok.WaitTimeout(f.timeout) {
		return errors.New("stats: timed out connecting to broker")
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("stats: failed to connect: %w", err)
	}
	return nil
}

func (f *Feed) onConnect(c mqtt.Client) {
	tok := c.Subscribe(f.prefix+"/#", 0, f.onMessage)
	if !tok.WaitTimeout(f.timeout) {
		f.logger.Printf("stats: timed out subscribing to %s/#", f.prefix)
		return
	}
	if err := tok.Error(); err != nil {
		f.logger.Printf("stats: failed to subscribe: %v", err)
	}
}

func (f *Feed) onMessage(_ mqtt.Client, m mqtt.Message) {
	if err := f.Handle(m.Topic(), m.Payload()); err != nil {
		f.logger.Printf("stats: %v", err)
	}
}

// Stop disconnects from the broker.
func (f *Feed) Stop() {
	if f.client != nil && f.client.IsConnected() {
		f.client.Disconnect(250)
	}
}

// Commands returns the channel of focus commands.
func (f *Feed) Commands() <-chan Command {
	return f.cmds
}

// Handle applies one message. Unknown topics are ignored.
func (f *Feed) Handle(topic string, payload []byte) error {
	name, ok := strings.CutPrefix(topic, f.prefix+"/")
	if !ok {
		return nil
	}
	switch name {
	case "deck":
		var m Machine
		return f.decode(name, payload, &m, func(s *Snapshot) { s.Deck = m })
	case "server":
		var m Machine
		return f.decode(name, payload, &m, func(s *Snapshot) { s.Server = m })
	case "weather":
		var w Weather
		return f.decode(name, payload, &w, func(s *Snapshot) { s.Weather = w })
	case "brief":
		var b struct {
			Events    []Event  `json:"events"`
			Reminders []string `json:"reminders"`
			Summary   string   `json:"summary"`
		}
		return f.decode(name, payload, &b, func(s *Snapshot) {
			s.Events, s.Reminders, s.Summary = b.Events, b.Reminders, b.Summary
		})
	case "inbox":
		var in struct {
			Emails []Email `json:"emails"`
			Unread *int    `json:"unread"`
		}
		return f.decode(name, payload, &in, func(s *Snapshot) {
			s.Emails = in.Emails
			if in.Unread != nil {
				s.Unread = *in.Unread
				return
			}
			s.Unread = 0
			for _, e := range in.Emails {
				if e.Unread {
					s.Unread++
				}
			}
		})
	case "care":
		var c struct {
			TempFiles   int     `json:"temp_files"`
			TempFilesMB float64 `json:"temp_files_mb"`
		}
		return f.decode(name, payload, &c, func(s *Snapshot) {
			s.TempFiles, s.TempFilesMB = c.TempFiles, c.TempFilesMB
		})
	case "focus/start":
		var req struct {
			Minutes int    `json:"minutes"`
			App     string `json:"app"`
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		if req.Minutes < 0 {
			return fmt.Errorf("%s: negative session length", name)
		}
		return f.send(Command{Kind: StartFocus, Minutes: req.Minutes, App: req.App})
	case "focus/stop":
		return f.send(Command{Kind: StopFocus})
	}
	return nil
}

func (f *Feed) decode(name string, payload []byte, v any, apply func(*Snapshot)) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	now := f.now()
	f.store.Update(func(s *Snapshot) {
		apply(s)
		s.Updated = now
	})
	return nil
}

// send queues a command without blocking the MQTT client goroutine.
func (f *Feed) send(c Command) error {
	select {
	case f.cmds <- c:
		return nil
	default:
		return errors.New("command queue full, dropped")
	}
}
