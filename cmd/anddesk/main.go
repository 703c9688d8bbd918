// Command anddesk runs the desk: both panels, the touch screen and the
// frame loop.
//
// Without flags it drives the hardware described by the configuration file.
// With -sim it draws the panels in the terminal and takes mouse clicks as
// touches. With -preview it renders every screen to PNG files and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"periph.io/x/conn/v3/physic"

	anddesk "github.com/BOTO145/and-desk"
	"github.com/BOTO145/and-desk/config"
	"github.com/BOTO145/and-desk/content"
	"github.com/BOTO145/and-desk/router"
	"github.com/BOTO145/and-desk/scheduler"
	"github.com/BOTO145/and-desk/stats"
	"github.com/BOTO145/and-desk/termsim"
)

var (
	configPath = flag.String("config", "", "Configuration file (default: user config dir)")
	writeCfg   = flag.Bool("write-config", false, "Write the configuration in use and exit")
	simulate   = flag.Bool("sim", false, "Draw the panels in the terminal instead of on the hardware")
	previewDir = flag.String("preview", "", "Render every screen as PNG into this directory and exit")
	scale      = flag.Int("scale", 4, "Terminal pixels per cell in -sim mode")
	sample     = flag.Bool("sample", false, "Start with sample data instead of an empty dashboard")
)

func main() {
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			log.Fatalf("Failed to locate configuration: %v", err)
		}
		path = p
	}
	cfg, err := config.Load(path, *configPath == "")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *writeCfg {
		if err := config.Save(path, cfg); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Configuration written to %s\n", path)
		return
	}

	render := content.New(content.DefaultTheme)
	initial := stats.Snapshot{}
	if *sample || *previewDir != "" {
		initial = sampleStats()
	}

	if *previewDir != "" {
		if err := preview(render, cfg, initial, *previewDir); err != nil {
			log.Fatalf("Preview failed: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := stats.NewStore(initial)
	opts := loopOpts(cfg, store)
	feed, err := stats.NewFeed(store, &stats.FeedOpts{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Prefix:   cfg.MQTT.Prefix,
	})
	if err != nil {
		log.Fatalf("Failed to create stats feed: %v", err)
	}
	if cfg.MQTT.Broker != "" {
		if err := feed.Start(); err != nil {
			// The desk is still useful without live data.
			log.Printf("anddesk: %v", err)
		}
		defer feed.Stop()
	}
	opts.Commands = feed.Commands()

	if *simulate {
		err = runSim(ctx, cfg, render, opts)
	} else {
		err = runHardware(ctx, cfg, render, opts)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func loopOpts(cfg config.Config, store *stats.Store) *scheduler.Opts {
	return &scheduler.Opts{
		FrameRate:         physic.Frequency(cfg.Loop.FrameRate),
		SecondaryInterval: time.Duration(cfg.Loop.SecondaryInterval),
		FocusTick:         time.Duration(cfg.Loop.FocusTick),
		Debounce:          time.Duration(cfg.Loop.Debounce),
		Stats:             store,
	}
}

func runHardware(ctx context.Context, cfg config.Config, render *content.Renderer, opts *scheduler.Opts) error {
	d, err := anddesk.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("anddesk: close: %v", err)
		}
	}()
	log.Printf("anddesk: %s", d)

	primary, secondary := d.Panels()
	s, err := scheduler.New(primary, secondary, d.TouchSource(), render, opts)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func runSim(ctx context.Context, cfg config.Config, render *content.Renderer, opts *scheduler.Opts) error {
	// The terminal belongs to the panels; logs go to a file.
	lf, err := os.CreateTemp("", "anddesk-sim-*.log")
	if err != nil {
		return err
	}
	defer lf.Close()
	log.SetOutput(lf)
	defer func() {
		log.SetOutput(os.Stderr)
		log.Printf("anddesk: simulator log in %s", lf.Name())
	}()

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	sim, err := termsim.New(screen)
	if err != nil {
		return err
	}
	defer sim.Close()

	prof, err := cfg.Primary.Resolve()
	if err != nil {
		return err
	}
	primary, err := sim.AddPanel(prof.Name, prof.W, prof.H, 0, 0, *scale)
	if err != nil {
		return err
	}
	var secondary scheduler.Panel
	if cfg.Secondary != nil {
		sp, err := cfg.Secondary.Resolve()
		if err != nil {
			return err
		}
		p, err := sim.AddPanel(sp.Name, sp.W, sp.H, primary.Cells().Max.X+2, 0, *scale)
		if err != nil {
			return err
		}
		secondary = p
	}

	var touch scheduler.TouchSource
	if cfg.Touch.Enabled {
		touch = sim.Touch(primary)
	}
	s, err := scheduler.New(primary, secondary, touch, render, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sim.Pump(primary)
	go func() {
		select {
		case <-sim.Quit():
			cancel()
		case <-ctx.Done():
		}
	}()
	go status(ctx, sim, s)
	return s.Run(ctx)
}

// status shows the current screen under the panels.
func status(ctx context.Context, sim *termsim.Sim, s *scheduler.Scheduler) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		st := s.State()
		line := fmt.Sprintf(" %s  click to touch, q to quit", st.Screen)
		if st.FocusActive {
			line = fmt.Sprintf(" %s  focus %d min left  q to quit", st.Screen, st.FocusRemaining())
		}
		sim.SetStatus(line)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func preview(render *content.Renderer, cfg config.Config, st stats.Snapshot, dir string) error {
	prof, err := cfg.Primary.Resolve()
	if err != nil {
		return err
	}
	secondary := image.Pt(160, 128)
	if cfg.Secondary != nil {
		sp, err := cfg.Secondary.Resolve()
		if err != nil {
			return err
		}
		secondary = image.Pt(sp.W, sp.H)
	}
	now := time.Now()
	rs := router.StartFocus(router.NewState(), router.DefaultFocusMinutes, now.Add(-10*time.Minute))
	rs.FocusElapsed = 10
	rs.FocusApp = "VS Code"
	snap := scheduler.Snapshot{
		Now:    now,
		Time:   now.Format("15:04"),
		Date:   now.Format("Mon, 02 Jan 2006"),
		Router: rs,
		Stats:  st,
		Size:   image.Pt(prof.W, prof.H),
	}
	paths, err := render.Preview(dir, snap, secondary)
	for _, p := range paths {
		fmt.Println(p)
	}
	return err
}

func sampleStats() stats.Snapshot {
	return stats.Snapshot{
		Deck:    stats.Machine{Online: true, CPU: 12, RAM: 41, TempC: 48.5, Uptime: "3d 4h"},
		Server:  stats.Machine{Online: true, CPU: 63, RAM: 72, GPU: 20, TempC: 61, DiskUsed: 412, DiskTotal: 1000},
		Weather: stats.Weather{TempC: 18, Summary: "Partly cloudy", HighC: 21, LowC: 11},
		Events: []stats.Event{
			{Time: "10:00", Title: "Stand-up"},
			{Time: "14:30", Title: "Design review"},
		},
		Reminders: []string{"Water the plants", "Renew the domain"},
		Summary:   "Two meetings and a quiet afternoon.",
		Emails: []stats.Email{
			{From: "Build bot", Subject: "Nightly build passed", Unread: true},
			{From: "Alex", Subject: "Lunch on Friday?", Unread: true},
			{From: "Billing", Subject: "Your invoice is ready"},
		},
		Unread:      2,
		TempFiles:   318,
		TempFilesMB: 742.5,
		Updated:     time.Now(),
	}
}
