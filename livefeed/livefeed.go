// Package livefeed maintains the bounded window of synthetic per-channel
// activity samples behind the dashboard's live chart. The window is
// seeded backward from "now" at one-minute steps, then a ticker appends
// one fresh sample per period and evicts the oldest, so the window length
// never changes after initialization.
//
//	feed := livefeed.New(cfg.Activity, livefeed.WithLogger(logger))
//	go feed.Run(ctx)
//	samples := feed.Snapshot()
//
// Run blocks until ctx is cancelled, which releases the ticker — repeated
// start/stop cycles leak nothing.
package livefeed

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chatdesk/console/config"
)

// Sample is one point on the live activity chart: message volume per
// channel at a display-formatted time.
type Sample struct {
	Timestamp string `json:"timestamp"`
	WhatsApp  int    `json:"whatsapp"`
	Facebook  int    `json:"facebook"`
	Instagram int    `json:"instagram"`
}

// Per-channel volume ranges. Values are drawn uniformly from
// [min, min+span).
const (
	whatsappMin, whatsappSpan   = 10, 50 // [10,59]
	facebookMin, facebookSpan   = 5, 30  // [5,34]
	instagramMin, instagramSpan = 0, 20  // [0,19]
)

// timestampLayout is the display format used on the chart's X axis.
const timestampLayout = "15:04"

// Feed holds the sliding sample window. Safe for concurrent use: HTTP
// handlers read snapshots while the ticker goroutine appends.
type Feed struct {
	cfg    config.ActivityConfig
	logger *slog.Logger
	now    func() time.Time
	intn   func(n int) int

	mu     sync.Mutex
	window []Sample
	subs   map[chan Sample]struct{}
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// WithClock replaces the wall clock (used by tests).
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithRand replaces the random source (used by tests).
func WithRand(intn func(n int) int) Option {
	return func(f *Feed) { f.intn = intn }
}

// New creates a Feed with a freshly seeded window. The oldest sample is
// (WindowSize-1)×SeedStep in the past, the newest is "now".
func New(cfg config.ActivityConfig, opts ...Option) *Feed {
	f := &Feed{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		intn:   rand.IntN,
		subs:   make(map[chan Sample]struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	if f.cfg.WindowSize <= 0 {
		f.cfg.WindowSize = 1
	}
	cfg = f.cfg

	f.window = make([]Sample, 0, cfg.WindowSize)
	base := f.now()
	for i := cfg.WindowSize - 1; i >= 0; i-- {
		f.window = append(f.window, f.generate(base.Add(-time.Duration(i)*cfg.SeedStep)))
	}
	return f
}

// Run appends one sample per RefreshInterval until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.RefreshInterval)
	defer ticker.Stop()

	f.logger.Debug("livefeed started",
		"window", f.cfg.WindowSize, "interval", f.cfg.RefreshInterval)

	for {
		select {
		case <-ctx.Done():
			f.logger.Debug("livefeed stopped")
			return
		case <-ticker.C:
			f.tick()
		}
	}
}

// tick generates one sample, slides the window, and fans the sample out
// to subscribers.
func (f *Feed) tick() {
	s := f.generate(f.now())

	f.mu.Lock()
	f.window = append(f.window[1:], s)
	for ch := range f.subs {
		select {
		case ch <- s:
		default:
			// Slow subscriber: drop the sample instead of stalling the
			// ticker. The next tick carries fresh data anyway.
		}
	}
	f.mu.Unlock()
}

// generate draws one sample at the given instant.
func (f *Feed) generate(at time.Time) Sample {
	return Sample{
		Timestamp: at.Format(timestampLayout),
		WhatsApp:  whatsappMin + f.intn(whatsappSpan),
		Facebook:  facebookMin + f.intn(facebookSpan),
		Instagram: instagramMin + f.intn(instagramSpan),
	}
}

// Snapshot returns a copy of the current window, oldest first.
func (f *Feed) Snapshot() []Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sample, len(f.window))
	copy(out, f.window)
	return out
}

// Subscribe registers a channel receiving every new sample. The returned
// func removes the subscription; callers must invoke it when done or the
// channel entry lives for the feed's lifetime.
func (f *Feed) Subscribe() (<-chan Sample, func()) {
	ch := make(chan Sample, 8)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}
