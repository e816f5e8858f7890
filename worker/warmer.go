// Package worker keeps the flight cache warm for popular routes on a cron
// schedule, coordinated across instances by a Redis leader lock.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gilby125/flight-radius/config"
	"github.com/gilby125/flight-radius/flights"
	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Cronner is the part of *cron.Cron the warmer uses.
type Cronner interface {
	Start()
	Stop() context.Context
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
}

// Leader reports whether this instance should do shared work.
type Leader interface {
	IsLeader() bool
}

// Refresher is a provider whose cached answers can be dropped.
// *flights.CachedProvider implements it.
type Refresher interface {
	flights.Provider
	Invalidate(ctx context.Context, from, to, date string) error
}

// WarmerOptions configures a Warmer.
type WarmerOptions struct {
	Schedule  string
	Routes    []config.Route
	DaysAhead int
	// Concurrency bounds the provider queries of one run.
	Concurrency int
	// RunTimeout bounds one scheduled run; zero means 5 minutes.
	RunTimeout time.Duration
}

// RunStats summarises one warm-up run.
type RunStats struct {
	StartedAt time.Time `json:"startedAt"`
	Queries   int       `json:"queries"`
	Refreshed int       `json:"refreshed"`
	Failed    int       `json:"failed"`
	// Skipped is set when the run did not query anything: another run was
	// in progress or this instance was not the leader.
	Skipped bool `json:"skipped"`
}

// Warmer refreshes the cached flights of configured routes for the next
// DaysAhead days.
type Warmer struct {
	cron     Cronner
	provider Refresher
	leader   Leader
	opts     WarmerOptions
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	last    RunStats
}

// NewWarmer creates a warmer. leader may be nil for a single instance.
func NewWarmer(opts WarmerOptions, p Refresher, leader Leader, log *logger.Logger) *Warmer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = 1
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Warmer{
		cron:     cron.New(),
		provider: p,
		leader:   leader,
		opts:     opts,
		now:      time.Now,
		log:      log.WithField("component", "warmer"),
	}
}

// WithCron replaces the scheduler.
func (w *Warmer) WithCron(c Cronner) *Warmer {
	w.cron = c
	return w
}

// WithClock replaces the clock that decides the first warmed date.
func (w *Warmer) WithClock(now func() time.Time) *Warmer {
	w.now = now
	return w
}

// Start schedules the warmer.
func (w *Warmer) Start() error {
	if _, err := w.cron.AddFunc(w.opts.Schedule, w.tick); err != nil {
		return fmt.Errorf("invalid warmer schedule %q: %w", w.opts.Schedule, err)
	}
	w.cron.Start()
	w.log.Info("Cache warmer started", "schedule", w.opts.Schedule, "routes", len(w.opts.Routes), "days_ahead", w.opts.DaysAhead)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
	w.log.Info("Cache warmer stopped")
}

func (w *Warmer) tick() {
	if w.leader != nil && !w.leader.IsLeader() {
		w.log.Debug("Skipping warm-up, not the leader")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.RunTimeout)
	defer cancel()
	w.RunOnce(ctx)
}

// Last returns the stats of the latest completed run.
func (w *Warmer) Last() RunStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

type warmQuery struct {
	from, to, date string
}

func (w *Warmer) queries() []warmQuery {
	now := w.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]warmQuery, 0, len(w.opts.Routes)*w.opts.DaysAhead)
	for _, r := range w.opts.Routes {
		for i := 0; i < w.opts.DaysAhead; i++ {
			out = append(out, warmQuery{from: r.From, to: r.To, date: today.AddDate(0, 0, i).Format(flights.DateLayout)})
		}
	}
	return out
}

// RunOnce drops and re-fetches the cached flights of every route and date.
// A run that starts while another is in progress is skipped.
func (w *Warmer) RunOnce(ctx context.Context) RunStats {
	stats := RunStats{StartedAt: w.now()}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		stats.Skipped = true
		return stats
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.last = stats
		w.mu.Unlock()
	}()

	qs := w.queries()
	errs := make([]error, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for i, q := range qs {
		g.Go(func() error {
			if err := w.provider.Invalidate(gctx, q.from, q.to, q.date); err != nil {
				w.log.Warn("Cache invalidation failed", "from", q.from, "to", q.to, "date", q.date, "error", err)
			}
			_, errs[i] = w.provider.Search(gctx, q.from, q.to, q.date)
			return nil
		})
	}
	_ = g.Wait()

	stats.Queries = len(qs)
	for i, err := range errs {
		if err != nil {
			stats.Failed++
			w.log.Warn("Warm-up query failed", "from", qs[i].from, "to", qs[i].to, "date", qs[i].date, "error", err)
			continue
		}
		stats.Refreshed++
	}
	w.log.Info("Cache warm-up finished", "queries", stats.Queries, "refreshed", stats.Refreshed, "failed", stats.Failed)
	return stats
}
