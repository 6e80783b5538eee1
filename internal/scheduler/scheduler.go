package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"backoffice/internal/domain"
	"backoffice/internal/metrics"

	"github.com/go-co-op/gocron"
	"golang.org/x/sync/singleflight"
)

// Triggers recorded in metrics and logs
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// ProviderAll selects every registered provider in RunSyncNow
const ProviderAll = "all"

// ErrSkipped means another process holds the cycle lock
var ErrSkipped = fmt.Errorf("sync already running elsewhere: %w", domain.ErrConflict)

// SyncFunc runs one sync cycle for a provider across all of its active integrations
type SyncFunc func(ctx context.Context) error

type Config struct {
	Interval time.Duration
	Locker   Locker
	Logger   *slog.Logger
}

// Status is a snapshot of the scheduler
type Status struct {
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"lastRunAt"`
	NextRunAt *time.Time `json:"nextRunAt"`
	LastError string     `json:"lastError,omitempty"`
	Providers []string   `json:"providers"`
}

// Scheduler owns the recurring sync timer. It is STOPPED until Start and
// returns to STOPPED on Stop; RunSyncNow works in either state.
type Scheduler struct {
	interval time.Duration
	locker   Locker
	log      *slog.Logger
	syncers  map[string]SyncFunc
	flight   singleflight.Group

	mu        sync.Mutex
	cron      *gocron.Scheduler
	job       *gocron.Job
	lastRunAt *time.Time
	lastErr   string
}

func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.Locker == nil {
		cfg.Locker = LocalLocker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		interval: cfg.Interval,
		locker:   cfg.Locker,
		log:      cfg.Logger.With(slog.String("component", "sync_scheduler")),
		syncers:  make(map[string]SyncFunc),
	}
}

// Register adds a provider cycle. Call before Start.
func (s *Scheduler) Register(provider string, fn SyncFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncers[provider] = fn
}

// Start arms the timer. The first tick fires one interval from now. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	cron := gocron.NewScheduler(time.UTC)
	job, err := cron.Every(s.interval).WaitForSchedule().SingletonMode().Do(s.tick)
	if err != nil {
		return fmt.Errorf("schedule sync job: %w", err)
	}
	cron.StartAsync()

	s.cron = cron
	s.job = job
	s.log.Info("Sync scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop cancels the timer. A tick already in flight finishes; no new tick starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cron := s.cron
	s.cron = nil
	s.job = nil
	s.mu.Unlock()

	if cron == nil {
		return
	}
	// outside the mutex: an in-flight tick needs it to record its result
	cron.Stop()
	s.log.Info("Sync scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:   s.cron != nil,
		Interval:  s.interval.String(),
		LastRunAt: s.lastRunAt,
		LastError: s.lastErr,
		Providers: s.providers(),
	}
	if s.job != nil {
		if next := s.job.NextRun(); !next.IsZero() {
			st.NextRunAt = &next
		}
	}
	return st
}

// RunSyncNow runs one cycle synchronously and returns its error. provider may be
// a registered provider or ProviderAll. A caller arriving while the same provider
// is syncing waits for and shares that run's result.
func (s *Scheduler) RunSyncNow(ctx context.Context, provider string) error {
	if provider == "" || provider == ProviderAll {
		var errs []error
		for _, p := range s.Providers() {
			if err := s.run(ctx, p, TriggerManual); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p, err))
			}
		}
		return errors.Join(errs...)
	}

	s.mu.Lock()
	_, ok := s.syncers[provider]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrValidationFailed, provider)
	}
	return s.run(ctx, provider, TriggerManual)
}

func (s *Scheduler) Providers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providers()
}

func (s *Scheduler) providers() []string {
	names := make([]string, 0, len(s.syncers))
	for name := range s.syncers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// tick runs every provider; failures are logged and never stop the timer
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	for _, provider := range s.Providers() {
		if err := s.run(ctx, provider, TriggerTimer); err != nil && !errors.Is(err, ErrSkipped) {
			s.log.Error("Scheduled sync failed", slog.String("provider", provider), slog.Any("error", err))
		}
	}
}

// run joins or starts the provider's cycle. The cycle outlives any single
// caller's cancellation and is bounded by the interval instead.
func (s *Scheduler) run(ctx context.Context, provider, trigger string) error {
	ch := s.flight.DoChan(provider, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.interval)
		defer cancel()
		return nil, s.runLocked(runCtx, provider, trigger)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runLocked(ctx context.Context, provider, trigger string) error {
	s.mu.Lock()
	fn := s.syncers[provider]
	s.mu.Unlock()

	release, ok, err := s.locker.TryLock(ctx, "sync:"+provider, s.interval)
	if err != nil {
		return err
	}
	if !ok {
		metrics.SyncRunsTotal.WithLabelValues(provider, trigger, metrics.ResultSkipped).Inc()
		s.log.Info("Sync skipped, lock held elsewhere", slog.String("provider", provider))
		return ErrSkipped
	}
	defer release()

	start := time.Now()
	err = fn(ctx)
	finished := time.Now()

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.SyncRunsTotal.WithLabelValues(provider, trigger, result).Inc()

	s.mu.Lock()
	s.lastRunAt = &finished
	s.lastErr = ""
	if err != nil {
		s.lastErr = fmt.Sprintf("%s: %v", provider, err)
	}
	s.mu.Unlock()

	s.log.Info("Sync cycle finished",
		slog.String("provider", provider),
		slog.String("trigger", trigger),
		slog.Duration("duration", finished.Sub(start)),
		slog.String("result", result))
	return err
}
