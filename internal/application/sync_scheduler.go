package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shopify-insights/internal/infrastructure/metrics"
	"shopify-insights/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultSyncInterval matches the every-minute cron of the dashboard backend
	DefaultSyncInterval = time.Minute
	// DefaultSyncConcurrency bounds how many tenants sync at once
	DefaultSyncConcurrency = 4
)

// Ticker is the subset of time.Ticker the scheduler needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds the scheduler's ticker; tests substitute a manual one
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// SchedulerConfig holds configuration for the sync scheduler
type SchedulerConfig struct {
	// Interval is how often every tenant is synced
	Interval time.Duration
	// Concurrency is the maximum number of tenants synced in parallel
	Concurrency int
}

// TickReport holds the per-tenant outcomes of one scheduler cycle
type TickReport struct {
	StartedAt time.Time          `json:"startedAt"`
	Results   []TenantSyncResult `json:"results"`
}

// Result returns the outcome for a tenant, or nil when it was not part of the tick
func (r *TickReport) Result(tenantID string) *TenantSyncResult {
	for i := range r.Results {
		if r.Results[i].TenantID == tenantID {
			return &r.Results[i]
		}
	}
	return nil
}

// SyncScheduler periodically syncs every tenant
type SyncScheduler struct {
	tenants   ports.TenantRepository
	syncer    *SyncService
	config    SchedulerConfig
	newTicker TickerFactory
	clock     ports.Clock
	logger    zerolog.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewSyncScheduler creates a new scheduler. A nil ticker factory or clock uses the real ones.
func NewSyncScheduler(
	tenants ports.TenantRepository,
	syncer *SyncService,
	config SchedulerConfig,
	newTicker TickerFactory,
	clock ports.Clock,
	logger zerolog.Logger,
) *SyncScheduler {
	// Apply defaults
	if config.Interval <= 0 {
		config.Interval = DefaultSyncInterval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultSyncConcurrency
	}
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &SyncScheduler{
		tenants:   tenants,
		syncer:    syncer,
		config:    config,
		newTicker: newTicker,
		clock:     clock,
		logger:    logger,
	}
}

// Start starts the scheduler loop; the first cycle runs immediately
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	stopCh := make(chan struct{})
	stoppedC := make(chan struct{})
	s.stopCh = stopCh
	s.stoppedC = stoppedC
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Int("concurrency", s.config.Concurrency).
		Msg("Starting sync scheduler")

	go s.loop(ctx, stopCh, stoppedC)
	return nil
}

// Stop stops the scheduler, waiting for an in-flight cycle until ctx is done
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping sync scheduler...")
	close(stopCh)

	select {
	case <-stoppedC:
		s.logger.Info().Msg("Sync scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn().Msg("Sync scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *SyncScheduler) loop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := s.newTicker(s.config.Interval)
	defer ticker.Stop()

	s.runTick(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C():
			s.runTick(ctx)
		}
	}
}

func (s *SyncScheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled sync cycle failed")
	}
}

// Tick runs one cycle synchronously: every tenant is synced in its own goroutine under
// the concurrency bound. Per-tenant failures are reported, never returned.
func (s *SyncScheduler) Tick(ctx context.Context) (*TickReport, error) {
	metrics.SchedulerTicksTotal.Inc()
	report := &TickReport{StartedAt: s.clock.Now()}

	tenants, err := s.tenants.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list tenants: %w", err)
	}

	results := make([]TenantSyncResult, len(tenants))
	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, tenant := range tenants {
		i, tenant := i, tenant
		g.Go(func() error {
			results[i] = *s.syncer.SyncTenant(ctx, tenant, TriggerScheduled)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	s.logTick(report)
	return report, nil
}

func (s *SyncScheduler) logTick(report *TickReport) {
	counts := map[string]int{}
	for _, r := range report.Results {
		counts[r.Status]++
	}
	s.logger.Info().
		Int("tenants", len(report.Results)).
		Int(metrics.StatusSuccess, counts[metrics.StatusSuccess]).
		Int(metrics.StatusPartial, counts[metrics.StatusPartial]).
		Int(metrics.StatusFailed, counts[metrics.StatusFailed]).
		Int(metrics.StatusSkipped, counts[metrics.StatusSkipped]).
		Msg("Scheduled sync cycle finished")
}

