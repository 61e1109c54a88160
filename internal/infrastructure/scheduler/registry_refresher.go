package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Reloader rebuilds the tenant route table from its sources
type Reloader interface {
	Reload(ctx context.Context) error
}

// RefresherConfig holds configuration for the registry refresher
type RefresherConfig struct {
	// Interval between two reloads
	Interval time.Duration

	// Timeout bounds a single reload
	Timeout time.Duration
}

// DefaultRefresherConfig returns default refresher configuration
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Validate checks the configuration
func (c RefresherConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// RefresherStats is a snapshot of the refresher's history
type RefresherStats struct {
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	LastSuccess time.Time `json:"last_success"`
}

// RegistryRefresher reloads the tenant registry on a fixed interval. It picks
// up workspaces provisioned or removed by other instances when no Redis
// invalidation channel is available, and retries datasources that failed to
// open earlier.
type RegistryRefresher struct {
	config   RefresherConfig
	reloader Reloader
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// one reload at a time, periodic or manual
	reloading   atomic.Bool
	runs        atomic.Int64
	failures    atomic.Int64
	lastSuccess atomic.Int64 // unix nanos
}

// NewRegistryRefresher creates a new refresher
func NewRegistryRefresher(config RefresherConfig, reloader Reloader, logger *zap.Logger) (*RegistryRefresher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if reloader == nil {
		return nil, fmt.Errorf("%w: reloader is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryRefresher{
		config:   config,
		reloader: reloader,
		logger:   logger,
	}, nil
}

// Start starts the refresh loop. Starting a running refresher is a no-op.
func (r *RegistryRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.runLoop(ctx)

	r.logger.Info("Registry refresher started",
		zap.Duration("interval", r.config.Interval),
		zap.Duration("timeout", r.config.Timeout),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight reload until ctx expires
func (r *RegistryRefresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Registry refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshNow reloads immediately. It fails with ErrRefreshInProgress rather
// than queueing behind a running reload.
func (r *RegistryRefresher) RefreshNow(ctx context.Context) error {
	if !r.reloading.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	defer r.reloading.Store(false)
	return r.reload(ctx)
}

// Stats returns a snapshot of the refresher's history
func (r *RegistryRefresher) Stats() RefresherStats {
	stats := RefresherStats{
		Runs:     r.runs.Load(),
		Failures: r.failures.Load(),
	}
	if ns := r.lastSuccess.Load(); ns != 0 {
		stats.LastSuccess = time.Unix(0, ns)
	}
	return stats
}

func (r *RegistryRefresher) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshNow(ctx); err != nil && ctx.Err() == nil {
				r.logger.Debug("Scheduled registry refresh skipped", zap.Error(err))
			}
		}
	}
}

func (r *RegistryRefresher) reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	r.runs.Add(1)
	if err := r.reloader.Reload(ctx); err != nil {
		r.failures.Add(1)
		r.logger.Warn("Registry refresh failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	r.lastSuccess.Store(time.Now().UnixNano())
	r.logger.Debug("Registry refreshed", zap.Duration("duration", time.Since(start)))
	return nil
}
