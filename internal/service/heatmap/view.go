package heatmap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/hotspot"
	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
)

// DefaultRefreshInterval is how often the overlay is refetched
const DefaultRefreshInterval = 30 * time.Second

// Fetcher loads the current hotspot aggregates
type Fetcher interface {
	HeatMapData(ctx context.Context) ([]hotspot.Aggregate, error)
}

// State is an immutable view of the overlay. LastError is set when the most
// recent fetch failed; Cells then still hold the previous successful result.
type State struct {
	Cells       []Cell              `json:"cells"`
	Aggregates  int                 `json:"aggregates"`
	LastError   *apperrors.AppError `json:"last_error,omitempty"`
	RefreshedAt time.Time           `json:"refreshed_at"`
}

// View owns the heat map state and its refresh timer
type View struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Registry

	state atomic.Pointer[State]

	// fetchMu serializes fetches and guards closed
	fetchMu sync.Mutex
	closed  bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option configures a View
type Option func(*View)

func WithInterval(d time.Duration) Option {
	return func(v *View) {
		if d > 0 {
			v.interval = d
		}
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(v *View) { v.metrics = m }
}

// NewView creates a heat map view. It does not fetch until Start is called.
func NewView(fetcher Fetcher, logger *zap.Logger, opts ...Option) *View {
	v := &View{
		fetcher:  fetcher,
		interval: DefaultRefreshInterval,
		logger:   logger.Named("heatmap"),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.state.Store(&State{Cells: []Cell{}})
	return v
}

// Start fetches immediately and then on every interval until ctx is done
// or Close is called.
func (v *View) Start(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started {
		return
	}
	v.started = true

	ctx, v.cancel = context.WithCancel(ctx)
	v.wg.Add(1)
	go v.loop(ctx)
}

func (v *View) loop(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	_ = v.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = v.Refresh(ctx)
		}
	}
}

// Refresh fetches the aggregates now. On failure the previous cells are kept
// and the error is recorded in State and returned. After Close, Refresh is a
// no-op.
func (v *View) Refresh(ctx context.Context) error {
	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()
	if v.closed {
		return nil
	}

	start := time.Now()
	aggregates, err := v.fetcher.HeatMapData(ctx)
	v.metrics.RecordRefresh(metrics.SourceHeatmap, time.Since(start), err)

	prev := v.state.Load()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		appErr := apperrors.From(err)
		v.logger.Warn("heat map refresh failed", zap.Error(err))
		next := *prev
		next.LastError = appErr
		v.state.Store(&next)
		return appErr
	}

	v.state.Store(&State{
		Cells:       Overlay(aggregates),
		Aggregates:  len(aggregates),
		RefreshedAt: time.Now().UTC(),
	})
	v.logger.Debug("heat map refreshed", zap.Int("aggregates", len(aggregates)))
	return nil
}

// State returns the current overlay
func (v *View) State() State {
	return *v.state.Load()
}

// Close stops periodic refresh and waits for an in-flight fetch. No fetch
// starts after Close returns and a later Start does nothing.
func (v *View) Close() {
	v.mu.Lock()
	v.started = true
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()

	v.wg.Wait()

	v.fetchMu.Lock()
	v.closed = true
	v.fetchMu.Unlock()
}
