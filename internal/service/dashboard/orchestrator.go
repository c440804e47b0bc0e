// Package dashboard owns the dashboard view state and applies live events,
// refreshes and analyst commands to it one at a time.
package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
	"github.com/sentinel-labs/fraud-monitor/internal/service/alerting"
	"github.com/sentinel-labs/fraud-monitor/internal/service/history"
)

const actionBuffer = 256

var (
	// ErrClosed is returned by operations issued after Close
	ErrClosed = apperrors.NewUnavailableError("VIEW_CLOSED", "dashboard view is closed")
	// ErrNotStarted is returned by operations issued before Start
	ErrNotStarted = apperrors.NewUnavailableError("VIEW_NOT_STARTED", "dashboard view is not started")
)

// Fetcher loads the full dashboard payload
type Fetcher interface {
	DashboardData(ctx context.Context) (transaction.DashboardData, error)
}

// Orchestrator serializes every mutation of the view through a single
// goroutine. Readers only ever see published Snapshots.
type Orchestrator struct {
	fetcher  Fetcher
	logger   *zap.Logger
	metrics  *metrics.Registry
	interval time.Duration
	now      func() time.Time

	// owned by the loop goroutine
	history     *history.Reducer
	alerts      *alerting.Reducer
	stats       transaction.Stats
	lastErr     *apperrors.AppError
	refreshedAt time.Time
	version     uint64

	actions  chan action
	snapshot atomic.Pointer[Snapshot]

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
}

// action is one change applied by the loop. applied, when set, is closed
// once the resulting snapshot is published.
type action struct {
	apply   func()
	applied chan struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRefreshInterval enables periodic refresh. Zero disables it.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates a dashboard with empty history, zero stats and no
// alerts.
func NewOrchestrator(fetcher Fetcher, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		logger:  logger.Named("dashboard"),
		now:     time.Now,
		history: history.NewReducer(),
		alerts:  alerting.NewReducer(),
		actions: make(chan action, actionBuffer),
		subs:    make(map[chan struct{}]struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.publish()
	return o
}

// Start runs the owner loop, performs the initial refresh and, when
// configured, refreshes periodically until ctx is done or Close is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		ctx, o.cancel = context.WithCancel(ctx)
		o.started.Store(true)

		o.wg.Add(2)
		go o.run(ctx)
		go o.refreshLoop(ctx)
	})
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case a := <-o.actions:
			a.apply()
			o.publish()
			if a.applied != nil {
				close(a.applied)
			}
		}
	}
}

func (o *Orchestrator) refreshLoop(ctx context.Context) {
	defer o.wg.Done()

	_ = o.Refresh(ctx)
	if o.interval <= 0 {
		return
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case <-ticker.C:
			_ = o.Refresh(ctx)
		}
	}
}

// enqueue hands an action to the loop. It blocks while the queue is full so
// live events are never dropped or reordered.
func (o *Orchestrator) enqueue(ctx context.Context, a action) error {
	if err := o.ready(); err != nil {
		return err
	}
	select {
	case o.actions <- a:
		return nil
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ready reports why the loop cannot take work, if it cannot
func (o *Orchestrator) ready() error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	if !o.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// call runs fn on the loop and waits until its result is published
func (o *Orchestrator) call(ctx context.Context, fn func()) error {
	a := action{apply: fn, applied: make(chan struct{})}
	if err := o.enqueue(ctx, a); err != nil {
		return err
	}
	select {
	case <-a.applied:
		return nil
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent applies a live transaction: it is prepended to the history
// and raises an alert when it matches the alert policy. Events are applied
// in the order HandleEvent is called.
func (o *Orchestrator) HandleEvent(e transaction.Event) {
	err := o.enqueue(context.Background(), action{apply: func() {
		o.history.Prepend(e)
		entry, created, err := o.alerts.Apply(e)
		if err != nil {
			o.logger.Error("failed to raise alert", zap.String("transaction_id", e.ID), zap.Error(err))
			return
		}
		if created {
			o.metrics.RecordAlertRaised()
			o.logger.Info("alert raised",
				zap.String("alert_id", entry.ID),
				zap.String("transaction_id", e.ID),
				zap.String("class", string(entry.Class)))
		}
	}})
	if err != nil {
		o.logger.Debug("dropping live event", zap.String("transaction_id", e.ID), zap.Error(err))
	}
}

// Refresh fetches the dashboard payload and replaces history and stats.
// Alerts are untouched. On failure the previous view is kept, the error is
// recorded in the snapshot and returned.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if err := o.ready(); err != nil {
		return err
	}

	start := time.Now()
	data, err := o.fetcher.DashboardData(ctx)
	o.metrics.RecordRefresh(metrics.SourceDashboard, time.Since(start), err)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		appErr := apperrors.From(err)
		o.logger.Warn("dashboard refresh failed", zap.Error(err))
		if callErr := o.call(ctx, func() { o.lastErr = appErr }); callErr != nil {
			return callErr
		}
		return appErr
	}

	return o.call(ctx, func() {
		dropped := o.history.ReplaceAll(data.RecentTransactions)
		o.stats = data.Stats
		o.lastErr = nil
		o.refreshedAt = o.now().UTC()
		o.logger.Debug("dashboard refreshed",
			zap.Int("transactions", o.history.Len()),
			zap.Int("truncated", dropped),
			zap.Int64("total", data.Stats.Total))
	})
}

// Dismiss removes the alert with the given id and reports whether it existed
func (o *Orchestrator) Dismiss(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := o.call(ctx, func() {
		removed = o.alerts.Dismiss(id)
		if removed {
			o.metrics.RecordAlertsDismissed(1)
		}
	})
	return removed, err
}

// ClearAlerts dismisses every alert
func (o *Orchestrator) ClearAlerts(ctx context.Context) error {
	return o.call(ctx, func() {
		o.metrics.RecordAlertsDismissed(o.alerts.Len())
		o.alerts.Clear()
	})
}

// View returns the latest published snapshot
func (o *Orchestrator) View() Snapshot {
	return *o.snapshot.Load()
}

// FraudRate is the current fraud rate in percent, 0 when nothing was processed
func (o *Orchestrator) FraudRate() float64 {
	return o.View().FraudRate
}

// Subscribe returns a channel that receives a signal after every published
// change. Signals coalesce; receivers should read View() on each one. The
// returned func unsubscribes.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	o.subMu.Lock()
	o.subs[ch] = struct{}{}
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, ch)
			o.subMu.Unlock()
		})
	}
}

// publish must only be called from the loop, or before it starts
func (o *Orchestrator) publish() {
	o.version++
	snap := &Snapshot{
		Version:     o.version,
		History:     o.history.Records(),
		Stats:       o.stats,
		FraudRate:   o.stats.FraudRate(),
		Alerts:      o.alerts.Entries(),
		LastError:   o.lastErr,
		RefreshedAt: o.refreshedAt,
	}
	o.snapshot.Store(snap)
	o.metrics.SetViewSizes(len(snap.History), len(snap.Alerts))

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for ch := range o.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops periodic refresh and the owner loop and waits for both. No
// further changes are applied after Close returns.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
		if o.cancel != nil {
			o.cancel()
		}
		o.wg.Wait()
	})
}
