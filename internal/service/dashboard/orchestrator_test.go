package dashboard

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/service/alerting"
	"github.com/sentinel-labs/fraud-monitor/internal/service/history"
)

type mockFetcher struct {
	mock.Mock
	calls atomic.Int32
}

func (m *mockFetcher) DashboardData(ctx context.Context) (transaction.DashboardData, error) {
	m.calls.Add(1)
	args := m.Called(ctx)
	data, _ := args.Get(0).(transaction.DashboardData)
	return data, args.Error(1)
}

func event(id string, action transaction.Action, risk float64) transaction.Event {
	return transaction.Event{
		ID:        id,
		Amount:    decimal.NewFromFloat(120.5),
		RiskScore: risk,
		Action:    action,
	}
}

func newStarted(t *testing.T, fetcher Fetcher, opts ...Option) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(fetcher, zaptest.NewLogger(t), opts...)
	o.Start(context.Background())
	t.Cleanup(o.Close)
	require.Eventually(t, func() bool { return !o.View().RefreshedAt.IsZero() }, time.Second, time.Millisecond)
	return o
}

func emptyFetcher() *mockFetcher {
	f := &mockFetcher{}
	f.On("DashboardData", mock.Anything).Return(transaction.DashboardData{}, nil)
	return f
}

// waitVersion blocks until a snapshot newer than v is published
func waitVersion(t *testing.T, o *Orchestrator, v uint64) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return o.View().Version > v }, time.Second, time.Millisecond)
	return o.View()
}

func TestOrchestrator_InitialState(t *testing.T) {
	o := NewOrchestrator(emptyFetcher(), zaptest.NewLogger(t))
	defer o.Close()

	snap := o.View()
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.Alerts)
	assert.Zero(t, snap.Stats.Total)
	assert.Equal(t, 0.0, o.FraudRate())
	assert.Nil(t, snap.LastError)
}

func TestOrchestrator_RefreshReplacesHistoryAndStats(t *testing.T) {
	records := make([]transaction.Event, 100)
	for i := range records {
		records[i] = event(fmt.Sprintf("TXN_%03d", i), transaction.ActionApprove, 0.1)
	}
	fetcher := &mockFetcher{}
	fetcher.On("DashboardData", mock.Anything).Return(transaction.DashboardData{
		RecentTransactions: records,
		Stats:              transaction.Stats{Total: 200, Flagged: 20, Blocked: 10},
	}, nil)

	o := newStarted(t, fetcher)
	require.NoError(t, o.Refresh(context.Background()))

	snap := o.View()
	require.Len(t, snap.History, history.Capacity)
	assert.Equal(t, "TXN_000", snap.History[0].ID)
	assert.Equal(t, "TXN_049", snap.History[history.Capacity-1].ID)
	assert.Equal(t, int64(200), snap.Stats.Total)
	assert.Equal(t, 15.0, snap.FraudRate)
	assert.False(t, snap.RefreshedAt.IsZero())
}

func TestOrchestrator_LiveEventsOrderedAndAlerted(t *testing.T) {
	o := newStarted(t, emptyFetcher())
	require.NoError(t, o.Refresh(context.Background()))
	v := o.View().Version

	o.HandleEvent(event("TXN_1", transaction.ActionApprove, 0.1))
	o.HandleEvent(event("TXN_2", transaction.ActionBlock, 0.2))
	o.HandleEvent(event("TXN_3", transaction.ActionFlag, 0.9))

	require.Eventually(t, func() bool { return len(o.View().History) == 3 }, time.Second, time.Millisecond)
	snap := waitVersion(t, o, v)

	ids := []string{snap.History[0].ID, snap.History[1].ID, snap.History[2].ID}
	assert.Equal(t, []string{"TXN_3", "TXN_2", "TXN_1"}, ids)

	require.Len(t, snap.Alerts, 2)
	assert.Equal(t, "TXN_3", snap.Alerts[0].TransactionID)
	assert.Equal(t, alerting.ClassFlag, snap.Alerts[0].Class)
	assert.Equal(t, "TXN_2", snap.Alerts[1].TransactionID)
	assert.Equal(t, alerting.ClassBlock, snap.Alerts[1].Class)
}

func TestOrchestrator_HistoryCap(t *testing.T) {
	o := newStarted(t, emptyFetcher())
	for i := 0; i < 60; i++ {
		o.HandleEvent(event(fmt.Sprintf("TXN_%d", i), transaction.ActionApprove, 0.1))
	}

	require.Eventually(t, func() bool {
		h := o.View().History
		return len(h) == history.Capacity && h[0].ID == "TXN_59"
	}, time.Second, time.Millisecond)
	assert.Equal(t, "TXN_10", o.View().History[history.Capacity-1].ID)
}

func TestOrchestrator_RefreshDoesNotTouchAlerts(t *testing.T) {
	o := newStarted(t, emptyFetcher())
	o.HandleEvent(event("TXN_1", transaction.ActionBlock, 0.9))
	require.Eventually(t, func() bool { return len(o.View().Alerts) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, o.Refresh(context.Background()))
	snap := o.View()
	assert.Empty(t, snap.History)
	assert.Len(t, snap.Alerts, 1)
}

func TestOrchestrator_RefreshFailureKeepsView(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("DashboardData", mock.Anything).Return(transaction.DashboardData{
		RecentTransactions: []transaction.Event{event("TXN_1", transaction.ActionApprove, 0.1)},
		Stats:              transaction.Stats{Total: 10, Flagged: 1},
	}, nil).Once()
	fetcher.On("DashboardData", mock.Anything).
		Return(transaction.DashboardData{}, apperrors.NewExternalError("BACKEND_UNAVAILABLE", "connection refused")).Once()
	fetcher.On("DashboardData", mock.Anything).Return(transaction.DashboardData{}, nil).Once()

	o := NewOrchestrator(fetcher, zaptest.NewLogger(t))
	o.Start(context.Background()) // consumes the first response
	defer o.Close()
	require.Eventually(t, func() bool { return len(o.View().History) == 1 }, time.Second, time.Millisecond)

	err := o.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))

	snap := o.View()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "BACKEND_UNAVAILABLE", snap.LastError.Code)
	assert.Len(t, snap.History, 1)
	assert.Equal(t, int64(10), snap.Stats.Total)

	require.NoError(t, o.Refresh(context.Background()))
	assert.Nil(t, o.View().LastError)
	fetcher.AssertExpectations(t)
}

func TestOrchestrator_DismissAndClear(t *testing.T) {
	o := newStarted(t, emptyFetcher())
	for i := 0; i < 3; i++ {
		o.HandleEvent(event(fmt.Sprintf("TXN_%d", i), transaction.ActionBlock, 0.9))
	}
	require.Eventually(t, func() bool { return len(o.View().Alerts) == 3 }, time.Second, time.Millisecond)

	ctx := context.Background()
	before := o.View().Alerts

	removed, err := o.Dismiss(ctx, before[1].ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []alerting.Entry{before[0], before[2]}, o.View().Alerts)

	removed, err = o.Dismiss(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, o.ClearAlerts(ctx))
	assert.Empty(t, o.View().Alerts)
}

func TestOrchestrator_Subscribe(t *testing.T) {
	o := newStarted(t, emptyFetcher())
	updates, unsubscribe := o.Subscribe()
	defer unsubscribe()

	o.HandleEvent(event("TXN_1", transaction.ActionApprove, 0.1))

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestOrchestrator_PeriodicRefresh(t *testing.T) {
	fetcher := emptyFetcher()
	newStarted(t, fetcher, WithRefreshInterval(10*time.Millisecond))

	assert.Eventually(t, func() bool {
		return fetcher.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_Close(t *testing.T) {
	o := NewOrchestrator(emptyFetcher(), zaptest.NewLogger(t))
	o.Start(context.Background())
	o.Close()
	o.Close()

	version := o.View().Version
	o.HandleEvent(event("TXN_1", transaction.ActionBlock, 0.9))

	err := o.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = o.Dismiss(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, version, o.View().Version)
}

func TestOrchestrator_CommandsVisibleOnReturn(t *testing.T) {
	o := newStarted(t, emptyFetcher())
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		v := o.View().Version
		require.NoError(t, o.Refresh(ctx))
		require.Greater(t, o.View().Version, v, "refresh %d returned before publishing", i)

		o.HandleEvent(event(fmt.Sprintf("TXN_%d", i), transaction.ActionBlock, 0.9))
		require.Eventually(t, func() bool { return len(o.View().Alerts) == 1 }, time.Second, time.Millisecond)

		id := o.View().Alerts[0].ID
		removed, err := o.Dismiss(ctx, id)
		require.NoError(t, err)
		require.True(t, removed)
		require.Empty(t, o.View().Alerts, "dismiss %d returned before publishing", i)

		o.HandleEvent(event(fmt.Sprintf("TXN_%d_b", i), transaction.ActionFlag, 0.95))
		require.Eventually(t, func() bool { return len(o.View().Alerts) == 1 }, time.Second, time.Millisecond)
		require.NoError(t, o.ClearAlerts(ctx))
		require.Empty(t, o.View().Alerts, "clear %d returned before publishing", i)
	}
}

func TestOrchestrator_NotStarted(t *testing.T) {
	fetcher := emptyFetcher()
	o := NewOrchestrator(fetcher, zaptest.NewLogger(t))
	defer o.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := o.Refresh(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, ctx.Err())
	assert.Zero(t, fetcher.calls.Load())

	_, err = o.Dismiss(ctx, "x")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, o.ClearAlerts(ctx), ErrNotStarted)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2*actionBuffer; i++ {
			o.HandleEvent(event(fmt.Sprintf("TXN_%d", i), transaction.ActionBlock, 0.9))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleEvent blocked before Start")
	}
	assert.Empty(t, o.View().History)

	appErr, ok := apperrors.As(ErrNotStarted)
	require.True(t, ok)
	assert.Equal(t, "VIEW_NOT_STARTED", appErr.Code)
}
