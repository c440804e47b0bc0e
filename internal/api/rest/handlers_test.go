package rest

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/values"
	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
	"github.com/sentinel-labs/fraud-monitor/internal/service/alerting"
	"github.com/sentinel-labs/fraud-monitor/internal/service/dashboard"
	"github.com/sentinel-labs/fraud-monitor/internal/service/heatmap"
)

type mockDashboard struct {
	mock.Mock
	snap dashboard.Snapshot
}

func (m *mockDashboard) View() dashboard.Snapshot { return m.snap }

func (m *mockDashboard) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockDashboard) Dismiss(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockDashboard) ClearAlerts(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockHeatmap struct {
	mock.Mock
	state heatmap.State
}

func (m *mockHeatmap) State() heatmap.State { return m.state }

func (m *mockHeatmap) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type liveStatus bool

func (l liveStatus) Connected() bool { return bool(l) }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorResponse  `json:"error"`
}

func newRouter(t *testing.T, d *mockDashboard, h *mockHeatmap, burst int) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	handler := NewHandler(d, h, liveStatus(true), func() int { return 2 }, "test", logger)
	return NewRouter(handler, RouterConfig{
		AllowedOrigins: []string{"*"},
		RefreshRate:    0.001,
		RefreshBurst:   burst,
		Metrics:        metrics.NewRegistry(reg),
		Gatherer:       reg,
	}, logger)
}

func do(t *testing.T, router http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func sampleSnapshot() dashboard.Snapshot {
	return dashboard.Snapshot{
		Version: 4,
		History: []transaction.Event{
			{
				ID: "TXN_1", Amount: decimal.NewFromInt(2500), RiskScore: 0.9, Action: transaction.ActionBlock,
				Location: &transaction.Location{Lat: values.NewCoordinate(51.5), Lng: values.NewCoordinate(-0.12), City: "London"},
			},
			{ID: "TXN_2", Amount: decimal.NewFromInt(12), RiskScore: 0.1, Action: transaction.ActionApprove},
		},
		Stats:     transaction.Stats{Total: 200, Flagged: 20, Blocked: 10},
		FraudRate: 15,
		Alerts:    []alerting.Entry{{ID: "a1", Message: "BLOCK: Transaction TXN_1 - $2500.00 (Risk: 90.0%)", Class: alerting.ClassBlock}},
	}
}

func TestHealth(t *testing.T) {
	router := newRouter(t, &mockDashboard{}, &mockHeatmap{}, 1)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.LiveConnected)
	assert.Equal(t, 2, resp.Subscribers)
}

func TestSnapshot(t *testing.T) {
	router := newRouter(t, &mockDashboard{snap: sampleSnapshot()}, &mockHeatmap{}, 1)
	rec, env := do(t, router, http.MethodGet, "/api/v1/snapshot")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	var snap dashboard.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, uint64(4), snap.Version)
	assert.Equal(t, 15.0, snap.FraudRate)
	assert.Len(t, snap.History, 2)
}

func TestAlerts(t *testing.T) {
	d := &mockDashboard{snap: sampleSnapshot()}
	d.On("Dismiss", mock.Anything, "a1").Return(true, nil)
	d.On("Dismiss", mock.Anything, "missing").Return(false, nil)
	d.On("ClearAlerts", mock.Anything).Return(nil)
	router := newRouter(t, d, &mockHeatmap{}, 1)

	rec, env := do(t, router, http.MethodGet, "/api/v1/alerts")
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts AlertsResponse
	require.NoError(t, json.Unmarshal(env.Data, &alerts))
	assert.Equal(t, 1, alerts.Count)

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/alerts/a1")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, router, http.MethodDelete, "/api/v1/alerts/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RESOURCE_NOT_FOUND", env.Error.Code)

	rec, _ = do(t, router, http.MethodDelete, "/api/v1/alerts")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	d.AssertExpectations(t)
}

func TestMarkers(t *testing.T) {
	router := newRouter(t, &mockDashboard{snap: sampleSnapshot()}, &mockHeatmap{}, 1)
	rec, env := do(t, router, http.MethodGet, "/api/v1/markers")

	require.Equal(t, http.StatusOK, rec.Code)
	var markers MarkersResponse
	require.NoError(t, json.Unmarshal(env.Data, &markers))
	require.Equal(t, 1, markers.Count, "events without a location are skipped")
	assert.Equal(t, "TXN_1", markers.Markers[0].TransactionID)
	assert.Equal(t, "#F44336", markers.Markers[0].Color)
}

func TestHeatmap(t *testing.T) {
	h := &mockHeatmap{state: heatmap.State{
		Cells:     []heatmap.Cell{{Lat: 1, Lng: 2, Color: heatmap.ColorCritical, Radius: 45}},
		LastError: apperrors.NewExternalError("BACKEND_UNAVAILABLE", "down"),
	}}
	router := newRouter(t, &mockDashboard{}, h, 1)
	rec, env := do(t, router, http.MethodGet, "/api/v1/heatmap")

	require.Equal(t, http.StatusOK, rec.Code)
	var state heatmap.State
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Len(t, state.Cells, 1)
	require.NotNil(t, state.LastError)
	assert.True(t, state.LastError.Retryable)
}

func TestRefresh(t *testing.T) {
	d := &mockDashboard{snap: sampleSnapshot()}
	d.On("Refresh", mock.Anything).Return(nil)
	h := &mockHeatmap{}
	h.On("Refresh", mock.Anything).Return(nil)
	router := newRouter(t, d, h, 1)

	rec, env := do(t, router, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RefreshResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, uint64(4), resp.Version)

	rec, env = do(t, router, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperrors.ErrorTypeRateLimited), env.Error.Type)
}

func TestRefresh_BackendDown(t *testing.T) {
	d := &mockDashboard{}
	d.On("Refresh", mock.Anything).
		Return(apperrors.NewExternalError("BACKEND_UNAVAILABLE", "fraud backend is unreachable"))
	h := &mockHeatmap{}
	router := newRouter(t, d, h, 1)

	rec, env := do(t, router, http.MethodPost, "/api/v1/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BACKEND_UNAVAILABLE", env.Error.Code)
	assert.True(t, env.Error.Retryable)
	h.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestNotFoundAndMetrics(t *testing.T) {
	router := newRouter(t, &mockDashboard{}, &mockHeatmap{}, 1)

	rec, env := do(t, router, http.MethodGet, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ENDPOINT_NOT_FOUND", env.Error.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fraudmonitor_api_request_duration_seconds")
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	router := newRouter(t, &mockDashboard{}, &mockHeatmap{}, 1)
	srv := NewServer(ServerConfig{ShutdownTimeout: time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second},
		router, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
