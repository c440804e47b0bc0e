// Package backend is the HTTP client for the fraud detection backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sentinel-labs/fraud-monitor/internal/domain/hotspot"
	"github.com/sentinel-labs/fraud-monitor/internal/domain/transaction"
	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
	"github.com/sentinel-labs/fraud-monitor/internal/infrastructure/telemetry"
)

// Backend endpoints
const (
	PathDashboardData      = "/api/dashboard-data"
	PathHeatMapData        = "/api/heat-map-data"
	PathProcessTransaction = "/api/process-transaction"
)

// Error codes
const (
	CodeUnavailable = "BACKEND_UNAVAILABLE"
	CodeError       = "BACKEND_ERROR"
	CodeBadResponse = "BACKEND_BAD_RESPONSE"
)

const maxErrorBody = 64 << 10

// Client talks to the backend's fixed HTTP contract
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	logger   *zap.Logger
	tracer   trace.Tracer
	validate *validator.Validate
}

// NewClient creates a client for baseURL, e.g. "http://localhost:5000"
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:   logger.Named("backend"),
		tracer:   telemetry.Tracer("fraud-monitor/backend"),
		validate: validator.New(),
	}, nil
}

// DashboardData fetches recent transactions and the aggregate counters
func (c *Client) DashboardData(ctx context.Context) (transaction.DashboardData, error) {
	var data transaction.DashboardData
	err := c.do(ctx, "backend.DashboardData", http.MethodGet, PathDashboardData, nil, &data)
	return data, err
}

// HeatMapData fetches the hotspot aggregates
func (c *Client) HeatMapData(ctx context.Context) ([]hotspot.Aggregate, error) {
	var aggregates []hotspot.Aggregate
	if err := c.do(ctx, "backend.HeatMapData", http.MethodGet, PathHeatMapData, nil, &aggregates); err != nil {
		return nil, err
	}
	if aggregates == nil {
		aggregates = []hotspot.Aggregate{}
	}
	return aggregates, nil
}

// ProcessTransaction submits a transaction for analysis and returns the
// backend's decision.
func (c *Client) ProcessTransaction(ctx context.Context, sub transaction.Submission) (transaction.Event, error) {
	if err := c.validate.Struct(sub); err != nil {
		return transaction.Event{}, apperrors.NewValidationError("INVALID_SUBMISSION", err.Error())
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return transaction.Event{}, apperrors.NewInternalError("failed to encode submission").WithCause(err)
	}

	var result transaction.Event
	err = c.do(ctx, "backend.ProcessTransaction", http.MethodPost, PathProcessTransaction, body, &result)
	return result, err
}

func (c *Client) do(ctx context.Context, spanName, method, path string, body []byte, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	endpoint := c.baseURL.JoinPath(path).String()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperrors.NewInternalError("failed to build backend request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.WithTrace(ctx, c.logger).Debug("backend request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return apperrors.NewExternalError(CodeUnavailable, "fraud backend is unreachable").WithCause(err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewExternalError(CodeBadResponse,
			fmt.Sprintf("malformed response from %s", path)).WithCause(err)
	}
	return nil
}

// decodeError maps a non-2xx response onto an AppError, using the
// backend's {"error": "..."} body when present.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error string `json:"error"`
	}
	msg := fmt.Sprintf("backend returned %d", resp.StatusCode)
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	code := CodeError
	if resp.StatusCode == http.StatusBadGateway ||
		resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusGatewayTimeout {
		code = CodeUnavailable
	}
	return apperrors.NewExternalError(code, msg).
		WithCause(fmt.Errorf("status %d", resp.StatusCode))
}
