package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/sentinel-labs/fraud-monitor/internal/errors"
)

const apiVersion = "v1"

func meta(r *http.Request) ResponseMeta {
	return ResponseMeta{
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC(),
		Version:   apiVersion,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    meta(r),
	})
}

// writeError maps err onto a status code and an error envelope
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, resp := errorResponse(err)
	if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.IsValid() {
		resp.TraceID = sc.TraceID().String()
	}

	if status >= http.StatusInternalServerError {
		logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta:    meta(r),
	})
}

func errorResponse(err error) (int, *ErrorResponse) {
	if appErr, ok := apperrors.As(err); ok {
		status := appErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Type:      string(appErr.Type),
			Retryable: appErr.Retryable,
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, &ErrorResponse{Code: "REQUEST_CANCELED", Message: "Request was canceled"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, &ErrorResponse{Code: "REQUEST_TIMEOUT", Message: "Request timed out", Retryable: true}
	}
	return http.StatusInternalServerError, &ErrorResponse{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}
}
