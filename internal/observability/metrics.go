package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GridMetrics holds custom metrics for grid requests
type GridMetrics struct {
	requestDuration    metric.Float64Histogram
	requestCounter     metric.Int64Counter
	activeRequests     metric.Int64UpDownCounter
	rowsReturned       metric.Int64Histogram
	validationFailures metric.Int64Counter
}

// InitGridMetrics initializes grid-specific metrics
func InitGridMetrics() (*GridMetrics, error) {
	meter := otel.Meter("gridquery")

	requestDuration, err := meter.Float64Histogram(
		"gridquery.grid.request.duration",
		metric.WithDescription("Duration of grid requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"gridquery.grid.requests",
		metric.WithDescription("Total number of grid requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"gridquery.grid.requests.active",
		metric.WithDescription("Number of grid requests in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	rowsReturned, err := meter.Int64Histogram(
		"gridquery.grid.rows_returned",
		metric.WithDescription("Number of rows returned by list requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows returned histogram: %w", err)
	}

	validationFailures, err := meter.Int64Counter(
		"gridquery.grid.validation_failures",
		metric.WithDescription("Number of writes rejected by validation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation failures counter: %w", err)
	}

	return &GridMetrics{
		requestDuration:    requestDuration,
		requestCounter:     requestCounter,
		activeRequests:     activeRequests,
		rowsReturned:       rowsReturned,
		validationFailures: validationFailures,
	}, nil
}

// RecordRequest records a grid request with its duration and outcome
func (m *GridMetrics) RecordRequest(ctx context.Context, duration time.Duration, grid, action, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("grid", grid),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
}

// RecordRowsReturned records the number of rows in a list response
func (m *GridMetrics) RecordRowsReturned(ctx context.Context, grid string, rows int) {
	if m == nil {
		return
	}
	m.rowsReturned.Record(ctx, int64(rows), metric.WithAttributes(
		attribute.String("grid", grid),
	))
}

// RecordValidationFailure records a write rejected by validation
func (m *GridMetrics) RecordValidationFailure(ctx context.Context, grid, action string) {
	if m == nil {
		return
	}
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grid", grid),
		attribute.String("action", action),
	))
}

// IncrementActiveRequests increments the active requests counter
func (m *GridMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *GridMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics
func InitMetrics(logger *slog.Logger) (*GridMetrics, *SecurityMetrics, error) {
	grid, err := InitGridMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize grid metrics: %w", err)
	}
	security, err := InitSecurityMetrics()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize security metrics: %w", err)
	}

	logger.Info("custom grid metrics initialized")
	return grid, security, nil
}
