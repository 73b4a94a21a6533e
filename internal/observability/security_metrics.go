package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics holds metrics for the write-action token guard
type SecurityMetrics struct {
	authAttempts          metric.Int64Counter
	authFailures          metric.Int64Counter
	tokenValidationErrors metric.Int64Counter
}

// InitSecurityMetrics initializes security-specific metrics
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter("gridquery/security")

	authAttempts, err := meter.Int64Counter(
		"gridquery.security.write_auth_attempts",
		metric.WithDescription("Total number of write requests checked by the token guard"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}

	authFailures, err := meter.Int64Counter(
		"gridquery.security.write_auth_failures",
		metric.WithDescription("Total number of write requests rejected by the token guard"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}

	tokenValidationErrors, err := meter.Int64Counter(
		"gridquery.security.token_validation_errors",
		metric.WithDescription("Total number of token validation errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token validation errors counter: %w", err)
	}

	return &SecurityMetrics{
		authAttempts:          authAttempts,
		authFailures:          authFailures,
		tokenValidationErrors: tokenValidationErrors,
	}, nil
}

// RecordAuthAttempt records a guarded write request
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, grid string) {
	if m == nil {
		return
	}
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grid", grid),
	))
}

// RecordAuthFailure records a rejected write request
func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, grid, reason string) {
	if m == nil {
		return
	}
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grid", grid),
		attribute.String("reason", reason),
	))
}

// RecordTokenValidationError records a token validation error
func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.tokenValidationErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error_type", errorType),
	))
}
