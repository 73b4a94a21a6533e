package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gridquery/internal/logging"
	"gridquery/internal/observability"
)

// WriteAuthConfig controls bearer token checks on grid write actions.
type WriteAuthConfig struct {
	Enabled   bool
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// writeActions are the action parameter values that modify data.
var writeActions = map[string]struct{}{"edit": {}, "add": {}, "del": {}}

type authContextKey struct{}

// AuthContext carries validated token claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   jwt.MapClaims
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// WriteAuthMiddleware requires an HS256 bearer token on edit, add and del
// requests. List and subgrid requests pass through. metrics may be nil.
func WriteAuthMiddleware(cfg WriteAuthConfig, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if len(cfg.Secret) < 32 {
		return nil, errors.New("write auth enabled but secret is shorter than 32 bytes")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = time.Minute
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, isWrite := writeActions[r.URL.Query().Get("action")]; !isWrite {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			grid := r.PathValue("name")
			logger := logging.FromContext(ctx)
			metrics.RecordAuthAttempt(ctx, grid)

			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				metrics.RecordAuthFailure(ctx, grid, "missing_token")
				logger.Warn("write rejected: missing bearer token",
					slog.String("grid", grid),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(tokenString, claims, keyFunc); err != nil {
				reason := tokenErrorReason(err)
				metrics.RecordAuthFailure(ctx, grid, "invalid_token")
				metrics.RecordTokenValidationError(ctx, reason)
				logger.Warn("write rejected: token validation failed",
					slog.String("grid", grid),
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			subject, _ := claims.GetSubject()
			issuer, _ := claims.GetIssuer()
			audience, _ := claims.GetAudience()
			logger.Debug("write authorized", slog.String("grid", grid), slog.String("subject", subject))

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.Bool("auth.authenticated", true),
				)
			}

			ctx = context.WithValue(ctx, authContextKey{}, AuthContext{
				Subject:  subject,
				Issuer:   issuer,
				Audience: audience,
				Claims:   claims,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

func tokenErrorReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_valid_yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer_mismatch"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience_mismatch"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	default:
		return "malformed"
	}
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, message)
}
