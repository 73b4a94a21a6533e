package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gridquery/internal/config"
	"gridquery/internal/gridaction"
	"gridquery/internal/logging"
	"gridquery/internal/middleware"
	"gridquery/internal/observability"
)

const (
	gridRoute    = "/grid/{name}"
	subgridRoute = "/grid/{name}/subgrid"
)

func buildWriteAuth(cfg *config.Config, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	wa := cfg.Server.WriteAuth
	mw, err := middleware.WriteAuthMiddleware(middleware.WriteAuthConfig{
		Enabled:   wa.Enabled,
		Secret:    []byte(wa.Secret),
		Issuer:    wa.Issuer,
		Audience:  wa.Audience,
		ClockSkew: wa.ClockSkew,
	}, metrics)
	if err != nil {
		return nil, err
	}
	if wa.Enabled {
		logger.Info("write auth enabled", slog.String("issuer", wa.Issuer), slog.String("audience", wa.Audience))
	} else {
		logger.Warn("grid writes are not authenticated - consider enabling server.write_auth")
	}
	return mw, nil
}

// gridHandler dispatches to the grid named by the route, or 404s.
func gridHandler(grids map[string]*gridaction.Action, subgrid bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, ok := grids[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if subgrid {
			action.SubgridHandler().ServeHTTP(w, r)
			return
		}
		action.ServeHTTP(w, r)
	})
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, grids map[string]*gridaction.Action, writeAuth func(http.Handler) http.Handler, metricsEnabled bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(gridRoute, writeAuth(gridHandler(grids, false)))
	mux.Handle(subgridRoute, gridHandler(grids, true))
	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

// wrapHTTPHandler applies, from outermost: rate limiting, CORS, HTTP
// instrumentation and request logging.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	cors := cfg.Server.CORS
	if cors.Enabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cors.Enabled,
			AllowedOrigins:   cors.AllowedOrigins,
			AllowedMethods:   cors.AllowedMethods,
			AllowedHeaders:   cors.AllowedHeaders,
			ExposeHeaders:    cors.ExposeHeaders,
			AllowCredentials: cors.AllowCredentials,
			MaxAge:           cors.MaxAge,
		})(handler)
	}

	rl := cfg.Server.RateLimit
	if rl.Enabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:           rl.Enabled,
			RPS:               rl.RPS,
			Burst:             rl.Burst,
			PerClient:         rl.PerClient,
			TrustForwardedFor: rl.TrustForwardedFor,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality by folding grid
// names into the route pattern.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/health", "/metrics":
		return rawPath
	}
	rest, ok := strings.CutPrefix(rawPath, "/grid/")
	if !ok || rest == "" {
		return "/*"
	}
	name, tail, _ := strings.Cut(rest, "/")
	switch {
	case name == "":
		return "/*"
	case tail == "":
		return gridRoute
	case tail == "subgrid":
		return subgridRoute
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, grids int) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", srv.Addr),
			slog.String("grid_endpoint", gridRoute),
			slog.String("health_endpoint", "/health"),
			slog.Int("grids", grids),
			slog.Bool("write_auth", cfg.Server.WriteAuth.Enabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.Server.RateLimit.Enabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimit.RPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimit.Burst),
			)
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// pinger is the part of *sql.DB the health check needs.
type pinger interface {
	PingContext(ctx context.Context) error
}

// healthHandler reports database reachability.
func healthHandler(db pinger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
