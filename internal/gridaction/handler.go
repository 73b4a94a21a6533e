package gridaction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gridquery/internal/gridrequest"
	"gridquery/internal/logging"
	"gridquery/internal/store"
)

const (
	outcomeOK         = "ok"
	outcomeBadRequest = "bad_request"
	outcomeInvalid    = "validation_failed"
	outcomeError      = "error"
)

// ServeHTTP decodes the request, runs the action named by the action query
// parameter and writes the response.
func (a *Action) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := gridrequest.Action(r)
	a.serve(w, r, action, func(ctx context.Context, p gridrequest.Payload) (any, error) {
		return a.Do(ctx, action, p)
	})
}

// SubgridHandler serves subgrid lookups.
func (a *Action) SubgridHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.serve(w, r, "subgrid", func(ctx context.Context, p gridrequest.Payload) (any, error) {
			return a.Subgrid(ctx, p)
		})
	})
}

func (a *Action) serve(w http.ResponseWriter, r *http.Request, action string, run func(context.Context, gridrequest.Payload) (any, error)) {
	ctx := r.Context()
	start := time.Now()
	logger := a.requestLogger(ctx).WithGrid(a.cfg.Name, action)

	a.cfg.Metrics.IncrementActiveRequests(ctx)
	defer a.cfg.Metrics.DecrementActiveRequests(ctx)

	outcome := outcomeOK
	defer func() {
		a.cfg.Metrics.RecordRequest(ctx, time.Since(start), a.cfg.Name, action, outcome)
	}()

	payload, err := gridrequest.Decode(r)
	if err != nil {
		outcome = outcomeBadRequest
		status := http.StatusBadRequest
		if errors.Is(err, gridrequest.ErrUnsupportedMethod) {
			status = http.StatusMethodNotAllowed
		}
		logger.Debug("grid request rejected", slog.String("error", err.Error()))
		http.Error(w, err.Error(), status)
		return
	}

	result, err := run(logging.WithLogger(ctx, logger), payload)
	switch {
	case errors.Is(err, ErrBadRequest):
		outcome = outcomeBadRequest
		logger.Debug("grid request rejected", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		outcome = outcomeError
		logger.Error("grid request failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if wr, ok := result.(WriteResult); ok {
		if !wr.OK() {
			outcome = outcomeInvalid
			logger.Info("grid write failed validation", slog.Int("fields", len(wr.Errors)))
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(store.RenderErrors(wr.Errors)))
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Error("failed to encode grid response", slog.String("error", err.Error()))
	}
}

func (a *Action) requestLogger(ctx context.Context) *logging.Logger {
	if logging.GetRequestID(ctx) != "" {
		return logging.FromContext(ctx)
	}
	return a.cfg.Logger
}
