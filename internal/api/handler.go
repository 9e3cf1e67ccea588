package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retaillens/retaillens/internal/agent"
	"github.com/retaillens/retaillens/internal/config"
	"github.com/retaillens/retaillens/internal/envelope"
	"github.com/retaillens/retaillens/internal/observability"
	"github.com/retaillens/retaillens/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

// Answerer is the question pipeline behind the query routes.
type Answerer interface {
	Query(ctx context.Context, req agent.Request) envelope.Envelope
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Agent             Answerer
	Schema            warehouse.SchemaLookup
	Dataset           string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	// Legacy path kept for existing chat clients.
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// Pinger is satisfied by the SQL warehouse.
type Pinger interface {
	Ping(ctx context.Context) error
}

func CheckWarehouse(pinger Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if pinger == nil {
			return errors.New("warehouse is not configured")
		}
		return pinger.Ping(ctx)
	}
}

// CheckModelCredentials fails when the configured provider cannot
// authenticate. It does not call the provider.
func CheckModelCredentials(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch strings.ToLower(cfg.AI.Provider) {
		case "gemini":
			if cfg.AI.Vertex {
				if cfg.AI.Project == "" {
					return errors.New("vertex ai project is not configured")
				}
				return nil
			}
			if cfg.AI.APIKey == "" {
				return errors.New("gemini api key is not configured")
			}
		case "openai":
			if cfg.AI.APIKey == "" {
				return errors.New("openai api key is not configured")
			}
		default:
			return fmt.Errorf("unsupported model provider %q", cfg.AI.Provider)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON encodes before writing the status so an unencodable payload
// turns into a 500 instead of a truncated 200.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]any{
			"error_code": "RESPONSE_ENCODE_FAILED",
			"message":    "failed to encode response",
			"retryable":  false,
			"context":    map[string]any{"details": err.Error()},
			"trace_id":   w.Header().Get("X-Trace-ID"),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
