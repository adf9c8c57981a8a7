package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/p-n-ai/pai-quiz/internal/content"
	"github.com/p-n-ai/pai-quiz/internal/platform/metrics"
)

const readyTimeout = 2 * time.Second

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type topicSyncer interface {
	Sync(ctx context.Context, force bool) (content.Report, bool, error)
}

// newMux creates the HTTP router with health, metrics and admin endpoints.
// Nil dependencies leave their endpoints out.
func newMux(m *metrics.Metrics, checks map[string]healthChecker, syncer topicSyncer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	if syncer != nil {
		mux.HandleFunc("POST /admin/sync", handleSync(syncer))
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthChecker) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for _, name := range names {
			if err := checks[name].HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "not ready",
					"dependency": name,
				})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}

func handleSync(syncer topicSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, _, err := syncer.Sync(r.Context(), true)
		if err != nil {
			slog.Error("manual topic sync failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sync failed"})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}
