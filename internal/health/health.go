// Package health provides HTTP health and readiness probes.
//
//   - /healthz — liveness; always 200 with the process uptime.
//   - /readyz  — readiness; 200 only when every registered [Checker]
//     passes. Checks run concurrently, each under its own timeout.
//
// Responses are JSON with a top-level "status" field ("ok" or "degraded")
// and, for readiness, a "checks" map with per-dependency results.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 3 * time.Second

// Checker probes one dependency. Check returns nil when the dependency is
// usable and an error describing the failure otherwise; it must respect
// context cancellation.
type Checker struct {
	// Name keys the check's entry in the JSON response (e.g. "audit",
	// "ffmpeg").
	Name string

	Check func(ctx context.Context) error
}

// report is the JSON response body for both probes.
type report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the /healthz and /readyz probes. Safe for concurrent use;
// the checker list is fixed at construction time.
type Handler struct {
	startedAt time.Time
	checkers  []Checker
}

// New creates a Handler that evaluates the given checkers on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		startedAt: time.Now(),
		checkers:  append([]Checker(nil), checkers...),
	}
}

// Healthz is the liveness probe. A process that can serve HTTP is alive, so
// it always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Readyz is the readiness probe. All checkers run concurrently; the probe
// returns 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		err  error
	}

	results := make([]outcome, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			results[i] = outcome{name: c.Name, err: c.Check(ctx)}
		}()
	}
	wg.Wait()

	res := report{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
		Checks: make(map[string]string, len(results)),
	}
	status := http.StatusOK
	for _, out := range results {
		if out.err != nil {
			res.Checks[out.name] = "fail: " + out.err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[out.name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
