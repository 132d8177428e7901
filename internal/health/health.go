// Package health exposes the liveness and readiness probes for the voice
// service.
//
//   - /healthz answers 200 whenever the process can serve HTTP at all; a
//     degraded pipeline (mock providers, in-memory stores) is still alive.
//   - /readyz probes the wired backends — Redis session state, the Postgres
//     household store, the synthesis provider — and answers 200 only when
//     every probe passes.
//
// Both respond with a JSON body carrying an overall "status" and a
// per-probe "checks" map, so an operator can see which backend is down
// without reading logs.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout caps each backend probe. A hung dependency must not hold a
// readiness request open longer than this.
const probeTimeout = 5 * time.Second

// Checker is one named backend probe. Check returns nil when the backend is
// usable and an error describing the failure otherwise; it must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// result is the JSON body of both probe responses.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the two probe endpoints. Immutable after New; safe for
// concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a Handler over the given probes. With no probes, /readyz
// always passes.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe. Reaching this handler is the proof.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every probe concurrently, each under its own timeout, and
// reports 503 when any of them fails. Concurrency keeps the response time
// at the slowest probe rather than the sum of all of them.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		name string
		err  error
	}

	outcomes := make([]outcome, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			outcomes[i] = outcome{name: c.Name, err: c.Check(ctx)}
		}(i, c)
	}
	wg.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(outcomes))}
	status := http.StatusOK
	for _, o := range outcomes {
		if o.err != nil {
			res.Checks[o.name] = "fail: " + o.err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[o.name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds both probe routes to mux.
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
