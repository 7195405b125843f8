package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hilthontt/impostor/internal/infrastructure/json"
)

const checkTimeout = 2 * time.Second

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	startTime time.Time
	healthy   atomic.Bool
	checks    map[string]Check
}

func NewHandler(checks map[string]Check) *Handler {
	h := &Handler{
		startTime: time.Now(),
		checks:    checks,
	}
	h.healthy.Store(true)
	return h
}

// MarkUnhealthy makes every probe fail. It is called when shutdown begins.
func (h *Handler) MarkUnhealthy() {
	h.healthy.Store(false)
}

// GetHealth reports process liveness only.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if !h.healthy.Load() {
		_ = json.Write(w, http.StatusServiceUnavailable, h.response("unhealthy", nil))
		return
	}

	_ = json.Write(w, http.StatusOK, h.response("ok", nil))
}

// GetReady also runs the dependency checks.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	if !h.healthy.Load() {
		_ = json.Write(w, http.StatusServiceUnavailable, h.response("unhealthy", nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	var failures map[string]string
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		_ = json.Write(w, http.StatusServiceUnavailable, h.response("unhealthy", failures))
		return
	}

	_ = json.Write(w, http.StatusOK, h.response("ok", nil))
}

func (h *Handler) response(status string, failures map[string]string) healthResponse {
	return healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Failures:  failures,
	}
}
