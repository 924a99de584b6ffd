package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const defaultHealthTimeout = 2 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandlers reports readiness of the service and its dependencies.
type HealthHandlers struct {
	Checks  []HealthCheck
	Timeout time.Duration
	Logger  *slog.Logger
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every check and answers 200 when all pass, 503 otherwise.
// GET|HEAD /healthz.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	if len(h.Checks) > 0 {
		resp.Checks = make(map[string]string, len(h.Checks))
	}
	for _, c := range h.Checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = "down"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			h.logger().WarnContext(ctx, "health check failed", "check", c.Name, "error", err)
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, resp)
}

func (h *HealthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
