package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/custupload/internal/logging"
)

const healthTimeout = 2 * time.Second

// handleHealth pings every registered dependency and reports upload slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	failures := make(map[string]string)
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			failures[name] = err.Error()
			logging.FromContext(ctx).Warn("health check failed", "check", name, "error", err)
		}
	}

	body := map[string]any{
		"status":  "ok",
		"uploads": s.service.Limiter().Status(),
	}
	status := http.StatusOK
	if len(failures) > 0 {
		body["status"] = "unavailable"
		body["checks"] = failures
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}
