package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oddsradar/backend/pgstore"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"feed_tables", func() error {
			for _, ft := range pgstore.Feeds {
				var exists bool
				err := h.db.QueryRowContext(r.Context(),
					"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", ft.Table).Scan(&exists)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("missing table %s", ft.Table)
				}
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			// Set headers before writing status code
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus returns a lightweight status summary including per-feed row
// counts and connected realtime clients.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	feeds := map[string]any{}
	for name, ft := range pgstore.Feeds {
		var total int
		_ = h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ft.Table).Scan(&total)
		feeds[name] = total
	}
	resp["feeds"] = feeds
	resp["ws_clients"] = h.hub.ClientCount()

	var users int
	_ = h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&users)
	resp["users"] = users

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
