package http

import (
	"context"
	"net/http"
	"time"
)

// Pinger is implemented by *sql.DB and the Redis token store.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness for client connectivity probes.
type HealthHandler struct {
	DB Pinger
	// Tokens is optional.
	Tokens Pinger
}

// Health responds 200 when the database and the token store answer, 503
// naming the failing dependency otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := []struct {
		name string
		p    Pinger
	}{{"database", h.DB}, {"tokens", h.Tokens}}
	for _, c := range checks {
		if c.p == nil {
			continue
		}
		if err := c.p.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "failing": c.name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
