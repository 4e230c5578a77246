package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DBPinger is the interface for checking database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Health serves GET /health: a liveness-independent process check that never
// touches a dependency, so a load balancer can use it without tripping on a
// slow database.
func Health(version string) http.HandlerFunc {
	if version == "" {
		version = "0.0.0"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, "ok", version, "")
	}
}

// Live serves GET /health/live: the process is up and serving, regardless of
// dependency state — a Kubernetes liveness probe's "don't restart me" signal.
func Live() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, "ok", "", "")
	}
}

// Ready serves GET /health/ready: the process can actually serve traffic,
// i.e. its metadata store connection is alive — a readiness probe's "stop
// sending me traffic" signal (spec §6's three distinct health paths).
func Ready(db DBPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if db == nil {
			writeHealth(w, http.StatusOK, "ok", "", "connected")
			return
		}
		if err := db.Ping(ctx); err != nil {
			writeHealth(w, http.StatusServiceUnavailable, "degraded", "", "disconnected")
			return
		}
		writeHealth(w, http.StatusOK, "ok", "", "connected")
	}
}

func writeHealth(w http.ResponseWriter, status int, state, version, dbStatus string) {
	body := map[string]string{"status": state}
	if version != "" {
		body["version"] = version
	}
	if dbStatus != "" {
		body["database"] = dbStatus
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
