package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Version is reported by the health endpoints.
const Version = "1.0.0"

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckFunc reports whether one dependency is usable
type HealthCheckFunc func(ctx context.Context) (bool, error)

// HealthCheckHandler handles liveness requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, HealthStatus{
			Status:    "healthy",
			Service:   "voice-agent",
			Version:   Version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler runs every named check and reports 503 if any fails
func ReadinessHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dependencies := make(map[string]DependencyStatus, len(names))
		allHealthy := true

		for _, name := range names {
			start := time.Now()
			healthy, err := checks[name](ctx)

			dep := DependencyStatus{
				Status:    "healthy",
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil || !healthy {
				dep.Status = "unhealthy"
				allHealthy = false
				if err != nil {
					dep.Message = err.Error()
				}
			}
			dependencies[name] = dep
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      "voice-agent",
			Version:      Version,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		code := http.StatusOK
		if !allHealthy {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, status)
	}
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
