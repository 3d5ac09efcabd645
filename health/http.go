package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// LivenessHandler returns an HTTP handler for liveness probes.
// This is a simple check that the process is running.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler for readiness probes. It reads
// the monitor's published snapshot and answers 503 when no backend is
// usable.
func ReadinessHandler(m *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")

		switch Overall(m.AllHealth()) {
		case StatusHealthy:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		case StatusDegraded:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("DEGRADED"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNHEALTHY"))
		}
	}
}

// HealthResponse is the JSON response for the detailed health endpoint.
type HealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Backends  map[string]BackendResponse `json:"backends,omitempty"`
}

// BackendResponse is the JSON response for a single backend.
type BackendResponse struct {
	Status              string  `json:"status"`
	ResponseTime        int64   `json:"responseTime"`
	SuccessRate         float64 `json:"successRate"`
	AvailableCapacity   int64   `json:"availableCapacity"`
	TotalCapacity       int64   `json:"totalCapacity"`
	LastChecked         string  `json:"lastChecked,omitempty"`
	ConsecutiveFailures int     `json:"consecutiveFailures,omitempty"`
	Error               string  `json:"error,omitempty"`
}

func backendResponse(h BackendHealth) BackendResponse {
	resp := BackendResponse{
		Status:              h.Status.String(),
		ResponseTime:        h.ResponseTime.Milliseconds(),
		SuccessRate:         h.SuccessRate,
		AvailableCapacity:   h.AvailableCapacity,
		TotalCapacity:       h.TotalCapacity,
		ConsecutiveFailures: h.ConsecutiveFailures,
		Error:               h.LastError,
	}
	if !h.LastCheckedAt.IsZero() {
		resp.LastChecked = h.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeStatus(w http.ResponseWriter, status Status) {
	w.Header().Set("Content-Type", "application/json")
	if status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DetailedHandler returns an HTTP handler with per-backend health.
func DetailedHandler(m *Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := m.AllHealth()
		status := Overall(all)

		response := HealthResponse{
			Status:    status.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Backends:  make(map[string]BackendResponse, len(all)),
		}
		for id, h := range all {
			response.Backends[id] = backendResponse(h)
		}

		writeStatus(w, status)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// BackendHandler returns an HTTP handler for a single backend.
func BackendHandler(m *Monitor, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := m.Lookup(id)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
			})
			return
		}

		writeStatus(w, h.Status)
		_ = json.NewEncoder(w).Encode(backendResponse(h))
	}
}

// RegisterHandlers registers all health handlers on the given mux.
func RegisterHandlers(mux *http.ServeMux, m *Monitor) {
	mux.HandleFunc("/healthz", LivenessHandler())
	mux.HandleFunc("/readyz", ReadinessHandler(m))
	mux.HandleFunc("/health", DetailedHandler(m))
}
