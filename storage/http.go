package storage

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/storageops/health"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// StatusHandler serves the routing status report. It answers 503 when no
// backend is eligible.
func StatusHandler(rt *Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := rt.Status()
		code := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

// StrategyHandler serves the report of the backend named by the {id} path
// value.
func StrategyHandler(rt *Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := rt.Backend(id); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, rt.strategyStatus(id))
	}
}

// PriorityRequest is the body accepted by PriorityHandler.
type PriorityRequest struct {
	Priority []string `json:"priority"`
}

// PriorityHandler reports the candidate order on GET and replaces it on PUT.
func PriorityHandler(rt *Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, PriorityRequest{Priority: rt.Priority()})
		case http.MethodPut:
			var req PriorityRequest
			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := rt.SetPriority(req.Priority); err != nil {
				code := http.StatusBadRequest
				if errors.Is(err, ErrUnknownBackend) {
					code = http.StatusUnprocessableEntity
				}
				writeError(w, code, err)
				return
			}
			writeJSON(w, http.StatusOK, PriorityRequest{Priority: rt.Priority()})
		default:
			w.Header().Set("Allow", "GET, PUT")
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		}
	}
}

// RegisterHandlers registers the storage status handlers on mux.
func RegisterHandlers(mux *http.ServeMux, rt *Router) {
	mux.HandleFunc("GET /storage/status", StatusHandler(rt))
	mux.HandleFunc("GET /storage/status/{id}", StrategyHandler(rt))
	mux.HandleFunc("/storage/priority", PriorityHandler(rt))
}
