package storage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonwraymond/storageops/health"
)

func newTestMux(t *testing.T, r *Router) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	RegisterHandlers(mux, r)
	return mux
}

func TestStatusHandler(t *testing.T) {
	a := newFake("a")
	r, _ := newTestRouter(t, testConfig(), backendsOf(a), WithMonitor(checkedMonitor(t, 1, a)))
	mux := newTestMux(t, r)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage/status", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var report StatusReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(report.Strategies) != 1 || report.Strategies[0].ID != "a" {
		t.Fatalf("Strategies = %+v, want a", report.Strategies)
	}
	if report.Status != health.StatusHealthy {
		t.Errorf("Status = %v, want healthy", report.Status)
	}
	if report.Strategies[0].Health != health.StatusHealthy {
		t.Errorf("Health = %v, want healthy", report.Strategies[0].Health)
	}
}

func TestStatusHandler_Unhealthy(t *testing.T) {
	a := newFake("a")
	a.probes = []health.ProbeResult{failingProbe}
	r, _ := newTestRouter(t, testConfig(), backendsOf(a), WithMonitor(checkedMonitor(t, 1, a)))

	rec := httptest.NewRecorder()
	StatusHandler(r)(rec, httptest.NewRequest(http.MethodGet, "/storage/status", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rec.Body.String(), `"status":"unhealthy"`) {
		t.Errorf("body = %s, want unhealthy status", rec.Body.String())
	}
}

func TestStrategyHandler(t *testing.T) {
	r, _ := newTestRouter(t, testConfig(), backendsOf(newFake("a")))
	mux := newTestMux(t, r)

	tests := []struct {
		path string
		want int
	}{
		{"/storage/status/a", http.StatusOK},
		{"/storage/status/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestPriorityHandler(t *testing.T) {
	r, _ := newTestRouter(t, testConfig(), backendsOf(newFake("a"), newFake("b")))
	mux := newTestMux(t, r)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusOK},
		{"put", http.MethodPut, `{"priority":["b","a"]}`, http.StatusOK},
		{"unknown backend", http.MethodPut, `{"priority":["x"]}`, http.StatusUnprocessableEntity},
		{"empty list", http.MethodPut, `{"priority":[]}`, http.StatusBadRequest},
		{"bad json", http.MethodPut, `{`, http.StatusBadRequest},
		{"unknown field", http.MethodPut, `{"order":["a"]}`, http.StatusBadRequest},
		{"post", http.MethodPost, `{}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/storage/priority", strings.NewReader(tt.body))
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s = %d, want %d (%s)", tt.method, rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	if got := r.Priority(); len(got) != 2 || got[0] != "b" {
		t.Errorf("Priority() = %v, want [b a]", got)
	}
}
