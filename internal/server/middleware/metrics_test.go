package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type httpObservation struct {
	method string
	path   string
	status int
}

type fakeHTTPRecorder struct {
	seen []httpObservation
}

func (f *fakeHTTPRecorder) ObserveHTTP(method, path string, statusCode int, _ time.Duration) {
	f.seen = append(f.seen, httpObservation{method, path, statusCode})
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	rec := &fakeHTTPRecorder{}

	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/approval/{approvalId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/call", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/approval/abc-123", nil),
		httptest.NewRequest(http.MethodGet, "/approval/def-456", nil),
		httptest.NewRequest(http.MethodPost, "/call", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	want := []httpObservation{
		{"GET", "/approval/{approvalId}", 200},
		{"GET", "/approval/{approvalId}", 200},
		{"POST", "/call", 403},
	}
	if len(rec.seen) != len(want) {
		t.Fatalf("observations = %v, want %v", rec.seen, want)
	}
	for i, w := range want {
		if rec.seen[i] != w {
			t.Errorf("observation[%d] = %v, want %v", i, rec.seen[i], w)
		}
	}
}
