package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/es/tests/{testID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// distinct ids must collapse into one series under the route pattern
	for _, id := range []string{"aaaa-1111", "bbbb-2222", "cccc-3333"} {
		req := httptest.NewRequest(http.MethodGet, "/api/es/tests/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var paths []string
	for _, mf := range mfs {
		if mf.GetName() != "teamy_http_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "path" {
					paths = append(paths, lp.GetValue())
				}
			}
		}
	}
	if len(paths) == 0 {
		t.Fatal("no series observed")
	}
	seen := map[string]bool{}
	for _, p := range paths {
		seen[p] = true
		if p != "/api/es/tests/{testID}" {
			t.Fatalf("series labeled with %q, want the route pattern", p)
		}
	}
	if len(seen) != 1 {
		t.Fatalf("expected one path label value, got %v", paths)
	}
}
