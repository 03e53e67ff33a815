package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamy_attempts_submitted_total",
			Help: "Total number of test attempts submitted",
		},
	)

	GradeSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamy_grade_submissions_total",
			Help: "Total number of grade submission batches by outcome",
		},
		[]string{"outcome"}, // applied|rejected|error
	)

	AttemptsFullyGraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamy_attempts_fully_graded_total",
			Help: "Total number of attempts that reached GRADED",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware observes request durations labeled by route pattern. The pattern
// is resolved after the handler ran, once chi has matched the route; raw paths
// carry entity ids and would make label cardinality unbounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestDuration.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
