package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "purchase_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})

	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_events_total",
		Help: "Purchase lifecycle events, labeled by stage and lock duration",
	}, []string{"stage", "lock_months"})

	tokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_tokens_recorded_total",
		Help: "Bonus-adjusted token amount of recorded purchases",
	})

	lamportsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_lamports_recorded_total",
		Help: "Lamports paid by recorded purchases",
	})
)

const (
	stageCreated   = "created"
	stageCompleted = "completed"
	stageSandbox   = "sandbox"
	stageFailed    = "failed"
)

func observePurchase(stage string, lockDurationMonths uint8) {
	purchasesTotal.WithLabelValues(stage, strconv.Itoa(int(lockDurationMonths))).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument 按路由模板统计请求数与耗时
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}
