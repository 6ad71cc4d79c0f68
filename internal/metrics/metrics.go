package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_ws_events_total",
		Help: "Total number of realtime events fanned out, by type",
	}, []string{"type"})
	WsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_ws_dropped_total",
		Help: "Outbound events dropped because a peer send buffer was full",
	})
	PersistFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_persist_failures_total",
		Help: "Background persistence attempts that failed after a successful broadcast",
	})
	SessionsSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_swept_total",
		Help: "Expired sessions removed by the background sweep",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, WsEventsTotal, WsDroppedTotal,
		PersistFailuresTotal, SessionsSweptTotal,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware собирает базовые метрики запросов для Prometheus.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)

		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(status),
		}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack прокидывается дальше, иначе ws-апгрейд через эту обёртку не пройдёт.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
