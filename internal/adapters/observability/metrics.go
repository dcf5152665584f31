package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "restaurants", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "restaurants", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "restaurants", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "restaurants", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "restaurants", Name: "cache_events_total", Help: "Blob cache hits/misses/puts/bypasses."},
		[]string{"bucket", "event"}, // event: hit|miss|put|bypass|evict
	)
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "restaurants", Name: "store_operations_total", Help: "Entity store operations."},
		[]string{"op", "result"}, // result: ok|miss|conflict|error
	)
	ReplayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "restaurants", Name: "replay_events_total", Help: "Sync replay outcomes."},
		[]string{"kind", "outcome"}, // kind: review|favorite; outcome: ok|failed|rejected
	)
	Online = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "restaurants", Name: "remote_online", Help: "1 when the remote API is reachable."},
	)
)

// Serve exposes reg on addr/metrics in the background. An empty addr
// disables the standalone listener and returns nil.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents, StoreOps, ReplayEvents, Online)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(bucket, event string) {
	CacheEvents.WithLabelValues(bucket, event).Inc()
}

func ObserveStore(op, result string) {
	StoreOps.WithLabelValues(op, result).Inc()
}

func ObserveReplay(kind, outcome string) {
	ReplayEvents.WithLabelValues(kind, outcome).Inc()
}

func SetOnline(online bool) {
	if online {
		Online.Set(1)
		return
	}
	Online.Set(0)
}
