// Package metrics exposes Prometheus collectors for the broker: backend
// server lifecycle, request traffic, and authentication failures.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sycmd",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of backend server launches, by outcome.",
		}, []string{"outcome"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sycmd",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of backend server stops (graceful or kill).",
		}, []string{"mode"},
	)
	staleEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sycmd",
			Subsystem: "manager",
			Name:      "stale_evictions_total",
			Help:      "Number of dead servers evicted from the caches.",
		},
	)
	runningServers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sycmd",
			Subsystem: "manager",
			Name:      "running_servers",
			Help:      "Current number of managed backend servers.",
		},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sycmd",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Requests sent to backend servers, by handler path.",
		}, []string{"handler"},
	)
	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sycmd",
			Subsystem: "rpc",
			Name:      "request_errors_total",
			Help:      "Failed backend requests, by error class.",
		}, []string{"class"},
	)
	hmacRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sycmd",
			Subsystem: "rpc",
			Name:      "hmac_rejections_total",
			Help:      "Responses dropped because their HMAC did not verify.",
		},
	)
)

// Register registers all metrics with the provided registerer. Safe to call
// multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serverStarts, serverStops, staleEvictions, runningServers,
		requests, requestErrors, hmacRejections,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(outcome string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(outcome).Inc()
	}
}

func IncStop(mode string) {
	if regOK.Load() {
		serverStops.WithLabelValues(mode).Inc()
	}
}

func IncStaleEviction() {
	if regOK.Load() {
		staleEvictions.Inc()
	}
}

func SetRunningServers(n int) {
	if regOK.Load() {
		runningServers.Set(float64(n))
	}
}

func IncRequest(handler string) {
	if regOK.Load() {
		requests.WithLabelValues(handler).Inc()
	}
}

func IncRequestError(class string) {
	if regOK.Load() {
		requestErrors.WithLabelValues(class).Inc()
	}
}

func IncHMACRejection() {
	if regOK.Load() {
		hmacRejections.Inc()
	}
}
