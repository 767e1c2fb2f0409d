package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchctl",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of spawn attempts that produced a PID.",
		}, []string{"label"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchctl",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of termination signals sent.",
		}, []string{"label"},
	)
	processUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchctl",
			Subsystem: "process",
			Name:      "up",
			Help:      "Whether a process matching the registry pattern is running.",
		}, []string{"label"},
	)
	processCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchctl",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of the matched process.",
		}, []string{"label"},
	)
	processMemPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchctl",
			Subsystem: "process",
			Name:      "mem_percent",
			Help:      "Memory usage percentage of the matched process.",
		}, []string{"label"},
	)
	websiteUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "watchctl",
			Subsystem: "health",
			Name:      "website_up",
			Help:      "Result of the last outbound website health check.",
		},
	)
	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchctl",
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Outbound health checks by outcome.",
		}, []string{"outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processStarts, processStops, processUp, processCPUPercent, processMemPercent, websiteUp, healthChecks}
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

// RegisterDefault registers with the global default registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve starts a standalone metrics listener on addr with /metrics wired.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Helpers below no-op until Register has been called.

func IncStart(label string) {
	if regOK.Load() {
		processStarts.WithLabelValues(label).Inc()
	}
}

func IncStop(label string) {
	if regOK.Load() {
		processStops.WithLabelValues(label).Inc()
	}
}

func SetProcessUp(label string, up bool) {
	if regOK.Load() {
		processUp.WithLabelValues(label).Set(boolGauge(up))
	}
}

func SetProcessUsage(label string, cpu, mem float64) {
	if regOK.Load() {
		processCPUPercent.WithLabelValues(label).Set(cpu)
		processMemPercent.WithLabelValues(label).Set(mem)
	}
}

func SetWebsiteUp(ok bool) {
	if regOK.Load() {
		websiteUp.Set(boolGauge(ok))
		outcome := "ok"
		if !ok {
			outcome = "fail"
		}
		healthChecks.WithLabelValues(outcome).Inc()
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
