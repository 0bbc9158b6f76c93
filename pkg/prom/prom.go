package prom

import (
	"sync"

	xhttp "github.com/nimasrn/balance-bot/pkg/http"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemTransfer  = "transfer"
	SystemDetection = "detection"
	SystemUpdate    = "update"
)

const (
	MetricTotal           = "total"
	MetricDurationSeconds = "duration_seconds"
	MetricProcessedTotal  = "processed_total"
)

var (
	mu            sync.RWMutex
	enabled       bool
	namespace     = "none"
	defaultLabels prometheus.Labels

	counters   = make(map[string]*prometheus.CounterVec)
	histograms = make(map[string]prometheus.Histogram)
)

// Create registers the ledger metrics on the default registry. Until it is
// called every Observe/Inc helper is a no-op.
func Create(host string, env string, nameSpace string) error {
	mu.Lock()
	defer mu.Unlock()

	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(registerCounterVec(SystemTransfer, MetricTotal, "result"))
	hasError(registerHistogram(SystemTransfer, MetricDurationSeconds))

	hasError(registerCounterVec(SystemDetection, MetricTotal, "detector", "outcome"))

	hasError(registerCounterVec(SystemUpdate, MetricProcessedTotal, "result"))
	hasError(registerHistogram(SystemUpdate, MetricDurationSeconds))

	enabled = err == nil
	return err
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url, "addr", port)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func registerCounterVec(subsystem, name string, labels ...string) error {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	counters[subsystem+name] = c
	return prometheus.Register(c)
}

func registerHistogram(subsystem, name string) error {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	histograms[subsystem+name] = h
	return prometheus.Register(h)
}

func incCounterVec(subsystem, name string, labelValues ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := counters[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Inc()
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func observe(subsystem, name string, value float64) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	if v, ok := histograms[subsystem+name]; ok {
		v.Observe(value)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

// ObserveTransfer records one transfer attempt; result is "success" or a failure kind.
func ObserveTransfer(result string, seconds float64) {
	incCounterVec(SystemTransfer, MetricTotal, result)
	observe(SystemTransfer, MetricDurationSeconds, seconds)
}

func IncDetection(detector, outcome string) {
	incCounterVec(SystemDetection, MetricTotal, detector, outcome)
}

func ObserveUpdate(result string, seconds float64) {
	incCounterVec(SystemUpdate, MetricProcessedTotal, result)
	observe(SystemUpdate, MetricDurationSeconds, seconds)
}
