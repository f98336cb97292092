package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

// Collector manages all BlockHawk metrics
type Collector struct {
	// Counters
	proxiesTested      prometheus.Counter
	proxiesWorking     prometheus.Counter
	proxiesBlocked     prometheus.Counter
	proxiesFailed      prometheus.Counter
	proxiesTransparent prometheus.Counter

	// Histograms
	probeLatency    prometheus.Histogram
	pingRTT         prometheus.Histogram
	blockConfidence prometheus.Histogram

	// Gauges
	pending prometheus.Gauge
	workers prometheus.Gauge

	// Labels
	urlProbes     *prometheus.CounterVec
	probesPerType *prometheus.CounterVec
	errorsPerType *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
	mutex    sync.Mutex
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.initMetrics()
	c.registerMetrics()

	return c
}

// initMetrics initializes all Prometheus metrics
func (c *Collector) initMetrics() {
	c.proxiesTested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhawk_proxies_tested_total",
		Help: "Total number of proxies tested",
	})

	c.proxiesWorking = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhawk_proxies_working_total",
		Help: "Proxies that worked for every tested URL",
	})

	c.proxiesBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhawk_proxies_blocked_total",
		Help: "Proxies that received a block page for at least one URL",
	})

	c.proxiesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhawk_proxies_failed_total",
		Help: "Proxies that worked for no tested URL",
	})

	c.proxiesTransparent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "blockhawk_proxies_transparent_total",
		Help: "Proxies that revealed the client address",
	})

	c.probeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockhawk_probe_latency_seconds",
		Help:    "HTTP response time through proxy in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 1.5, 2.5, 5, 10, 15, 30},
	})

	c.pingRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockhawk_ping_rtt_seconds",
		Help:    "ICMP round trip time to the proxy host in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1, 2},
	})

	c.blockConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockhawk_block_confidence",
		Help:    "Block detector confidence of successful responses",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	c.pending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blockhawk_proxies_pending",
		Help: "Number of proxies not yet tested in the current run",
	})

	c.workers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blockhawk_workers",
		Help: "Configured number of concurrent workers",
	})

	c.urlProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockhawk_url_probes_total",
			Help: "URL probes by target host and outcome",
		},
		[]string{"target", "outcome"},
	)

	c.probesPerType = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockhawk_probes_per_type_total",
			Help: "URL probes per proxy type",
		},
		[]string{"proxy_type"},
	)

	c.errorsPerType = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockhawk_probe_errors_total",
			Help: "Failed URL probes per error type",
		},
		[]string{"error_type"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (c *Collector) registerMetrics() {
	c.registry.MustRegister(
		c.proxiesTested,
		c.proxiesWorking,
		c.proxiesBlocked,
		c.proxiesFailed,
		c.proxiesTransparent,
		c.probeLatency,
		c.pingRTT,
		c.blockConfidence,
		c.pending,
		c.workers,
		c.urlProbes,
		c.probesPerType,
		c.errorsPerType,
	)
}

// StartServer binds addr and serves the registry at path until StopServer.
// Bind errors are returned synchronously.
func (c *Collector) StartServer(addr, path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.server != nil {
		return fmt.Errorf("metrics server already running")
	}
	if path == "" {
		path = "/metrics"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, c.GetMetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	c.server = server

	go server.Serve(ln)

	return nil
}

// StopServer stops the metrics HTTP server
func (c *Collector) StopServer() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.server.Shutdown(ctx)
	c.server = nil
	return err
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Metrics recording methods

// RecordResult records a finished single-URL test.
func (c *Collector) RecordResult(r checker.TestResult) {
	c.recordProxy(r.Proxy, []checker.URLTestResult{r.URLTestResult}, r.Aux)
}

// RecordMultiResult records a finished multi-URL test.
func (c *Collector) RecordMultiResult(r checker.MultiURLTestResult) {
	c.recordProxy(r.Proxy, r.Results(), r.Aux)
}

func (c *Collector) recordProxy(p proxy.Proxy, results []checker.URLTestResult, aux checker.Aux) {
	c.proxiesTested.Inc()
	c.pending.Dec()

	working, blocked := 0, 0
	for _, r := range results {
		c.RecordURLResult(p.Type, r)
		switch r.Outcome() {
		case checker.OutcomeWorking:
			working++
		case checker.OutcomeBlocked:
			blocked++
		}
	}

	switch {
	case len(results) > 0 && working == len(results):
		c.proxiesWorking.Inc()
	case working == 0:
		c.proxiesFailed.Inc()
	}
	if blocked > 0 {
		c.proxiesBlocked.Inc()
	}

	if aux.Transparent {
		c.proxiesTransparent.Inc()
	}
	if aux.PingMs != nil {
		c.pingRTT.Observe(*aux.PingMs / 1000)
	}
}

// RecordURLResult records one URL probe.
func (c *Collector) RecordURLResult(proxyType proxy.Type, r checker.URLTestResult) {
	c.probesPerType.WithLabelValues(string(proxyType)).Inc()
	c.urlProbes.WithLabelValues(r.URL, string(r.Outcome())).Inc()

	if !r.Success {
		c.errorsPerType.WithLabelValues(r.ErrorCode.String()).Inc()
		return
	}
	if r.LatencyMs != nil {
		c.probeLatency.Observe(*r.LatencyMs / 1000)
	}
	if r.Block != nil {
		c.blockConfidence.Observe(r.Block.Confidence)
	}
}

// Gauge update methods

// StartRun sets the pending and worker gauges for a new run.
func (c *Collector) StartRun(proxies, workers int) {
	c.pending.Set(float64(proxies))
	c.workers.Set(float64(workers))
}

// GetMetricsHandler returns an HTTP handler for the /metrics endpoint
func (c *Collector) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
