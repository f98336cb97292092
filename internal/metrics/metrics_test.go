package metrics

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ResistanceIsUseless/BlockHawk/internal/checker"
	"github.com/ResistanceIsUseless/BlockHawk/internal/detector"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

func working(url string, latencyMs float64) checker.URLTestResult {
	status := 200
	return checker.URLTestResult{
		URL:        url,
		Success:    true,
		HTTPStatus: &status,
		LatencyMs:  &latencyMs,
		Block:      &detector.Result{Confidence: 0.2},
	}
}

func blocked(url string) checker.URLTestResult {
	status := 403
	return checker.URLTestResult{
		URL:        url,
		Success:    true,
		HTTPStatus: &status,
		Block:      &detector.Result{IsBlocked: true, Confidence: 1},
	}
}

func failed(url string) checker.URLTestResult {
	return checker.URLTestResult{URL: url, Error: "Read timeout", ErrorCode: errors.ErrorReadTimeout}
}

var httpProxy = proxy.Proxy{Host: "10.0.0.1", Port: 8080, Type: proxy.TypeHTTP}

func TestNewCollector(t *testing.T) {
	collector := NewCollector()
	if collector == nil {
		t.Fatal("NewCollector() returned nil")
	}

	if collector.registry == nil {
		t.Error("NewCollector() did not initialize registry")
	}
}

func TestRecordResult(t *testing.T) {
	collector := NewCollector()
	collector.StartRun(3, 2)

	ping := 40.0
	collector.RecordResult(checker.TestResult{
		Proxy:         httpProxy,
		URLTestResult: working("https://a.example", 250),
		Aux:           checker.Aux{PingMs: &ping, Transparent: true},
	})
	collector.RecordResult(checker.TestResult{Proxy: httpProxy, URLTestResult: blocked("https://a.example")})
	collector.RecordResult(checker.TestResult{Proxy: httpProxy, URLTestResult: failed("https://a.example")})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"tested", testutil.ToFloat64(collector.proxiesTested), 3},
		{"working", testutil.ToFloat64(collector.proxiesWorking), 1},
		{"blocked", testutil.ToFloat64(collector.proxiesBlocked), 1},
		{"failed", testutil.ToFloat64(collector.proxiesFailed), 2},
		{"transparent", testutil.ToFloat64(collector.proxiesTransparent), 1},
		{"pending", testutil.ToFloat64(collector.pending), 0},
		{"workers", testutil.ToFloat64(collector.workers), 2},
		{"http probes", testutil.ToFloat64(collector.probesPerType.WithLabelValues("http")), 3},
		{"read timeouts", testutil.ToFloat64(collector.errorsPerType.WithLabelValues("read_timeout")), 1},
		{"working probes", testutil.ToFloat64(collector.urlProbes.WithLabelValues("https://a.example", "working")), 1},
		{"blocked probes", testutil.ToFloat64(collector.urlProbes.WithLabelValues("https://a.example", "blocked")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if n := testutil.CollectAndCount(collector.probeLatency); n != 1 {
		t.Errorf("probeLatency series = %d, want 1", n)
	}
}

func TestRecordMultiResult(t *testing.T) {
	collector := NewCollector()

	partial := checker.MultiURLTestResult{
		Proxy: httpProxy,
		URLs:  []string{"https://a.example", "https://b.example"},
		URLResults: map[string]checker.URLTestResult{
			"https://a.example": working("https://a.example", 100),
			"https://b.example": blocked("https://b.example"),
		},
	}
	full := checker.MultiURLTestResult{
		Proxy: proxy.Proxy{Host: "10.0.0.2", Port: 1080, Type: proxy.TypeSOCKS5},
		URLs:  []string{"https://a.example"},
		URLResults: map[string]checker.URLTestResult{
			"https://a.example": working("https://a.example", 80),
		},
	}

	collector.RecordMultiResult(partial)
	collector.RecordMultiResult(full)

	if got := testutil.ToFloat64(collector.proxiesWorking); got != 1 {
		t.Errorf("proxiesWorking = %v, want 1 (only fully working)", got)
	}
	if got := testutil.ToFloat64(collector.proxiesFailed); got != 0 {
		t.Errorf("proxiesFailed = %v, want 0 (partial is not failed)", got)
	}
	if got := testutil.ToFloat64(collector.proxiesBlocked); got != 1 {
		t.Errorf("proxiesBlocked = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.probesPerType.WithLabelValues("socks5")); got != 1 {
		t.Errorf("socks5 probes = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	collector := NewCollector()
	collector.RecordResult(checker.TestResult{Proxy: httpProxy, URLTestResult: working("https://a.example", 10)})

	path := filepath.Join(t.TempDir(), "blockhawk.prom")
	if err := collector.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "blockhawk_proxies_working_total 1") {
		t.Errorf("textfile missing working counter:\n%s", data)
	}
}

func TestStartStopServer(t *testing.T) {
	collector := NewCollector()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	if err := collector.StartServer(addr, "/metrics"); err != nil {
		t.Fatalf("StartServer: %v", err)
	}
	defer collector.StopServer()

	if err := collector.StartServer(addr, "/metrics"); err == nil {
		t.Error("expected error starting a second server")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "blockhawk_proxies_tested_total") {
		t.Error("metrics endpoint missing blockhawk metrics")
	}

	resp, err = http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := collector.StopServer(); err != nil {
		t.Errorf("StopServer: %v", err)
	}
	if err := collector.StopServer(); err != nil {
		t.Errorf("second StopServer: %v", err)
	}
}

func TestStartServerBindError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := NewCollector().StartServer(l.Addr().String(), "/metrics"); err == nil {
		t.Error("expected bind error for address in use")
	}
}
