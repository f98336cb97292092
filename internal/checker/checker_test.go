package checker

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/armon/go-socks5"
	"github.com/elazarl/goproxy"

	"github.com/ResistanceIsUseless/BlockHawk/internal/detector"
	"github.com/ResistanceIsUseless/BlockHawk/internal/pool"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

var legitPage = "<html><head><title>Example Domain</title></head><body>" +
	strings.Repeat("<p>This domain is for use in illustrative examples in documents.</p>", 30) +
	"</body></html>"

// fakePinger records calls and returns a fixed RTT.
type fakePinger struct {
	calls atomic.Int32
	rtt   float64
}

func (f *fakePinger) Ping(ctx context.Context, host string) PingResult {
	f.calls.Add(1)
	v := f.rtt
	return PingResult{RTTMs: &v}
}

type fakeGeo map[string]string

func (g fakeGeo) Country(ip string) string { return g[ip] }

// newTarget serves a few fixed pages standing in for real target sites.
func newTarget(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, legitPage)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html><head><title>Access Denied</title></head><body>Request blocked.</body></html>")
	})
	mux.HandleFunc("/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, legitPage)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		fmt.Fprint(w, legitPage)
	})
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "203.0.113.7\n")
	})
	mux.HandleFunc("/echo-ua", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("User-Agent"))
	})
	mux.HandleFunc("/leak", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"origin": "203.0.113.7"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHTTPProxy(t *testing.T) proxy.Proxy {
	t.Helper()
	gp := goproxy.NewProxyHttpServer()
	gp.Verbose = false
	srv := httptest.NewServer(gp)
	t.Cleanup(srv.Close)
	return mustParse(t, "http://"+strings.TrimPrefix(srv.URL, "http://"))
}

func newSOCKSProxy(t *testing.T) proxy.Proxy {
	t.Helper()
	server, err := socks5.New(&socks5.Config{})
	if err != nil {
		t.Fatalf("socks5.New: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go server.Serve(l)
	return mustParse(t, "socks5://"+l.Addr().String())
}

// deadAddr returns an address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func mustParse(t *testing.T, line string) proxy.Proxy {
	t.Helper()
	p, err := proxy.Parse(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return p
}

func newTestChecker(timeout time.Duration, target *httptest.Server, opts ...Option) *Checker {
	cfg := Config{
		Timeout:        timeout,
		UserAgent:      "BlockHawk-Test/1.0",
		IPCheckURLs:    []string{target.URL + "/ip"},
		IPCheckTimeout: timeout,
	}
	return NewChecker(cfg, pool.NewConnectionPool(pool.DefaultConfig()), nil, opts...)
}

func TestNewCheckerDefaults(t *testing.T) {
	c := NewChecker(Config{}, pool.NewConnectionPool(pool.DefaultConfig()), nil)

	if c.config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", c.config.Timeout)
	}
	if c.config.IPCheckTimeout != 10*time.Second {
		t.Errorf("IPCheckTimeout = %v, want 10s", c.config.IPCheckTimeout)
	}
	if len(c.config.IPCheckURLs) != len(DefaultIPCheckURLs) {
		t.Errorf("IPCheckURLs = %v, want defaults", c.config.IPCheckURLs)
	}
	if c.pinger == nil || c.logger == nil {
		t.Error("expected pinger and logger to be set")
	}
}

func TestProbeThroughProxies(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	tests := []struct {
		name  string
		proxy proxy.Proxy
	}{
		{"http", newHTTPProxy(t)},
		{"socks5", newSOCKSProxy(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.ProbeURL(context.Background(), tt.proxy, target.URL+"/ok", nil)

			if !res.Success {
				t.Fatalf("probe failed: %s", res.Error)
			}
			if res.HTTPStatus == nil || *res.HTTPStatus != http.StatusOK {
				t.Errorf("HTTPStatus = %v, want 200", res.HTTPStatus)
			}
			if res.ContentLength != len(legitPage) {
				t.Errorf("ContentLength = %d, want %d", res.ContentLength, len(legitPage))
			}
			if res.LatencyMs == nil || *res.LatencyMs < 0 {
				t.Errorf("LatencyMs = %v, want a measurement", res.LatencyMs)
			}
			if res.Block == nil || res.Block.IsBlocked {
				t.Errorf("Block = %+v, want unblocked verdict", res.Block)
			}
			if !res.IsWorking() {
				t.Error("expected proxy to be working")
			}
		})
	}
}

func TestProbeSendsUserAgent(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	res, body := c.probe(context.Background(), newHTTPProxy(t), target.URL+"/echo-ua", nil)
	if !res.Success {
		t.Fatalf("probe failed: %s", res.Error)
	}
	if body != "BlockHawk-Test/1.0" {
		t.Errorf("target saw User-Agent %q", body)
	}
}

func TestProbeBlockPage(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	res := c.ProbeURL(context.Background(), newHTTPProxy(t), target.URL+"/blocked", nil)

	if !res.Success {
		t.Fatalf("probe failed: %s", res.Error)
	}
	if res.Block == nil || !res.Block.IsBlocked {
		t.Fatalf("Block = %+v, want blocked", res.Block)
	}
	if res.Block.Confidence <= 0.6 {
		t.Errorf("Confidence = %v, want > 0.6", res.Block.Confidence)
	}
	if res.IsWorking() {
		t.Error("blocked response must not count as working")
	}
}

func TestProbeServerErrorNotWorking(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	res := c.ProbeURL(context.Background(), newHTTPProxy(t), target.URL+"/unavailable", nil)
	if !res.Success {
		t.Fatalf("probe failed: %s", res.Error)
	}
	if res.IsWorking() {
		t.Error("503 must not count as working")
	}
}

func TestProbeProxyUnreachable(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(2*time.Second, target)
	addr := deadAddr(t)

	for _, scheme := range []string{"http", "socks5"} {
		t.Run(scheme, func(t *testing.T) {
			res := c.ProbeURL(context.Background(), mustParse(t, scheme+"://"+addr), target.URL+"/ok", nil)

			if res.Success {
				t.Fatal("expected failure")
			}
			if res.Error != "Proxy connection failed" {
				t.Errorf("Error = %q, want %q", res.Error, "Proxy connection failed")
			}
			if res.HTTPStatus != nil || res.LatencyMs != nil || res.Block != nil {
				t.Errorf("failed result carries measurements: %+v", res)
			}
			if res.IsWorking() {
				t.Error("failed probe must not be working")
			}
		})
	}
}

func TestProbeReadTimeout(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(200*time.Millisecond, target)

	res := c.ProbeURL(context.Background(), newHTTPProxy(t), target.URL+"/slow", nil)
	if res.Success {
		t.Fatal("expected timeout")
	}
	if res.Error != "Read timeout" {
		t.Errorf("Error = %q, want %q", res.Error, "Read timeout")
	}
}

func TestProbeUnsupportedType(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(time.Second, target)

	res := c.ProbeURL(context.Background(), proxy.Proxy{Host: "127.0.0.1", Port: 1, Type: "ftp"}, target.URL+"/ok", nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Error, "Error: ") {
		t.Errorf("Error = %q, want generic prefix", res.Error)
	}
}

func TestCheckRunsAuxiliaryProbes(t *testing.T) {
	target := newTarget(t)
	pinger := &fakePinger{rtt: 12.5}
	c := newTestChecker(5*time.Second, target,
		WithPinger(pinger),
		WithGeoResolver(fakeGeo{"203.0.113.7": "NL"}))

	res := c.Check(context.Background(), newHTTPProxy(t), target.URL+"/ok", nil, Options{
		Ping:     true,
		IPCheck:  true,
		DirectIP: "203.0.113.7",
	})

	if !res.IsWorking() {
		t.Fatalf("expected working result, got %+v", res.URLTestResult)
	}
	if pinger.calls.Load() != 1 {
		t.Errorf("ping calls = %d, want 1", pinger.calls.Load())
	}
	if res.PingMs == nil || *res.PingMs != 12.5 {
		t.Errorf("PingMs = %v, want 12.5", res.PingMs)
	}
	if res.DetectedIP != "203.0.113.7" {
		t.Errorf("DetectedIP = %q", res.DetectedIP)
	}
	if res.Country != "NL" {
		t.Errorf("Country = %q, want NL", res.Country)
	}
	if !res.Transparent {
		t.Error("exit IP equal to direct IP must mark the proxy transparent")
	}
}

func TestCheckSkipsIPCheckOnFailure(t *testing.T) {
	target := newTarget(t)
	pinger := &fakePinger{rtt: 1}
	c := newTestChecker(time.Second, target, WithPinger(pinger))

	res := c.Check(context.Background(), mustParse(t, "http://"+deadAddr(t)), target.URL+"/ok", nil, Options{
		Ping:    true,
		IPCheck: true,
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.DetectedIP != "" {
		t.Errorf("DetectedIP = %q, want empty", res.DetectedIP)
	}
	if pinger.calls.Load() != 1 {
		t.Errorf("ping must still run on failure, calls = %d", pinger.calls.Load())
	}
}

func TestCheckDetectsLeakInBody(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	res := c.Check(context.Background(), newHTTPProxy(t), target.URL+"/leak", nil, Options{DirectIP: "203.0.113.7"})
	if !res.Transparent {
		t.Error("body revealing the direct IP must mark the proxy transparent")
	}

	res = c.Check(context.Background(), newHTTPProxy(t), target.URL+"/ok", nil, Options{DirectIP: "203.0.113.7"})
	if res.Transparent {
		t.Error("unexpected transparent flag")
	}
}

func TestCheckMulti(t *testing.T) {
	target := newTarget(t)
	pinger := &fakePinger{rtt: 3}
	c := newTestChecker(5*time.Second, target, WithPinger(pinger))

	urls := []string{target.URL + "/ok", target.URL + "/unavailable", target.URL + "/blocked"}
	res := c.CheckMulti(context.Background(), newSOCKSProxy(t), urls, nil, Options{Ping: true, IPCheck: true})

	if res.TotalCount() != 3 {
		t.Fatalf("TotalCount = %d, want 3", res.TotalCount())
	}
	if res.WorkingCount() != 1 {
		t.Errorf("WorkingCount = %d, want 1", res.WorkingCount())
	}
	if res.IsFullyWorking() || !res.AnyWorking() {
		t.Error("expected partial success")
	}
	if pinger.calls.Load() != 1 {
		t.Errorf("ping calls = %d, want exactly one per proxy", pinger.calls.Load())
	}
	if res.DetectedIP != "203.0.113.7" {
		t.Errorf("DetectedIP = %q", res.DetectedIP)
	}

	ordered := res.Results()
	for i, u := range urls {
		if ordered[i].URL != u {
			t.Errorf("Results()[%d].URL = %q, want %q", i, ordered[i].URL, u)
		}
	}
}

func TestCheckMultiAllFailedSkipsIPCheck(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(time.Second, target)

	urls := []string{target.URL + "/ok", target.URL + "/blocked"}
	res := c.CheckMulti(context.Background(), mustParse(t, "socks5://"+deadAddr(t)), urls, nil, Options{IPCheck: true})

	if res.AnyWorking() {
		t.Error("expected no working URL")
	}
	if res.DetectedIP != "" {
		t.Errorf("DetectedIP = %q, want empty", res.DetectedIP)
	}
	for _, r := range res.Results() {
		if r.Error != "Proxy connection failed" {
			t.Errorf("%s: Error = %q", r.URL, r.Error)
		}
	}
}

func TestReference(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	ref := c.Reference(context.Background(), target.URL+"/ok")
	if ref == nil {
		t.Fatal("expected a reference")
	}
	if ref.Length != len(legitPage) {
		t.Errorf("Length = %d, want %d", ref.Length, len(legitPage))
	}
	if ref.Hash != detector.ContentHash([]byte(legitPage)) {
		t.Errorf("Hash = %s", ref.Hash)
	}

	// Any status is accepted as a baseline.
	if c.Reference(context.Background(), target.URL+"/blocked") == nil {
		t.Error("expected reference for 403 page")
	}

	if c.Reference(context.Background(), "http://"+deadAddr(t)+"/") != nil {
		t.Error("expected nil reference for unreachable target")
	}
}

func TestDirectIP(t *testing.T) {
	target := newTarget(t)
	c := newTestChecker(5*time.Second, target)

	ip, err := c.DirectIP(context.Background())
	if err != nil {
		t.Fatalf("DirectIP error: %v", err)
	}
	if ip != "203.0.113.7" {
		t.Errorf("DirectIP = %q", ip)
	}
}

func TestReadBodyDecodesAndLimits(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(legitPage))
	zw.Close()

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": {"gzip"}},
		Body:   io.NopCloser(bytes.NewReader(buf.Bytes())),
	}
	body, err := readBody(resp, 1<<20)
	if err != nil {
		t.Fatalf("readBody: %v", err)
	}
	if string(body) != legitPage {
		t.Errorf("decoded body mismatch: got %d bytes", len(body))
	}

	resp = &http.Response{
		Header: http.Header{},
		Body:   io.NopCloser(strings.NewReader(legitPage)),
	}
	body, err = readBody(resp, 10)
	if err != nil {
		t.Fatalf("readBody: %v", err)
	}
	if len(body) != 10 {
		t.Errorf("len = %d, want 10", len(body))
	}

	resp = &http.Response{
		Header: http.Header{"Content-Encoding": {"gzip"}},
		Body:   io.NopCloser(strings.NewReader("not gzip")),
	}
	if _, err := readBody(resp, 1<<20); err == nil {
		t.Error("expected error for corrupt gzip body")
	}
}
