// Package checker probes target URLs through proxies and records latency,
// throughput and block-page verdicts, plus optional ping and exit-IP data.
package checker

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ResistanceIsUseless/BlockHawk/internal/detector"
	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/logging"
	"github.com/ResistanceIsUseless/BlockHawk/internal/pool"
	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
	"github.com/ResistanceIsUseless/BlockHawk/internal/sanitizer"
)

var debugSanitizer = sanitizer.DefaultSanitizer()

// Config holds everything a probe needs. It is passed in explicitly; the
// checker keeps no process-wide state.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	DefaultHeaders map[string]string
	MaxBodyBytes   int64

	IPCheckURLs    []string
	IPCheckTimeout time.Duration
}

// Options toggles the auxiliary probes for one run.
type Options struct {
	Ping    bool
	IPCheck bool

	// DirectIP is the operator's own public address. When set, results
	// whose exit IP or response body reveal it are marked transparent.
	DirectIP string
}

// GeoResolver maps an IP address to an ISO country code.
type GeoResolver interface {
	Country(ip string) string
}

// Checker runs probes through proxies obtained from a connection pool.
type Checker struct {
	config Config
	pool   *pool.ConnectionPool
	pinger Pinger
	ip     *IPChecker
	geo    GeoResolver
	logger *logging.Logger
}

// Option customizes a Checker.
type Option func(*Checker)

// WithPinger replaces the system ping command.
func WithPinger(p Pinger) Option {
	return func(c *Checker) { c.pinger = p }
}

// WithGeoResolver enables country lookup of detected exit IPs.
func WithGeoResolver(g GeoResolver) Option {
	return func(c *Checker) { c.geo = g }
}

// NewChecker creates a checker. A nil logger discards output.
func NewChecker(config Config, cp *pool.ConnectionPool, logger *logging.Logger, opts ...Option) *Checker {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.IPCheckTimeout <= 0 {
		config.IPCheckTimeout = 10 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 10 << 20
	}
	if len(config.IPCheckURLs) == 0 {
		config.IPCheckURLs = DefaultIPCheckURLs
	}
	if logger == nil {
		logger = logging.Discard()
	}

	c := &Checker{
		config: config,
		pool:   cp,
		pinger: NewCommandPinger(3, 10*time.Second),
		ip:     &IPChecker{URLs: config.IPCheckURLs, UserAgent: config.UserAgent},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProbeURL issues one GET for target through p and scores the response.
// Transport failures are returned as data, never as errors.
func (c *Checker) ProbeURL(ctx context.Context, p proxy.Proxy, target string, ref *detector.Reference) URLTestResult {
	res, _ := c.probe(ctx, p, target, ref)
	return res
}

// Check runs the single-URL sequence for one proxy: the HTTP probe, then
// ping, then exit-IP discovery when the probe succeeded.
func (c *Checker) Check(ctx context.Context, p proxy.Proxy, target string, ref *detector.Reference, opts Options) TestResult {
	defer c.pool.Release(p)

	res, body := c.probe(ctx, p, target, ref)
	out := TestResult{Proxy: p, URLTestResult: res}

	if opts.DirectIP != "" && detector.CheckIPMatch(body, opts.DirectIP) {
		out.Transparent = true
	}
	if opts.Ping {
		c.ping(ctx, p, &out.Aux)
	}
	if opts.IPCheck && res.Success {
		c.discoverIP(ctx, p, opts.DirectIP, &out.Aux)
	}
	return out
}

// CheckMulti probes each target in order through p, then pings once and
// discovers the exit IP if any URL succeeded.
func (c *Checker) CheckMulti(ctx context.Context, p proxy.Proxy, targets []string, refs map[string]*detector.Reference, opts Options) MultiURLTestResult {
	defer c.pool.Release(p)

	out := MultiURLTestResult{
		Proxy:      p,
		URLs:       targets,
		URLResults: make(map[string]URLTestResult, len(targets)),
	}

	anySuccess := false
	for _, target := range targets {
		res, body := c.probe(ctx, p, target, refs[target])
		out.URLResults[target] = res
		anySuccess = anySuccess || res.Success
		if opts.DirectIP != "" && detector.CheckIPMatch(body, opts.DirectIP) {
			out.Transparent = true
		}
	}

	if opts.Ping {
		c.ping(ctx, p, &out.Aux)
	}
	if opts.IPCheck && anySuccess {
		c.discoverIP(ctx, p, opts.DirectIP, &out.Aux)
	}
	return out
}

// Reference fetches target directly, without a proxy, to fingerprint the
// baseline response. It returns nil on any failure.
func (c *Checker) Reference(ctx context.Context, target string) *detector.Reference {
	client := c.pool.GetDirectClient(c.config.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		c.logger.ReferenceFetched(target, 0, false)
		return nil
	}
	defer resp.Body.Close()

	body, err := readBody(resp, c.config.MaxBodyBytes)
	if err != nil {
		c.logger.ReferenceFetched(target, 0, false)
		return nil
	}

	c.logger.ReferenceFetched(target, len(body), true)
	if !detector.LooksLegitimate(string(body)) {
		c.logger.WithURL(target).Debug("Reference response does not look like a full HTML page")
	}
	return detector.NewReference(body)
}

// DirectIP discovers the operator's own public address without a proxy.
func (c *Checker) DirectIP(ctx context.Context) (string, error) {
	return c.ip.Detect(ctx, c.pool.GetDirectClient(c.config.IPCheckTimeout))
}

func (c *Checker) probe(ctx context.Context, p proxy.Proxy, target string, ref *detector.Reference) (URLTestResult, string) {
	client, err := c.pool.GetClient(p, c.config.Timeout)
	if err != nil {
		perr := errors.NewProxyError(errors.ErrorProxyUnsupportedType, "Error: "+truncate(err.Error(), 50), p.String(), err)
		return failed(target, perr), ""
	}

	at := attempt{proxy: p.String(), viaHTTP: p.Type != proxy.TypeSOCKS5}
	res, body := c.fetch(ctx, client, target, ref, at)
	c.logger.ProbeResult(p.String(), target, res.IsWorking(), res.LatencyMs, res.Error)
	if res.Block != nil && res.Block.IsBlocked {
		c.logger.WithProxy(p.String()).Debug("Block page excerpt",
			"url", target, "reason", res.Block.Reason, "excerpt", debugSanitizer.SanitizeDebugInfo(truncate(body, 300)))
	}
	return res, body
}

func (c *Checker) fetch(ctx context.Context, client *http.Client, target string, ref *detector.Reference, at attempt) (URLTestResult, string) {
	var connected atomic.Bool
	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { connected.Store(true) },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, target, nil)
	if err != nil {
		perr := errors.NewHTTPError(errors.ErrorHTTPRequestFailed, "Error: "+truncate(err.Error(), 50), target, err)
		return failed(target, perr), ""
	}
	c.applyHeaders(req)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		at.connected = connected.Load()
		return failed(target, classifyError(err, at).WithURL(target)), ""
	}
	defer resp.Body.Close()

	body, err := readBody(resp, c.config.MaxBodyBytes)
	if err != nil {
		at.connected = true
		return failed(target, classifyError(err, at).WithURL(target)), ""
	}
	elapsed := time.Since(start)

	latency := round2(float64(elapsed.Microseconds()) / 1000)
	res := URLTestResult{
		URL:           target,
		Success:       true,
		HTTPStatus:    ptr(resp.StatusCode),
		LatencyMs:     ptr(latency),
		ContentLength: len(body),
	}
	if latency > 0 {
		res.ThroughputKBps = ptr(round2((float64(len(body)) / 1024) / (latency / 1000)))
	}

	text := string(body)
	block := detector.Detect(text, resp.StatusCode, len(body), ref)
	res.Block = &block
	return res, text
}

func (c *Checker) applyHeaders(req *http.Request) {
	for key, value := range c.config.DefaultHeaders {
		req.Header.Set(key, value)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
}

func (c *Checker) ping(ctx context.Context, p proxy.Proxy, aux *Aux) {
	r := c.pinger.Ping(ctx, p.Host)
	aux.PingMs, aux.PingError = r.RTTMs, r.Err
	if r.Cause != nil {
		c.logger.WithProxy(p.String()).Debug("Ping failed",
			"error", r.Err,
			"category", errors.GetErrorCategory(r.Cause))
	}
}

func (c *Checker) discoverIP(ctx context.Context, p proxy.Proxy, directIP string, aux *Aux) {
	client, err := c.pool.GetClient(p, c.config.IPCheckTimeout)
	if err != nil {
		return
	}

	aux.DetectedIP, err = c.ip.Detect(ctx, client)
	if err != nil {
		c.logger.WithProxy(p.String()).Debug("Exit IP discovery failed",
			"error", err,
			"category", errors.GetErrorCategory(err))
		return
	}
	if directIP != "" && aux.DetectedIP == directIP {
		aux.Transparent = true
	}
	if c.geo != nil {
		aux.Country = c.geo.Country(aux.DetectedIP)
	}
}

// readBody reads at most limit decoded bytes. Setting Accept-Encoding by
// hand turns off the transport's own gzip handling, so decoding happens here.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		r = fl
	}

	return io.ReadAll(io.LimitReader(r, limit))
}
