package checker

import (
	"context"
	stderrors "errors"
	"math"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
)

// PingResult is the outcome of pinging a proxy host. Exactly one of RTTMs
// and Err is set; Cause carries the coded error behind Err.
type PingResult struct {
	RTTMs *float64
	Err   string
	Cause error
}

func pingFailure(code errors.ErrorCode, msg, host string, cause error) PingResult {
	return PingResult{Err: msg, Cause: errors.NewProxyError(code, msg, host, cause)}
}

// Pinger measures round-trip time to a host.
type Pinger interface {
	Ping(ctx context.Context, host string) PingResult
}

var (
	windowsAverage = regexp.MustCompile(`Average\s*=\s*(\d+)ms`)
	unixSummary    = regexp.MustCompile(`avg[^=]*=\s*[\d.]+/([\d.]+)/`)
	unixSample     = regexp.MustCompile(`time[=<]([\d.]+)\s*ms`)
)

// CommandPinger shells out to the system ping utility.
type CommandPinger struct {
	Count   int
	Timeout time.Duration
	GOOS    string

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandPinger returns a pinger for the running platform.
func NewCommandPinger(count int, timeout time.Duration) *CommandPinger {
	return &CommandPinger{
		Count:   count,
		Timeout: timeout,
		GOOS:    runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

func (p *CommandPinger) command(host string) (string, []string) {
	count := strconv.Itoa(p.Count)
	if p.GOOS == "windows" {
		return "ping", []string{"-n", count, "-w", "2000", host}
	}
	return "ping", []string{"-c", count, "-W", "2", host}
}

// Ping runs the platform ping and extracts the average round trip.
// A ping killed because the caller's context ended is reported as cancelled,
// not as an unreachable host.
func (p *CommandPinger) Ping(ctx context.Context, host string) PingResult {
	runCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	name, args := p.command(host)
	out, err := p.run(runCtx, name, args...)

	switch {
	case ctx.Err() != nil:
		return pingFailure(errors.ErrorSystemShutdown, "Ping cancelled", host, ctx.Err())
	case stderrors.Is(runCtx.Err(), context.DeadlineExceeded):
		return pingFailure(errors.ErrorSystemTimeout, "Ping timeout", host, runCtx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return pingFailure(errors.ErrorPingFailed, "Host unreachable", host, err)
		}
		return pingFailure(errors.ErrorPingFailed, "Ping error: "+truncate(err.Error(), 30), host, err)
	}

	rtt, ok := parsePingOutput(p.GOOS, string(out))
	if !ok {
		return pingFailure(errors.ErrorPingFailed, "Could not parse ping output", host, nil)
	}
	return PingResult{RTTMs: &rtt}
}

// parsePingOutput extracts the average RTT in milliseconds. Unix output is
// read from the min/avg/max summary, falling back to the mean of the
// individual reply times.
func parsePingOutput(goos, output string) (float64, bool) {
	if goos == "windows" {
		m := windowsAverage.FindStringSubmatch(output)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		return v, err == nil
	}

	if m := unixSummary.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}

	samples := unixSample.FindAllStringSubmatch(output, -1)
	var sum float64
	n := 0
	for _, s := range samples {
		if v, err := strconv.ParseFloat(s[1], 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return round2(sum / float64(n)), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
