package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
)

// DefaultIPCheckURLs are tried in order; the first plausible answer wins.
var DefaultIPCheckURLs = []string{
	"https://api.ipify.org",
	"https://icanhazip.com",
	"https://ipinfo.io/ip",
}

// maxIPLength bounds what is accepted as a plaintext IP answer.
const maxIPLength = 50

// IPChecker discovers the public address a client egresses from by asking
// plaintext "what is my IP" services one after another.
type IPChecker struct {
	URLs      []string
	UserAgent string
}

// Detect returns the first address reported by any endpoint. When every
// endpoint failed the error carries the last failure.
func (ic *IPChecker) Detect(ctx context.Context, client *http.Client) (string, error) {
	var last error
	for _, endpoint := range ic.URLs {
		if err := ctx.Err(); err != nil {
			return "", errors.NewSystemError(errors.ErrorSystemShutdown, "exit IP discovery cancelled", err)
		}
		ip, err := ic.ask(ctx, client, endpoint)
		if err == nil {
			return ip, nil
		}
		last = err
	}
	return "", errors.NewProxyError(errors.ErrorIPCheckFailed,
		"exit IP discovery failed on every endpoint", "", last).WithDetail("endpoints", len(ic.URLs))
}

func (ic *IPChecker) ask(ctx context.Context, client *http.Client, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if ic.UserAgent != "" {
		req.Header.Set("User-Agent", ic.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: HTTP %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*maxIPLength))
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" || len(ip) >= maxIPLength {
		return "", fmt.Errorf("%s: no plaintext address in response", endpoint)
	}
	return ip, nil
}
