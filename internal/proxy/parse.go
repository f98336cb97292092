package proxy

import (
	stderrors "errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
)

var (
	schemeForm   = regexp.MustCompile(`(?i)^(https?|socks5)://(?:([^:@]+):([^@]+)@)?([^:@/]+):(\d+)/?$`)
	userPassForm = regexp.MustCompile(`^([^:@]+):([^@]+)@([^:@]+):(\d+)$`)
	colonForm    = regexp.MustCompile(`^([^:@]+):(\d+):([^:]+):(.+)$`)
	hostPortForm = regexp.MustCompile(`^([^:@]+):(\d+)$`)
)

// IsSkippable reports whether a list line carries no proxy: blank lines and
// '#' comments.
func IsSkippable(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

// Parse builds a Proxy from one line in any of the accepted forms:
//
//	scheme://[user:pass@]host:port   (scheme is http, https or socks5)
//	user:pass@host:port
//	host:port:user:pass
//	host:port
//
// Forms without a scheme are HTTP proxies. Credentials in the scheme form
// are percent-decoded, matching what Line renders.
func Parse(line string) (Proxy, error) {
	line = strings.TrimSpace(line)

	if m := schemeForm.FindStringSubmatch(line); m != nil {
		t, _ := ParseType(m[1])
		user, errUser := url.PathUnescape(m[2])
		pass, errPass := url.PathUnescape(m[3])
		if errUser != nil || errPass != nil {
			return Proxy{}, errors.NewProxyError(errors.ErrorProxyInvalidFormat,
				"malformed credential escape", "", stderrors.Join(errUser, errPass)).WithDetail("line", line)
		}
		return build(line, m[4], m[5], user, pass, t)
	}
	if i := strings.Index(line, "://"); i > 0 {
		if _, ok := ParseType(line[:i]); !ok {
			return Proxy{}, errors.NewProxyError(errors.ErrorProxyUnsupportedType,
				"unsupported proxy scheme", "", nil).WithDetail("line", line)
		}
		return Proxy{}, errors.NewProxyError(errors.ErrorProxyInvalidFormat,
			"unrecognized proxy format", "", nil).WithDetail("line", line)
	}
	if m := userPassForm.FindStringSubmatch(line); m != nil {
		return build(line, m[3], m[4], m[1], m[2], TypeHTTP)
	}
	if m := colonForm.FindStringSubmatch(line); m != nil {
		return build(line, m[1], m[2], m[3], m[4], TypeHTTP)
	}
	if m := hostPortForm.FindStringSubmatch(line); m != nil {
		return build(line, m[1], m[2], "", "", TypeHTTP)
	}
	return Proxy{}, errors.NewProxyError(errors.ErrorProxyInvalidFormat,
		"unrecognized proxy format", "", nil).WithDetail("line", line)
}

func build(line, host, port, user, pass string, t Type) (Proxy, error) {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return Proxy{}, errors.NewProxyError(errors.ErrorProxyInvalidFormat,
			"port must be between 1 and 65535", "", err).WithDetail("line", line)
	}
	return Proxy{Host: host, Port: n, Username: user, Password: pass, Type: t}, nil
}
