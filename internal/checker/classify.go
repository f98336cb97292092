package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/ResistanceIsUseless/BlockHawk/internal/errors"
	"github.com/ResistanceIsUseless/BlockHawk/internal/pool"
)

// attempt describes where a failed request got to before it failed.
type attempt struct {
	proxy     string // display form, empty for direct requests
	viaHTTP   bool   // request went through an HTTP(S) proxy
	connected bool   // a usable connection to the target was obtained
}

// classifyError maps a transport failure onto the short operator-facing
// messages recorded on failed probes.
func classifyError(err error, at attempt) *errors.ProxyError {
	msg := err.Error()

	switch {
	case isTimeout(err):
		if at.connected {
			return errors.NewNetworkError(errors.ErrorReadTimeout, "Read timeout", at.proxy, err)
		}
		return errors.NewNetworkError(errors.ErrorConnectionTimeout, "Connection timeout", at.proxy, err)

	case stderrors.Is(err, context.Canceled):
		return errors.NewNetworkError(errors.ErrorSystemShutdown, "Error: "+truncate(msg, 50), at.proxy, err)

	case isProxyDialFailure(err):
		return errors.NewNetworkError(errors.ErrorProxyConnectionFailed, "Proxy connection failed", at.proxy, err)

	case isTLSFailure(err):
		return errors.NewNetworkError(errors.ErrorTLSHandshakeFailed, "SSL Error: "+truncate(tlsMessage(err), 50), at.proxy, err)

	case at.viaHTTP && !at.connected:
		// The proxy accepted the TCP connection but refused or failed the
		// tunnel (CONNECT answered with a non-200 status).
		return errors.NewNetworkError(errors.ErrorProxyConnectionFailed, "Proxy connection failed", at.proxy, err)

	case isConnectionFailure(err):
		return errors.NewNetworkError(errors.ErrorConnectionFailed, "Connection failed", at.proxy, err)

	default:
		return errors.NewNetworkError(errors.ErrorHTTPRequestFailed, "Error: "+truncate(msg, 50), at.proxy, err)
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

func isProxyDialFailure(err error) bool {
	var de *pool.DialError
	if stderrors.As(err, &de) {
		return true
	}
	var oe *net.OpError
	return stderrors.As(err, &oe) && oe.Op == "proxyconnect"
}

func isTLSFailure(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case stderrors.As(err, &recordErr),
		stderrors.As(err, &verifyErr),
		stderrors.As(err, &authorityErr),
		stderrors.As(err, &hostnameErr),
		stderrors.As(err, &invalidErr):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}

// tlsMessage strips the request wrapper so the truncated text starts with
// the TLS failure itself.
func tlsMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "tls: "); i >= 0 {
		return msg[i:]
	}
	return msg
}

func isConnectionFailure(err error) bool {
	var (
		oe  *net.OpError
		dns *net.DNSError
	)
	switch {
	case stderrors.As(err, &oe),
		stderrors.As(err, &dns),
		stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.ECONNRESET),
		stderrors.Is(err, io.EOF),
		stderrors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
