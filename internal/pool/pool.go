package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"h12.io/socks"

	"github.com/ResistanceIsUseless/BlockHawk/internal/proxy"
)

// ConnectionPool hands out HTTP clients per proxy, reusing them so the
// probe, the IP check and every target URL for one proxy share connections.
type ConnectionPool struct {
	config  Config
	clients map[string]*http.Client
	mutex   sync.RWMutex
}

// Config represents connection pool configuration
type Config struct {
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	KeepAliveTimeout      time.Duration `yaml:"keep_alive_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout"`
	DisableKeepAlives     bool          `yaml:"disable_keep_alives"`

	// Proxies routinely intercept TLS with their own certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
	FollowRedirects    bool `yaml:"follow_redirects"`
	MaxRedirects       int  `yaml:"max_redirects"`
}

// DefaultConfig returns a connection pool configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		KeepAliveTimeout:      30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     false,
		InsecureSkipVerify:    true,
		FollowRedirects:       true,
		MaxRedirects:          10,
	}
}

// DialError is returned when the proxy itself could not be reached or
// refused to open a tunnel.
type DialError struct {
	Proxy string
	Err   error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("proxy dial %s: %v", e.Proxy, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// NewConnectionPool creates a new connection pool with the given configuration
func NewConnectionPool(config Config) *ConnectionPool {
	return &ConnectionPool{
		config:  config,
		clients: make(map[string]*http.Client),
	}
}

// GetClient returns an HTTP client that routes through p with the given
// overall timeout.
func (cp *ConnectionPool) GetClient(p proxy.Proxy, timeout time.Duration) (*http.Client, error) {
	return cp.cached(p.Key()+"|"+timeout.String(), func() (*http.Client, error) {
		return cp.createClient(p, timeout)
	})
}

// GetDirectClient returns an HTTP client that connects without a proxy.
func (cp *ConnectionPool) GetDirectClient(timeout time.Duration) *http.Client {
	client, _ := cp.cached("direct|"+timeout.String(), func() (*http.Client, error) {
		return cp.newClient(cp.newTransport(timeout), timeout), nil
	})
	return client
}

func (cp *ConnectionPool) cached(key string, build func() (*http.Client, error)) (*http.Client, error) {
	cp.mutex.RLock()
	client, exists := cp.clients[key]
	cp.mutex.RUnlock()
	if exists {
		return client, nil
	}

	client, err := build()
	if err != nil {
		return nil, err
	}

	cp.mutex.Lock()
	defer cp.mutex.Unlock()
	if existing, ok := cp.clients[key]; ok {
		return existing, nil
	}
	cp.clients[key] = client
	return client, nil
}

func (cp *ConnectionPool) createClient(p proxy.Proxy, timeout time.Duration) (*http.Client, error) {
	transport := cp.newTransport(timeout)

	switch p.Type {
	case proxy.TypeHTTP, proxy.TypeHTTPS:
		transport.Proxy = http.ProxyURL(p.URL())

	case proxy.TypeSOCKS5:
		dialSocks := socks.Dial(socksURI(p, timeout))
		display := p.String()
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			type dialed struct {
				conn net.Conn
				err  error
			}
			done := make(chan dialed, 1)
			go func() {
				conn, err := dialSocks(network, addr)
				done <- dialed{conn, err}
			}()

			select {
			case d := <-done:
				if d.err != nil {
					return nil, &DialError{Proxy: display, Err: d.err}
				}
				return d.conn, nil
			case <-ctx.Done():
				go func() {
					if d := <-done; d.conn != nil {
						d.conn.Close()
					}
				}()
				return nil, &DialError{Proxy: display, Err: ctx.Err()}
			}
		}

	default:
		return nil, fmt.Errorf("unsupported proxy type %q", p.Type)
	}

	return cp.newClient(transport, timeout), nil
}

// socksURI renders the h12.io/socks dial string, which carries credentials
// and the handshake timeout in the URI itself.
func socksURI(p proxy.Proxy, timeout time.Duration) string {
	u := &url.URL{Scheme: "socks5", Host: p.Address()}
	if p.HasAuth() {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	if timeout > 0 {
		u.RawQuery = url.Values{"timeout": {timeout.String()}}.Encode()
	}
	return u.String()
}

func (cp *ConnectionPool) newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: cp.config.KeepAliveTimeout,
	}

	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cp.config.MaxIdleConns,
		MaxIdleConnsPerHost:   cp.config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cp.config.MaxConnsPerHost,
		IdleConnTimeout:       cp.config.IdleConnTimeout,
		TLSHandshakeTimeout:   cp.config.TLSHandshakeTimeout,
		ExpectContinueTimeout: cp.config.ExpectContinueTimeout,
		DisableKeepAlives:     cp.config.DisableKeepAlives,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cp.config.InsecureSkipVerify,
		},
	}
}

func (cp *ConnectionPool) newClient(transport *http.Transport, timeout time.Duration) *http.Client {
	follow := cp.config.FollowRedirects
	maxRedirects := cp.config.MaxRedirects

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !follow {
				return http.ErrUseLastResponse
			}
			if maxRedirects > 0 && len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// CloseIdleConnections closes idle connections for all cached clients
func (cp *ConnectionPool) CloseIdleConnections() {
	cp.mutex.RLock()
	defer cp.mutex.RUnlock()

	for _, client := range cp.clients {
		client.CloseIdleConnections()
	}
}

// GetStats returns statistics about the connection pool
func (cp *ConnectionPool) GetStats() PoolStats {
	cp.mutex.RLock()
	defer cp.mutex.RUnlock()

	return PoolStats{
		CachedClients:       len(cp.clients),
		MaxIdleConns:        cp.config.MaxIdleConns,
		MaxIdleConnsPerHost: cp.config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cp.config.MaxConnsPerHost,
		IdleConnTimeout:     cp.config.IdleConnTimeout,
		KeepAliveTimeout:    cp.config.KeepAliveTimeout,
	}
}

// PoolStats contains statistics about the connection pool
type PoolStats struct {
	CachedClients       int           `json:"cached_clients"`
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `json:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	KeepAliveTimeout    time.Duration `json:"keep_alive_timeout"`
}

// Release drops the cached clients for p and closes their idle connections.
// The checker calls it once a proxy's test sequence is finished.
func (cp *ConnectionPool) Release(p proxy.Proxy) {
	prefix := p.Key() + "|"

	cp.mutex.Lock()
	defer cp.mutex.Unlock()
	for key, client := range cp.clients {
		if strings.HasPrefix(key, prefix) {
			client.CloseIdleConnections()
			delete(cp.clients, key)
		}
	}
}
