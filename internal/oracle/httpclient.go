package oracle

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	idleConnsPerHost      = 8
	dialTimeout           = 10 * time.Second
)

// NewHTTPClient returns a keep-alive client for the oracle backends and the
// chat APIs. Share one client per group of backends so each host keeps a
// single idle pool.
// timeout bounds a whole request including the body; zero or less picks
// two minutes.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        4 * idleConnsPerHost,
			MaxIdleConnsPerHost: idleConnsPerHost,
			IdleConnTimeout:     time.Minute,
			TLSHandshakeTimeout: dialTimeout,
		},
	}
}
