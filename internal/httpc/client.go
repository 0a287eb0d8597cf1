// Package httpc provides HTTP clients and websocket dialers with sensible
// defaults. Use these instead of http.DefaultClient and
// websocket.DefaultDialer to ensure timeouts are set.
package httpc

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts for network operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultTLSTimeout      = 10 * time.Second
)

func netDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}
}

// NewTransport returns an http.Transport honoring proxy environment
// variables.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           netDialer().DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   DefaultTLSTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient creates an HTTP client with the given overall timeout. A
// non-positive timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}

// NewDialer creates a websocket dialer whose opening handshake is bounded
// by timeout. A non-positive timeout uses DefaultTimeout.
func NewDialer(timeout time.Duration) *websocket.Dialer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   netDialer().DialContext,
		HandshakeTimeout: timeout,
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  32 * 1024,
	}
}
