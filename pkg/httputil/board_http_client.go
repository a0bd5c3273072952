// Package httputil provides a shared pooled HTTP client for outbound
// provider calls.
package httputil

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientConfig holds HTTP client tuning knobs.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration
}

// DefaultClientConfig is tuned for steady Gmail API traffic: many
// requests against a single host, so per-host limits dominate.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     60 * time.Second,
	}
}

// NewClient creates an HTTP client with connection pooling.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: cfg.ResponseTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
			MaxConnsPerHost:       cfg.MaxConnsPerHost,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

var (
	sharedClient *http.Client
	sharedOnce   sync.Once
)

// SharedClient returns the process-wide pooled client. Every mailbox
// talks to the same Gmail endpoints, so sharing one transport keeps
// connections warm across sync rounds.
func SharedClient() *http.Client {
	sharedOnce.Do(func() {
		sharedClient = NewClient(DefaultClientConfig())
	})
	return sharedClient
}
