package httputil

import (
	"net/http"
	"time"
)

// NewClient creates an HTTP client with the given timeout and shared
// transport settings. The faucet proxy, search relay, callback client, and
// balance-alert sender all construct their clients here so connection reuse
// behaves the same everywhere.
//
// Transport settings:
//   - MaxIdleConns: 100 (total idle connections across all hosts)
//   - MaxIdleConnsPerHost: 10 (idle connections per host)
//   - IdleConnTimeout: 90s (time to keep idle connections alive)
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
