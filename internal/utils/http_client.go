package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient builds the client used for completion provider calls. The
// timeout covers the whole exchange including reading the streamed body, so
// it doubles as an upper bound on provider stream duration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
