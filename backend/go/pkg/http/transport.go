package http

import (
	"fmt"
	"net/http"

	"Cirkle/backend/go/internal/config"
	"Cirkle/backend/go/pkg/circuitbreaker"
)

// BreakerTransport is an http.RoundTripper that trips a circuit breaker on
// transport errors and 5xx responses. 5xx responses are still returned to the
// caller so API clients can decode the error body.
type BreakerTransport struct {
	base    http.RoundTripper
	breaker circuitbreaker.CircuitBreaker
}

// NewBreakerTransport wraps base (http.DefaultTransport if nil).
func NewBreakerTransport(base http.RoundTripper, breaker circuitbreaker.CircuitBreaker) *BreakerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BreakerTransport{base: base, breaker: breaker}
}

// TransportFromConfig returns base wrapped in a breaker when enabled, base otherwise.
func TransportFromConfig(name string, base http.RoundTripper, cfg config.CircuitBreakerConfig) (http.RoundTripper, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	if !cfg.Enabled {
		return base, nil
	}
	breaker, err := circuitbreaker.FromConfig(name, cfg)
	if err != nil {
		return nil, err
	}
	return NewBreakerTransport(base, breaker), nil
}

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := t.breaker.Execute(func() error {
		r, err := t.base.RoundTrip(req)
		if err != nil {
			return err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error: received status code %d", r.StatusCode)
		}
		return nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}
