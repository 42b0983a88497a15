package http

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Cirkle/backend/go/internal/config"
	"Cirkle/backend/go/pkg/circuitbreaker"
)

// helper function to create a mock config for testing
func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Middleware: config.MiddlewareConfig{
			RateLimiter: config.RateLimiterConfig{
				Enabled:  true,
				Rate:     10,
				Capacity: 5,
			},
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2, // Open after 2 consecutive failures
				SuccessThreshold: 2,
				Timeout:          "10s",
			},
		},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewServer_Address(t *testing.T) {
	cfg := newTestConfig()

	srv, err := NewServer(cfg, okHandler())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.Addr() != config.DefaultServerAddress {
		t.Errorf("Expected default address %s, got %s", config.DefaultServerAddress, srv.Addr())
	}

	cfg.Server.Address = ":7070"
	srv, _ = NewServer(cfg, okHandler())
	if srv.Addr() != ":7070" {
		t.Errorf("Expected config address :7070, got %s", srv.Addr())
	}

	srv, _ = NewServer(cfg, okHandler(), WithAddress(":9999"))
	if srv.Addr() != ":9999" {
		t.Errorf("Expected option to override address, got %s", srv.Addr())
	}
}

func TestNewServer_InvalidBreakerTimeout(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.CircuitBreaker.Timeout = "later"

	if _, err := NewServer(cfg, okHandler()); err == nil {
		t.Fatal("Expected an error for an invalid breaker timeout")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	cfg := newTestConfig()
	// Use a very small capacity to make testing easier
	cfg.Middleware.RateLimiter.Capacity = 2
	cfg.Middleware.RateLimiter.Rate = 0.001

	srv, err := NewServer(cfg, okHandler())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	testServer := httptest.NewServer(srv.httpServer.Handler)
	defer testServer.Close()

	// First 2 requests should pass (equal to capacity)
	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL)
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status OK on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// The 3rd request should be rate limited
	resp, err := http.Get(testServer.URL)
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status TooManyRequests on request 3, got %d", resp.StatusCode)
	}
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.RateLimiter.Enabled = false

	// This handler will always fail, to trip the breaker
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})
	srv, err := NewServer(cfg, failing)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	testServer := httptest.NewServer(srv.httpServer.Handler)
	defer testServer.Close()

	// First 2 requests should fail and trip the circuit
	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL + "/fail")
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("Expected status InternalServerError on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// The 3rd request should be blocked by the open circuit breaker
	resp, err := http.Get(testServer.URL + "/fail")
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status ServiceUnavailable on request 3, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Circuit Breaker is open") {
		t.Errorf("Expected body to contain 'Circuit Breaker is open', got '%s'", string(body))
	}
}

func TestBreakerTransport(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"backend down"}}`, http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	breaker := circuitbreaker.New(circuitbreaker.Settings{FailureThreshold: 2, Timeout: time.Hour})
	client := &http.Client{Transport: NewBreakerTransport(nil, breaker)}

	// 5xx responses are handed back to the caller while counting as failures.
	for i := 0; i < 2; i++ {
		resp, err := client.Get(upstream.URL)
		if err != nil {
			t.Fatalf("Request %d returned error: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected upstream status 503, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	_, err := client.Get(upstream.URL)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen once the breaker trips, got %v", err)
	}
}

func TestTransportFromConfig_Disabled(t *testing.T) {
	rt, err := TransportFromConfig("drive", nil, config.CircuitBreakerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("TransportFromConfig() error = %v", err)
	}
	if rt != http.DefaultTransport {
		t.Errorf("Expected the base transport when the breaker is disabled")
	}
}
