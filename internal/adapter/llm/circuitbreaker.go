package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"respstream/internal/domain"
	"respstream/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerStreamer guards stream initiation with a circuit breaker.
// Only the request that opens the stream counts; errors delivered through
// the result channel afterwards do not trip the breaker.
type CircuitBreakerStreamer struct {
	inner   domain.ResponseStreamer
	breaker *gobreaker.CircuitBreaker[<-chan domain.ResponseStreamResult]
	logger  *slog.Logger
}

// NewCircuitBreakerStreamer wraps inner with a circuit breaker.
// Zero-valued settings fall back to defaults.
func NewCircuitBreakerStreamer(inner domain.ResponseStreamer, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerStreamer {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[<-chan domain.ResponseStreamResult](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Rejected input and bad credentials say nothing about the
			// provider's health.
			return err == nil ||
				errors.Is(err, domain.ErrInvalidInput) ||
				errors.Is(err, domain.ErrAuthInvalid) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &CircuitBreakerStreamer{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Stream implements domain.ResponseStreamer.
func (s *CircuitBreakerStreamer) Stream(ctx context.Context, req domain.ResponseRequest) (<-chan domain.ResponseStreamResult, error) {
	ch, err := s.breaker.Execute(func() (<-chan domain.ResponseStreamResult, error) {
		return s.inner.Stream(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("provider %q: %w: %w", s.inner.Name(), domain.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return ch, nil
}

// Name implements domain.ResponseStreamer.
func (s *CircuitBreakerStreamer) Name() string { return s.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (s *CircuitBreakerStreamer) State() gobreaker.State {
	return s.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (s *CircuitBreakerStreamer) Counts() gobreaker.Counts {
	return s.breaker.Counts()
}

var _ domain.ResponseStreamer = (*CircuitBreakerStreamer)(nil)

// --- Connection Pooling ---

// Default connection pool settings: few hosts, long-lived connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// Default provider timeouts.
const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling.
// respTimeout bounds the wait for response headers only; the body of a
// stream may take as long as the server needs.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient creates an *http.Client for streaming. It sets no overall
// Timeout: cancellation of a running stream goes through the request
// context.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	return &http.Client{
		Transport: NewPooledTransport(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool),
	}
}
