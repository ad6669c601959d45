package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"respstream/internal/domain"
	"respstream/internal/infra/config"
	"respstream/internal/infra/logger"
)

// mockStreamer is a domain.ResponseStreamer driven by a function.
type mockStreamer struct {
	name   string
	calls  int
	stream func(context.Context, domain.ResponseRequest) (<-chan domain.ResponseStreamResult, error)
}

func (m *mockStreamer) Stream(ctx context.Context, req domain.ResponseRequest) (<-chan domain.ResponseStreamResult, error) {
	m.calls++
	if m.stream == nil {
		ch := make(chan domain.ResponseStreamResult)
		close(ch)
		return ch, nil
	}
	return m.stream(ctx, req)
}

func (m *mockStreamer) Name() string { return m.name }

func failingStreamer(name string, err error) *mockStreamer {
	return &mockStreamer{
		name: name,
		stream: func(context.Context, domain.ResponseRequest) (<-chan domain.ResponseStreamResult, error) {
			return nil, err
		},
	}
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &mockStreamer{name: "openai"}
	cb := NewCircuitBreakerStreamer(inner, config.CircuitBreakerConfig{}, logger.Discard())

	ch, err := cb.Stream(context.Background(), domain.ResponseRequest{})
	require.NoError(t, err)
	assert.Empty(t, collect(ch))
	assert.Equal(t, "openai", cb.Name())
	assert.Equal(t, 1, inner.calls)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	inner := failingStreamer("flaky", domain.ErrProviderError)
	cb := NewCircuitBreakerStreamer(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     5 * time.Second,
		Interval:    60 * time.Second,
	}, logger.Discard())

	for range 3 {
		_, err := cb.Stream(context.Background(), domain.ResponseRequest{})
		require.ErrorIs(t, err, domain.ErrProviderError)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Stream(context.Background(), domain.ResponseRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls, "streamer should not be called when circuit is open")
}

func TestCircuitBreakerClosesAfterSuccess(t *testing.T) {
	shouldFail := true
	inner := &mockStreamer{
		name: "recovering",
		stream: func(context.Context, domain.ResponseRequest) (<-chan domain.ResponseStreamResult, error) {
			if shouldFail {
				return nil, domain.ErrProviderError
			}
			ch := make(chan domain.ResponseStreamResult)
			close(ch)
			return ch, nil
		},
	}
	cb := NewCircuitBreakerStreamer(inner, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     10 * time.Millisecond,
	}, logger.Discard())

	for range 2 {
		cb.Stream(context.Background(), domain.ResponseRequest{})
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	shouldFail = false

	_, err := cb.Stream(context.Background(), domain.ResponseRequest{})
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid input", domain.ErrInvalidInput},
		{"auth", domain.ErrAuthInvalid},
		{"cancelled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreakerStreamer(failingStreamer("x", tt.err), config.CircuitBreakerConfig{MaxFailures: 1}, logger.Discard())
			for range 3 {
				_, err := cb.Stream(context.Background(), domain.ResponseRequest{})
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, gobreaker.StateClosed, cb.State())
			assert.Zero(t, cb.Counts().ConsecutiveFailures)
		})
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	inner := failingStreamer("defaults", errors.New("down"))
	cb := NewCircuitBreakerStreamer(inner, config.CircuitBreakerConfig{}, logger.Discard())

	for range int(defaultCBMaxFailures) - 1 {
		cb.Stream(context.Background(), domain.ResponseRequest{})
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	cb.Stream(context.Background(), domain.ResponseRequest{})
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestNewPooledTransportDefaults(t *testing.T) {
	tr := NewPooledTransport(0, 0, config.PoolConfig{})

	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultMaxConnsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.NotNil(t, tr.Proxy)
}

func TestNewPooledTransportCustom(t *testing.T) {
	tr := NewPooledTransport(time.Second, 5*time.Second, config.PoolConfig{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     3,
		IdleConnTimeout:     time.Minute,
	})

	assert.Equal(t, 4, tr.MaxIdleConns)
	assert.Equal(t, 2, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 3, tr.MaxConnsPerHost)
	assert.Equal(t, time.Minute, tr.IdleConnTimeout)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
}

func TestNewHTTPClientNoTimeout(t *testing.T) {
	client := NewHTTPClient(config.ProviderConfig{})
	assert.Zero(t, client.Timeout, "streams are bounded by the request context")
	_, ok := client.Transport.(*http.Transport)
	assert.True(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockStreamer{name: "b"}))
	require.NoError(t, r.Register(&mockStreamer{name: "a"}))

	err := r.Register(&mockStreamer{name: "a"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	s, err := r.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", s.Name())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.Equal(t, []string{"a", "b"}, r.List())
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Providers = []config.ProviderConfig{
		{Name: "openai", Type: "openai"},
		{Name: "local", Type: "openai", BaseURL: "http://localhost:8080/v1"},
	}

	r, err := NewRegistryFromConfig(cfg, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "openai"}, r.List())

	s, err := r.Get("openai")
	require.NoError(t, err)
	_, wrapped := s.(*CircuitBreakerStreamer)
	assert.True(t, wrapped, "breaker is enabled by default")

	cfg.LLM.CircuitBreaker.Enabled = false
	r, err = NewRegistryFromConfig(cfg, logger.Discard())
	require.NoError(t, err)
	s, _ = r.Get("local")
	_, bare := s.(*ResponsesProvider)
	assert.True(t, bare)

	cfg.Stream.UnknownEvents = "bogus"
	_, err = NewRegistryFromConfig(cfg, logger.Discard())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
