package llm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"respstream/internal/domain"
	"respstream/internal/infra/config"
	"respstream/internal/infra/logger"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		wantErr error
	}{
		{http.StatusTooManyRequests, `{"error":"rate limit exceeded"}`, domain.ErrRateLimit},
		{http.StatusUnauthorized, `{"error":"invalid api key"}`, domain.ErrAuthInvalid},
		{http.StatusForbidden, `forbidden`, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, `context too long`, domain.ErrContextOverflow},
		{http.StatusBadRequest, `bad`, domain.ErrInvalidInput},
		{http.StatusNotFound, `no such model`, domain.ErrInvalidInput},
		{http.StatusUnprocessableEntity, `nope`, domain.ErrInvalidInput},
		{http.StatusInternalServerError, `internal server error`, domain.ErrProviderError},
		{http.StatusBadGateway, `bad gateway`, domain.ErrProviderError},
		{http.StatusServiceUnavailable, `service unavailable`, domain.ErrProviderError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.body)
		})
	}
}

func TestMapHTTPErrorUnmappedStatus(t *testing.T) {
	err := mapHTTPError(http.StatusTeapot, []byte(`short and stout`))
	require.Error(t, err)
	assert.Equal(t, "API error 418: short and stout", err.Error())
	assert.Equal(t, domain.CodeUnknown, domain.ErrorCodeOf(err))
}

func TestMapHTTPErrorEnvelope(t *testing.T) {
	body := []byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded","param":null}}`)
	err := mapHTTPError(http.StatusTooManyRequests, body)

	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Equal(t, domain.CodeRateLimit, domain.ErrorCodeOf(err))

	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "Rate limit reached", apiErr.Message)
	assert.Equal(t, "requests", apiErr.Type)
	assert.Equal(t, "rate_limit_exceeded", apiErr.Code)
	assert.Empty(t, apiErr.Param)
}

func TestMapHTTPErrorEnvelopeUnmappedStatus(t *testing.T) {
	err := mapHTTPError(http.StatusConflict, []byte(`{"error":{"message":"busy"}}`))

	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "busy", apiErr.Message)
	assert.True(t, errors.Is(err, domain.ErrProviderError), "APIError unwraps to ErrProviderError")
}

func TestParseErrorBody(t *testing.T) {
	assert.Nil(t, parseErrorBody([]byte(`not json`)))
	assert.Nil(t, parseErrorBody([]byte(`[1,2]`)))
	assert.Nil(t, parseErrorBody([]byte(`{"error":"flat string"}`)))
	assert.Nil(t, parseErrorBody([]byte(`{"error":{"code":"no_message"}}`)))

	apiErr := parseErrorBody([]byte(`{"error":{"message":"m","code":42}}`))
	require.NotNil(t, apiErr)
	assert.Equal(t, "42", apiErr.Code)
}

func TestDoStreamRequestHeaders(t *testing.T) {
	var got *http.Request
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}

	resp, err := doStreamRequest(context.Background(), client, "http://example.test/responses", []byte(`{}`), map[string]string{
		"X-Custom": "1",
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "no-cache", got.Header.Get("Cache-Control"))
	assert.Equal(t, "text/event-stream", got.Header.Get("Accept"))
	assert.Equal(t, "1", got.Header.Get("X-Custom"))
}

func TestLogStreamCompleted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWriter(&buf, config.LoggerConfig{Level: "debug"})

	logStreamCompleted(log, "openai", "gpt-4.1", InterpreterStats{Frames: 3, Events: 2, Errors: 1})
	out := buf.String()
	assert.Contains(t, out, "llm response stream completed")
	assert.Contains(t, out, "frames=3")
	assert.Contains(t, out, "events=2")
	assert.Contains(t, out, "errors=1")

	buf.Reset()
	logStreamCompleted(slog.New(slog.NewTextHandler(&buf, nil)), "openai", "gpt-4.1", InterpreterStats{})
	assert.Empty(t, buf.String(), "completion is logged at debug level")
}
