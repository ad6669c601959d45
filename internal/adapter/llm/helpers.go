package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"respstream/internal/domain"
	"respstream/internal/infra/tracer"
	"respstream/pkg/jsonvalue"
)

// maxErrorBody is the maximum error response body read from the API.
const maxErrorBody = 4096

// doStreamRequest performs a JSON POST request for SSE streaming.
// It returns the open *http.Response (caller must close Body).
// Returns a domain error for non-200 responses.
func doStreamRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return httpResp, nil
}

// logStreamCompleted logs the standard debug message after a stream ends.
func logStreamCompleted(logger *slog.Logger, providerName, model string, stats InterpreterStats) {
	logger.Debug("llm response stream completed",
		"provider", providerName,
		"model", model,
		"frames", stats.Frames,
		"events", stats.Events,
		"errors", stats.Errors,
		"ignored", stats.Ignored,
	)
}

// setStreamAttrs adds interpreter counters to a trace span.
func setStreamAttrs(span trace.Span, stats InterpreterStats) {
	span.SetAttributes(
		tracer.IntAttr("stream.frames", stats.Frames),
		tracer.IntAttr("stream.events", stats.Events),
		tracer.IntAttr("stream.errors", stats.Errors),
		tracer.IntAttr("stream.ignored", stats.Ignored),
	)
}

// mapHTTPError maps an HTTP status code + response body to a domain error.
// When the body is an error envelope the *domain.APIError is wrapped too,
// so callers can read the server's code and message.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, string(body))

	var sentinel error
	switch {
	case statusCode == http.StatusTooManyRequests: // 429
		sentinel = domain.ErrRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden: // 401, 403
		sentinel = domain.ErrAuthInvalid
	case statusCode == http.StatusRequestEntityTooLarge: // 413
		sentinel = domain.ErrContextOverflow
	case statusCode == http.StatusBadRequest || statusCode == http.StatusNotFound || statusCode == http.StatusUnprocessableEntity:
		sentinel = domain.ErrInvalidInput
	case statusCode >= 500: // 500, 502, 503, etc.
		sentinel = domain.ErrProviderError
	}

	apiErr := parseErrorBody(body)
	switch {
	case sentinel != nil && apiErr != nil:
		return fmt.Errorf("%w: API error %d: %w", sentinel, statusCode, apiErr)
	case sentinel != nil:
		return fmt.Errorf("%w: %s", sentinel, detail)
	case apiErr != nil:
		return fmt.Errorf("API error %d: %w", statusCode, apiErr)
	default:
		return fmt.Errorf("%s", detail)
	}
}

// parseErrorBody returns the error envelope carried by body, if any.
func parseErrorBody(body []byte) *domain.APIError {
	v, err := jsonvalue.Decode(body)
	if err != nil {
		return nil
	}
	obj, ok := v.(jsonvalue.Object)
	if !ok {
		return nil
	}
	apiErr, ok := decodeErrorEnvelope(obj)
	if !ok {
		return nil
	}
	return apiErr
}
