package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"respstream/internal/domain"
	"respstream/internal/infra/config"
	"respstream/internal/infra/tracer"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ResponsesProvider streams responses from an OpenAI-compatible
// /responses endpoint.
type ResponsesProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	policy     UnknownEventPolicy
	chunkSize  int
	buffer     int
	interpOpts []InterpreterOption
}

// ProviderOption configures a ResponsesProvider.
type ProviderOption func(*ResponsesProvider)

// WithHTTPClient replaces the pooled client, mostly for tests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *ResponsesProvider) { p.client = client }
}

// WithInterpreterOptions adds options to every interpreter the provider
// creates, after its own.
func WithInterpreterOptions(opts ...InterpreterOption) ProviderOption {
	return func(p *ResponsesProvider) { p.interpOpts = append(p.interpOpts, opts...) }
}

// NewResponsesProvider creates a provider from its config and the stream
// settings shared by all providers.
func NewResponsesProvider(cfg config.ProviderConfig, stream config.StreamConfig, logger *slog.Logger, opts ...ProviderOption) (*ResponsesProvider, error) {
	policy, err := ParseUnknownEventPolicy(stream.UnknownEvents)
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	p := &ResponsesProvider{
		name:      cfg.Name,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		client:    NewHTTPClient(cfg),
		limiter:   newLimiter(cfg.RequestsPerMinute),
		logger:    logger,
		policy:    policy,
		chunkSize: stream.ReadChunkSize,
		buffer:    stream.ChannelBuffer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// newLimiter spaces requests evenly; rpm <= 0 disables limiting.
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// Stream implements domain.ResponseStreamer. Errors before the stream is
// open are returned directly; afterwards every decode failure, server
// error and read error arrives on the channel.
func (p *ResponsesProvider) Stream(ctx context.Context, req domain.ResponseRequest) (<-chan domain.ResponseStreamResult, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.responses.stream",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)

	fail := func(err error) (<-chan domain.ResponseStreamResult, error) {
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("rate limit wait: %w", err))
	}

	body, err := json.Marshal(toResponsesRequest(req))
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	requestID := uuid.NewString()
	span.SetAttributes(tracer.StringAttr("llm.request_id", requestID))
	headers := map[string]string{"X-Client-Request-Id": requestID}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/responses", body, headers)
	if err != nil {
		return fail(err)
	}

	opts := append([]InterpreterOption{
		WithLogger(p.logger),
		WithUnknownEventPolicy(p.policy),
	}, p.interpOpts...)
	interp := NewResponseEventsInterpreter(opts...)

	finish := func() {
		defer span.End()
		stats := interp.Stats()
		setStreamAttrs(span, stats)
		if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
			tracer.RecordError(span, err)
		} else {
			tracer.SetOK(span)
		}
		logStreamCompleted(p.logger, p.name, req.Model, stats)
	}

	return streamResults(ctx, httpResp.Body, interp, p.chunkSize, p.buffer, finish), nil
}

// Name implements domain.ResponseStreamer.
func (p *ResponsesProvider) Name() string { return p.name }

var _ domain.ResponseStreamer = (*ResponsesProvider)(nil)

// --- Responses API wire types ---

type responsesRequest struct {
	Model           string            `json:"model"`
	Instructions    string            `json:"instructions,omitempty"`
	Input           []responsesInput  `json:"input"`
	MaxOutputTokens int               `json:"max_output_tokens,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	Text            *responsesText    `json:"text,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Stream          bool              `json:"stream"`
}

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesText struct {
	Format responsesFormat `json:"format"`
}

type responsesFormat struct {
	Type   string          `json:"type"`
	Name   string          `json:"name,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
	Strict bool            `json:"strict,omitempty"`
}

func toResponsesRequest(req domain.ResponseRequest) responsesRequest {
	out := responsesRequest{
		Model:           req.Model,
		Instructions:    req.Instructions,
		Input:           make([]responsesInput, 0, len(req.Messages)),
		MaxOutputTokens: req.MaxOutputTokens,
		Metadata:        req.Metadata,
		Stream:          true,
	}
	for _, m := range req.Messages {
		out.Input = append(out.Input, responsesInput{Role: m.Role, Content: m.Content})
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if tf := req.TextFormat; tf != nil {
		out.Text = &responsesText{Format: responsesFormat{
			Type:   "json_schema",
			Name:   tf.Name,
			Schema: tf.Schema,
			Strict: tf.Strict,
		}}
	}
	return out
}
