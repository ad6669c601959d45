package domain

import "context"

// StreamEventFunc receives decoded stream events.
type StreamEventFunc func(ResponseStreamEvent)

// StreamErrorFunc receives per-frame failures and server-reported errors.
type StreamErrorFunc func(error)

// StreamInterpreter turns raw event-stream bytes into typed events.
// ProcessData calls must be serialized by the caller.
type StreamInterpreter interface {
	// SetCallbacks registers both sinks. It must be called before ProcessData.
	SetCallbacks(onEvent StreamEventFunc, onError StreamErrorFunc)
	// ProcessData appends a chunk of the stream body.
	ProcessData(data []byte)
}

// ResponseStreamer is any backend that can stream a response.
type ResponseStreamer interface {
	// Stream sends req and returns a channel of decoded results. The channel
	// is closed when the stream ends or ctx is cancelled.
	Stream(ctx context.Context, req ResponseRequest) (<-chan ResponseStreamResult, error)
	// Name returns the provider's identifier.
	Name() string
}

// FrameHook observes complete frames before they are decoded.
type FrameHook func(StreamFrame)
