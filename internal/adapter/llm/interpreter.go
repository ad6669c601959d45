package llm

import (
	"fmt"
	"log/slog"
	"time"

	"respstream/internal/domain"
)

// UnknownEventPolicy decides what happens to frames whose type has no
// decoder.
type UnknownEventPolicy string

const (
	// UnknownEventsIgnore drops the frame and logs it at debug level.
	UnknownEventsIgnore UnknownEventPolicy = "ignore"
	// UnknownEventsReport delivers an UnrecognizedVariant StreamError.
	UnknownEventsReport UnknownEventPolicy = "report"
)

// ParseUnknownEventPolicy maps a config value to a policy. Empty means ignore.
func ParseUnknownEventPolicy(s string) (UnknownEventPolicy, error) {
	switch UnknownEventPolicy(s) {
	case "", UnknownEventsIgnore:
		return UnknownEventsIgnore, nil
	case UnknownEventsReport:
		return UnknownEventsReport, nil
	}
	return "", fmt.Errorf("%w: unknown event policy %q", domain.ErrInvalidInput, s)
}

// InterpreterStats counts what an interpreter has done so far.
type InterpreterStats struct {
	Frames  int // complete frames, including the sentinel
	Events  int // onEvent calls
	Errors  int // onError calls
	Ignored int // frames dropped under UnknownEventsIgnore
}

// ResponseEventsInterpreter turns a Responses API event stream into typed
// events. It is synchronous: callbacks run on the goroutine that calls
// ProcessData, and calls must not overlap.
type ResponseEventsInterpreter struct {
	scanner frameScanner
	onEvent domain.StreamEventFunc
	onError domain.StreamErrorFunc

	policy    UnknownEventPolicy
	frameHook domain.FrameHook
	logger    *slog.Logger

	done  bool
	stats InterpreterStats
}

var _ domain.StreamInterpreter = (*ResponseEventsInterpreter)(nil)

// InterpreterOption configures a ResponseEventsInterpreter.
type InterpreterOption func(*ResponseEventsInterpreter)

// WithLogger sets the logger used for ignored frames.
func WithLogger(logger *slog.Logger) InterpreterOption {
	return func(p *ResponseEventsInterpreter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithUnknownEventPolicy sets the policy for unrecognized event types.
func WithUnknownEventPolicy(policy UnknownEventPolicy) InterpreterOption {
	return func(p *ResponseEventsInterpreter) {
		if policy != "" {
			p.policy = policy
		}
	}
}

// WithFrameHook registers a hook that sees every complete frame, the
// [DONE] sentinel included, before it is decoded.
func WithFrameHook(hook domain.FrameHook) InterpreterOption {
	return func(p *ResponseEventsInterpreter) {
		p.frameHook = hook
	}
}

// NewResponseEventsInterpreter creates an interpreter. SetCallbacks must be
// called before the first ProcessData.
func NewResponseEventsInterpreter(opts ...InterpreterOption) *ResponseEventsInterpreter {
	p := &ResponseEventsInterpreter{
		policy: UnknownEventsIgnore,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetCallbacks registers the sinks for events and errors. Both are required.
func (p *ResponseEventsInterpreter) SetCallbacks(onEvent domain.StreamEventFunc, onError domain.StreamErrorFunc) {
	if onEvent == nil || onError == nil {
		panic("llm: SetCallbacks requires both onEvent and onError")
	}
	p.onEvent = onEvent
	p.onError = onError
}

// ProcessData appends a chunk of the stream. Every frame the chunk
// completes is decoded and delivered to exactly one callback, in stream
// order, before ProcessData returns. Bytes of an unfinished frame are kept
// for the next call.
func (p *ResponseEventsInterpreter) ProcessData(data []byte) {
	if p.onEvent == nil || p.onError == nil {
		panic("llm: ProcessData called before SetCallbacks")
	}
	p.scanner.feed(data, p.handleFrame)
}

func (p *ResponseEventsInterpreter) handleFrame(frame domain.StreamFrame) {
	p.stats.Frames++
	if p.frameHook != nil {
		p.frameHook(frame)
	}

	if frame.IsDone() {
		p.done = true
		return
	}

	ev, err := decodeResponseFrame(frame)
	if err != nil {
		if se, ok := err.(*domain.StreamError); ok &&
			se.Kind == domain.StreamErrUnrecognizedVariant && p.policy == UnknownEventsIgnore {
			p.stats.Ignored++
			p.logger.Debug("ignoring unrecognized stream event",
				"event_type", se.EventType,
				"bytes", len(frame.Data),
			)
			return
		}
		p.stats.Errors++
		p.onError(err)
		return
	}

	p.stats.Events++
	p.onEvent(ev)
}

// Done reports whether the [DONE] sentinel has been seen.
func (p *ResponseEventsInterpreter) Done() bool { return p.done }

// LastEventID returns the most recent id field seen on the stream.
func (p *ResponseEventsInterpreter) LastEventID() string { return p.scanner.lastID }

// RetryHint returns the most recent retry field, or zero.
func (p *ResponseEventsInterpreter) RetryHint() time.Duration { return p.scanner.retry }

// Buffered returns the number of bytes waiting for a line terminator.
func (p *ResponseEventsInterpreter) Buffered() int { return p.scanner.buffered() }

// Stats returns the counters accumulated so far.
func (p *ResponseEventsInterpreter) Stats() InterpreterStats { return p.stats }
