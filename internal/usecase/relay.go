package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"respstream/internal/domain"
)

// Sink receives interpreter callbacks.
type Sink interface {
	OnEvent(domain.ResponseStreamEvent)
	OnError(error)
}

// Callbacks adapts sinks to an interpreter's callback pair. Each callback
// reaches every sink in order.
func Callbacks(sinks ...Sink) (domain.StreamEventFunc, domain.StreamErrorFunc) {
	onEvent := func(ev domain.ResponseStreamEvent) {
		for _, s := range sinks {
			s.OnEvent(ev)
		}
	}
	onError := func(err error) {
		for _, s := range sinks {
			s.OnError(err)
		}
	}
	return onEvent, onError
}

// SinkFuncs turns a pair of plain functions into a Sink. A nil function
// ignores its callback.
type SinkFuncs struct {
	Event func(domain.ResponseStreamEvent)
	Error func(error)
}

func (f SinkFuncs) OnEvent(ev domain.ResponseStreamEvent) {
	if f.Event != nil {
		f.Event(ev)
	}
}

func (f SinkFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Relay publishes interpreter callbacks on an event bus, tagged with a
// session ID.
type Relay struct {
	ctx       context.Context
	bus       domain.EventBus
	sessionID string
	logger    *slog.Logger

	events atomic.Int64
	errors atomic.Int64
}

// NewRelay creates a relay that publishes with ctx.
func NewRelay(ctx context.Context, bus domain.EventBus, sessionID string, logger *slog.Logger) *Relay {
	return &Relay{ctx: ctx, bus: bus, sessionID: sessionID, logger: logger}
}

// Started announces a new stream.
func (r *Relay) Started() {
	r.publish(domain.EventResponseStarted, nil)
}

// OnEvent implements Sink.
func (r *Relay) OnEvent(ev domain.ResponseStreamEvent) {
	r.events.Add(1)
	r.publish(domain.EventResponseEvent, domain.ResponseEventPayload{
		Type:     ev.EventType(),
		Sequence: ev.Sequence(),
		Event:    ev,
	})
}

// OnError implements Sink.
func (r *Relay) OnError(err error) {
	r.errors.Add(1)
	payload := domain.ResponseErrorPayload{
		Code:    domain.ErrorCodeOf(err),
		Message: err.Error(),
	}
	if apiErr, ok := domain.AsAPIError(err); ok {
		payload.Type = apiErr.Type
	}
	r.publish(domain.EventResponseError, payload)
}

// Done announces the end of the stream with the relayed counts.
func (r *Relay) Done() {
	r.publish(domain.EventResponseDone, domain.ResponseDonePayload{
		Events: int(r.events.Load()),
		Errors: int(r.errors.Load()),
	})
}

func (r *Relay) publish(t domain.EventType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warn("relay payload marshal failed", "event", string(t), "error", err)
			return
		}
		raw = data
	}
	r.bus.Publish(r.ctx, domain.Event{
		Type:      t,
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Payload:   raw,
	})
}
