package usecase

import (
	"context"

	"respstream/internal/domain"
)

// Consume drains a streamer's result channel into sinks until the channel
// closes or ctx is done. It returns ctx.Err() in the latter case.
func Consume(ctx context.Context, results <-chan domain.ResponseStreamResult, sinks ...Sink) error {
	onEvent, onError := Callbacks(sinks...)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			if !ok {
				return nil
			}
			if r.Err != nil {
				onError(r.Err)
				continue
			}
			onEvent(r.Event)
		}
	}
}

// StreamResponse sends req to streamer and folds the stream into a
// StreamResult. Extra sinks see every callback after the collector.
func StreamResponse(ctx context.Context, streamer domain.ResponseStreamer, req domain.ResponseRequest, sinks ...Sink) (StreamResult, error) {
	results, err := streamer.Stream(ctx, req)
	if err != nil {
		return StreamResult{}, err
	}
	c := NewCollector()
	if err := Consume(ctx, results, append([]Sink{c}, sinks...)...); err != nil {
		return c.Result(), err
	}
	return c.Result(), nil
}
