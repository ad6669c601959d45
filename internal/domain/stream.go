package domain

import (
	"errors"
	"fmt"
	"strings"
)

// SSEDoneSentinel is the data payload that marks the end of a stream.
const SSEDoneSentinel = "[DONE]"

// StreamFrame is one server-sent event: the optional event label and the
// data lines joined with "\n". ID is the last event id seen on the stream
// when the frame completed.
type StreamFrame struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`
}

// IsDone reports whether the frame carries the end-of-stream sentinel.
func (f StreamFrame) IsDone() bool {
	return f.Data == SSEDoneSentinel
}

// StreamErrorKind classifies a local failure to turn a frame into an event.
type StreamErrorKind string

const (
	// StreamErrMalformedInput: the payload is not valid JSON.
	StreamErrMalformedInput StreamErrorKind = "malformed_input"
	// StreamErrDecodeFailure: valid JSON that does not fit the expected shape.
	StreamErrDecodeFailure StreamErrorKind = "decode_failure"
	// StreamErrUnrecognizedVariant: the discriminant names no known event.
	StreamErrUnrecognizedVariant StreamErrorKind = "unrecognized_variant"
)

// Sentinel returns the errors.Is target for the kind.
func (k StreamErrorKind) Sentinel() error {
	switch k {
	case StreamErrMalformedInput:
		return ErrMalformedInput
	case StreamErrDecodeFailure:
		return ErrDecodeFailure
	case StreamErrUnrecognizedVariant:
		return ErrUnrecognizedVariant
	}
	return ErrInvalidInput
}

// StreamError reports a frame that could not be turned into an event.
type StreamError struct {
	Kind      StreamErrorKind
	EventType string // discriminant, when known
	Field     string // dotted path of the offending field, when known
	Payload   string // raw frame data
	Err       error  // underlying cause, may be nil
}

func (e *StreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Sentinel().Error())
	if e.EventType != "" {
		fmt.Fprintf(&b, ": event %q", e.EventType)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *StreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// APIError is an error the server reported inside an otherwise well-formed
// stream. Fields are copied verbatim from the payload.
type APIError struct {
	Message        string `json:"message"`
	Type           string `json:"type,omitempty"`
	Code           string `json:"code,omitempty"`
	Param          string `json:"param,omitempty"`
	SequenceNumber int    `json:"sequence_number,omitempty"`
}

func (e *APIError) Error() string {
	label := e.Code
	if label == "" {
		label = e.Type
	}
	if label == "" {
		return "api error: " + e.Message
	}
	return fmt.Sprintf("api error (%s): %s", label, e.Message)
}

func (e *APIError) Unwrap() error { return ErrProviderError }

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ResponseStreamResult is one interpreter outcome delivered over a channel:
// exactly one of Event and Err is set.
type ResponseStreamResult struct {
	Event ResponseStreamEvent
	Err   error
}

// ResponseEventPayload is the payload for EventResponseEvent bus events.
type ResponseEventPayload struct {
	Type     ResponseEventType   `json:"type"`
	Sequence int                 `json:"sequence_number"`
	Event    ResponseStreamEvent `json:"event"`
}

// ResponseErrorPayload is the payload for EventResponseError bus events.
type ResponseErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Type    string    `json:"type,omitempty"`
}

// ResponseDonePayload is the payload for EventResponseDone bus events.
type ResponseDonePayload struct {
	Events int `json:"events"`
	Errors int `json:"errors"`
}
