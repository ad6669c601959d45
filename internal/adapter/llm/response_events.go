package llm

import (
	"errors"
	"fmt"
	"strconv"

	"respstream/internal/domain"
	"respstream/pkg/jsonvalue"
)

var (
	errMissingField = errors.New("missing required field")
	errNotObject    = errors.New("payload is not a JSON object")
)

// eventDecoder builds one catalog variant from a payload object. Failures
// are recorded on the reader; the returned event is discarded when one was.
type eventDecoder func(r *fieldReader) domain.ResponseStreamEvent

var responseEventDecoders = map[domain.ResponseEventType]eventDecoder{
	domain.ResponseEventCreated: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ResponseCreated{Response: r.snapshot("response"), SequenceNumber: r.seq()}
	},
	domain.ResponseEventInProgress: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ResponseInProgress{Response: r.snapshot("response"), SequenceNumber: r.seq()}
	},
	domain.ResponseEventCompleted: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ResponseCompleted{Response: r.snapshot("response"), SequenceNumber: r.seq()}
	},
	domain.ResponseEventFailed: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ResponseFailed{Response: r.snapshot("response"), SequenceNumber: r.seq()}
	},
	domain.ResponseEventIncomplete: decodeIncomplete,
	domain.ResponseEventOutputItemAdded: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.OutputItemAdded{
			OutputIndex:    r.integer("output_index"),
			Item:           r.object("item"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventOutputItemDone: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.OutputItemDone{
			OutputIndex:    r.integer("output_index"),
			Item:           r.object("item"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventContentPartAdded: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ContentPartAdded{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			ContentIndex:   r.integer("content_index"),
			Part:           r.object("part"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventContentPartDone: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ContentPartDone{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			ContentIndex:   r.integer("content_index"),
			Part:           r.object("part"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventOutputTextDelta: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.OutputTextDelta{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			ContentIndex:   r.integer("content_index"),
			Delta:          r.str("delta"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventOutputTextDone: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.OutputTextDone{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			ContentIndex:   r.integer("content_index"),
			Text:           r.str("text"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventRefusalDelta: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.RefusalDelta{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			ContentIndex:   r.integer("content_index"),
			Delta:          r.str("delta"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventRefusalDone: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.RefusalDone{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			ContentIndex:   r.integer("content_index"),
			Refusal:        r.str("refusal"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventFunctionCallArgsDelta: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.FunctionCallArgumentsDelta{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			Delta:          r.str("delta"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventFunctionCallArgsDone: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.FunctionCallArgumentsDone{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			Arguments:      r.str("arguments"),
			SequenceNumber: r.seq(),
		}
	},
	domain.ResponseEventReasoningSummaryTextDelta: func(r *fieldReader) domain.ResponseStreamEvent {
		return domain.ReasoningSummaryTextDelta{
			ItemID:         r.str("item_id"),
			OutputIndex:    r.integer("output_index"),
			SummaryIndex:   r.integer("summary_index"),
			Delta:          r.str("delta"),
			SequenceNumber: r.seq(),
		}
	},
}

// KnownResponseEventType reports whether t has a decoder.
func KnownResponseEventType(t domain.ResponseEventType) bool {
	_, ok := responseEventDecoders[t]
	return ok
}

func decodeIncomplete(r *fieldReader) domain.ResponseStreamEvent {
	ev := domain.ResponseIncomplete{SequenceNumber: r.seq()}
	if resp, ok := r.optObject("response"); ok {
		snap := r.child("response", resp).snapshotFields()
		ev.Response = &snap
	}
	ev.Details = r.incompleteDetails("incomplete_details")
	if ev.Details == nil && ev.Response != nil {
		ev.Details = ev.Response.IncompleteDetails
	}
	return ev
}

// decodeResponseFrame turns one frame payload into an event or an error.
// The error is a *domain.StreamError or a *domain.APIError.
func decodeResponseFrame(frame domain.StreamFrame) (domain.ResponseStreamEvent, error) {
	v, err := jsonvalue.DecodeString(frame.Data)
	if err != nil {
		return nil, &domain.StreamError{
			Kind:      domain.StreamErrMalformedInput,
			EventType: frame.Event,
			Payload:   frame.Data,
			Err:       err,
		}
	}

	obj, ok := v.(jsonvalue.Object)
	if !ok {
		return nil, &domain.StreamError{
			Kind:      domain.StreamErrDecodeFailure,
			EventType: frame.Event,
			Payload:   frame.Data,
			Err:       fmt.Errorf("%w: got %s", errNotObject, jsonKind(v)),
		}
	}

	if apiErr, ok := decodeErrorEnvelope(obj); ok {
		return nil, apiErr
	}

	eventType := frame.Event
	if raw, present := obj["type"]; present {
		s, ok := raw.(jsonvalue.String)
		if !ok {
			return nil, &domain.StreamError{
				Kind:    domain.StreamErrDecodeFailure,
				Field:   "type",
				Payload: frame.Data,
				Err:     fmt.Errorf("want string, got %s", jsonKind(raw)),
			}
		}
		eventType = string(s)
	}

	if domain.ResponseEventType(eventType) == domain.ResponseEventError {
		apiErr, serr := decodeErrorEvent(obj)
		if serr != nil {
			serr.Payload = frame.Data
			return nil, serr
		}
		return nil, apiErr
	}

	dec, ok := responseEventDecoders[domain.ResponseEventType(eventType)]
	if !ok {
		return nil, &domain.StreamError{
			Kind:      domain.StreamErrUnrecognizedVariant,
			EventType: eventType,
			Payload:   frame.Data,
		}
	}

	r := &fieldReader{obj: obj, state: &decodeState{eventType: eventType}}
	ev := dec(r)
	if r.state.err != nil {
		r.state.err.Payload = frame.Data
		return nil, r.state.err
	}
	return ev, nil
}

// decodeErrorEnvelope matches {"error": {"message": "...", ...}}.
func decodeErrorEnvelope(obj jsonvalue.Object) (*domain.APIError, bool) {
	inner, ok := obj["error"].(jsonvalue.Object)
	if !ok {
		return nil, false
	}
	msg, ok := inner["message"].(jsonvalue.String)
	if !ok {
		return nil, false
	}
	apiErr := &domain.APIError{
		Message: string(msg),
		Type:    scalarText(inner["type"]),
		Code:    scalarText(inner["code"]),
		Param:   scalarText(inner["param"]),
	}
	if n, ok := obj["sequence_number"].(jsonvalue.Integer); ok {
		apiErr.SequenceNumber = int(n)
	}
	return apiErr, true
}

// decodeErrorEvent handles {"type": "error", "code": ..., "message": ...}.
func decodeErrorEvent(obj jsonvalue.Object) (*domain.APIError, *domain.StreamError) {
	r := &fieldReader{obj: obj, state: &decodeState{eventType: string(domain.ResponseEventError)}}
	apiErr := &domain.APIError{
		Message:        r.str("message"),
		Code:           scalarText(obj["code"]),
		Param:          scalarText(obj["param"]),
		SequenceNumber: r.seq(),
	}
	if r.state.err != nil {
		return nil, r.state.err
	}
	return apiErr, nil
}

// scalarText renders a scalar as text. Servers send codes both as strings
// and as numbers. Null and absent give "".
func scalarText(v jsonvalue.Value) string {
	switch x := v.(type) {
	case nil, jsonvalue.Null:
		return ""
	case jsonvalue.String:
		return string(x)
	case jsonvalue.Integer:
		return strconv.FormatInt(int64(x), 10)
	case jsonvalue.Bool:
		return strconv.FormatBool(bool(x))
	default:
		return jsonvalue.EncodeString(v)
	}
}

func jsonKind(v jsonvalue.Value) string {
	if v == nil {
		return jsonvalue.KindNull.String()
	}
	return v.Kind().String()
}

// decodeState is shared by a reader and its children; only the first
// failure is kept.
type decodeState struct {
	eventType string
	err       *domain.StreamError
}

// fieldReader reads typed members of a payload object and records the
// first failure with its dotted field path.
type fieldReader struct {
	obj   jsonvalue.Object
	path  string
	state *decodeState
}

func (r *fieldReader) child(key string, obj jsonvalue.Object) *fieldReader {
	return &fieldReader{obj: obj, path: r.fieldPath(key), state: r.state}
}

func (r *fieldReader) fieldPath(key string) string {
	if r.path == "" {
		return key
	}
	return r.path + "." + key
}

func (r *fieldReader) fail(key string, err error) {
	if r.state.err != nil {
		return
	}
	r.state.err = &domain.StreamError{
		Kind:      domain.StreamErrDecodeFailure,
		EventType: r.state.eventType,
		Field:     r.fieldPath(key),
		Err:       err,
	}
}

func (r *fieldReader) wrongType(key, want string, got jsonvalue.Value) {
	r.fail(key, fmt.Errorf("want %s, got %s", want, jsonKind(got)))
}

// lookup returns the member, treating an explicit null as absent.
func (r *fieldReader) lookup(key string) (jsonvalue.Value, bool) {
	v, ok := r.obj[key]
	if !ok || jsonvalue.IsNull(v) {
		return nil, false
	}
	return v, true
}

func (r *fieldReader) str(key string) string {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, errMissingField)
		return ""
	}
	s, ok := v.(jsonvalue.String)
	if !ok {
		r.wrongType(key, "string", v)
		return ""
	}
	return string(s)
}

func (r *fieldReader) optStr(key string) string {
	if _, ok := r.lookup(key); !ok {
		return ""
	}
	return r.str(key)
}

func (r *fieldReader) integer64(key string) int64 {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, errMissingField)
		return 0
	}
	n, ok := v.(jsonvalue.Integer)
	if !ok {
		r.wrongType(key, "integer", v)
		return 0
	}
	return int64(n)
}

func (r *fieldReader) integer(key string) int {
	return int(r.integer64(key))
}

func (r *fieldReader) optInt64(key string) int64 {
	if _, ok := r.lookup(key); !ok {
		return 0
	}
	return r.integer64(key)
}

func (r *fieldReader) optInt(key string) int {
	return int(r.optInt64(key))
}

// seq reads the optional sequence_number.
func (r *fieldReader) seq() int {
	return r.optInt("sequence_number")
}

func (r *fieldReader) object(key string) jsonvalue.Object {
	v, ok := r.lookup(key)
	if !ok {
		r.fail(key, errMissingField)
		return nil
	}
	o, ok := v.(jsonvalue.Object)
	if !ok {
		r.wrongType(key, "object", v)
		return nil
	}
	return o
}

func (r *fieldReader) optObject(key string) (jsonvalue.Object, bool) {
	if _, ok := r.lookup(key); !ok {
		return nil, false
	}
	o := r.object(key)
	return o, o != nil
}

func (r *fieldReader) optArray(key string) jsonvalue.Array {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	a, ok := v.(jsonvalue.Array)
	if !ok {
		r.wrongType(key, "array", v)
		return nil
	}
	return a
}

func (r *fieldReader) snapshot(key string) domain.ResponseSnapshot {
	obj := r.object(key)
	if obj == nil {
		return domain.ResponseSnapshot{}
	}
	return r.child(key, obj).snapshotFields()
}

func (r *fieldReader) snapshotFields() domain.ResponseSnapshot {
	return domain.ResponseSnapshot{
		ID:                r.str("id"),
		Status:            domain.ResponseStatus(r.optStr("status")),
		Model:             r.optStr("model"),
		CreatedAt:         r.optInt64("created_at"),
		IncompleteDetails: r.incompleteDetails("incomplete_details"),
		Error:             r.responseError("error"),
		Usage:             r.usage("usage"),
		Output:            r.optArray("output"),
	}
}

// incompleteDetails returns nil for an absent or null member. Unknown
// reasons are kept verbatim.
func (r *fieldReader) incompleteDetails(key string) *domain.IncompleteDetails {
	obj, ok := r.optObject(key)
	if !ok {
		return nil
	}
	c := r.child(key, obj)
	return &domain.IncompleteDetails{Reason: domain.IncompleteReason(c.optStr("reason"))}
}

func (r *fieldReader) responseError(key string) *domain.ResponseError {
	obj, ok := r.optObject(key)
	if !ok {
		return nil
	}
	c := r.child(key, obj)
	return &domain.ResponseError{
		Code:    scalarText(obj["code"]),
		Message: c.optStr("message"),
	}
}

func (r *fieldReader) usage(key string) *domain.ResponseUsage {
	obj, ok := r.optObject(key)
	if !ok {
		return nil
	}
	c := r.child(key, obj)
	return &domain.ResponseUsage{
		InputTokens:  c.optInt("input_tokens"),
		OutputTokens: c.optInt("output_tokens"),
		TotalTokens:  c.optInt("total_tokens"),
	}
}
