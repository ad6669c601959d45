package llm

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"respstream/internal/domain"
	"respstream/pkg/jsonvalue"
)

func deltaFrame(itemID, delta string, seq int) string {
	return fmt.Sprintf("data: {\"type\":\"response.output_text.delta\",\"item_id\":%q,\"output_index\":0,\"content_index\":0,\"delta\":%q,\"sequence_number\":%d}\n\n",
		itemID, delta, seq)
}

// recorder captures every callback in order.
type recorder struct {
	events []domain.ResponseStreamEvent
	errs   []error
	order  []string
}

func (r *recorder) onEvent(ev domain.ResponseStreamEvent) {
	r.events = append(r.events, ev)
	r.order = append(r.order, "event")
}

func (r *recorder) onError(err error) {
	r.errs = append(r.errs, err)
	r.order = append(r.order, "error")
}

func (r *recorder) calls() int { return len(r.events) + len(r.errs) }

func newRecorded(opts ...InterpreterOption) (*ResponseEventsInterpreter, *recorder) {
	rec := &recorder{}
	p := NewResponseEventsInterpreter(opts...)
	p.SetCallbacks(rec.onEvent, rec.onError)
	return p, rec
}

func feed(p *ResponseEventsInterpreter, chunks ...string) {
	for _, c := range chunks {
		p.ProcessData([]byte(c))
	}
}

func TestInterpreterOutputTextDelta(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hi","sequence_number":1}`+"\n\n")

	require.Empty(t, rec.errs)
	require.Len(t, rec.events, 1)
	assert.Equal(t, domain.OutputTextDelta{
		ItemID:         "msg_1",
		OutputIndex:    0,
		ContentIndex:   0,
		Delta:          "Hi",
		SequenceNumber: 1,
	}, rec.events[0])
}

func TestInterpreterIncompleteContentFilter(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"type":"response.incomplete","incomplete_details":{"reason":"content_filter"}}`+"\n\n")

	require.Empty(t, rec.errs)
	require.Len(t, rec.events, 1)
	ev, ok := rec.events[0].(domain.ResponseIncomplete)
	require.True(t, ok, "got %T", rec.events[0])
	require.NotNil(t, ev.Details)
	assert.Equal(t, domain.IncompleteReasonContentFilter, ev.Details.Reason)
	assert.True(t, domain.IsTerminal(ev))
}

func TestInterpreterIncompleteDetails(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *domain.IncompleteDetails
	}{
		{"null", `{"type":"response.incomplete","incomplete_details":null}`, nil},
		{"absent", `{"type":"response.incomplete"}`, nil},
		{"max tokens", `{"type":"response.incomplete","incomplete_details":{"reason":"max_output_tokens"}}`,
			&domain.IncompleteDetails{Reason: domain.IncompleteReasonMaxOutputTokens}},
		{"unknown reason kept", `{"type":"response.incomplete","incomplete_details":{"reason":"tool_budget"}}`,
			&domain.IncompleteDetails{Reason: "tool_budget"}},
		{"from response snapshot", `{"type":"response.incomplete","response":{"id":"resp_1","status":"incomplete","incomplete_details":{"reason":"max_output_tokens"}},"sequence_number":9}`,
			&domain.IncompleteDetails{Reason: domain.IncompleteReasonMaxOutputTokens}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newRecorded()
			feed(p, "data: "+tt.payload+"\n\n")
			require.Empty(t, rec.errs)
			require.Len(t, rec.events, 1)
			ev := rec.events[0].(domain.ResponseIncomplete)
			assert.Equal(t, tt.want, ev.Details)
		})
	}
}

func TestInterpreterIncompleteReasonNotString(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"type":"response.incomplete","incomplete_details":{"reason":7}}`+"\n\n")

	require.Len(t, rec.errs, 1)
	var se *domain.StreamError
	require.ErrorAs(t, rec.errs[0], &se)
	assert.Equal(t, domain.StreamErrDecodeFailure, se.Kind)
	assert.Equal(t, "incomplete_details.reason", se.Field)
}

func TestInterpreterSplitFrame(t *testing.T) {
	frame := deltaFrame("msg_1", "Hello, world", 4)

	whole, wholeRec := newRecorded()
	feed(whole, frame)
	require.Len(t, wholeRec.events, 1)

	for i := 1; i < len(frame); i++ {
		p, rec := newRecorded()
		feed(p, frame[:i], frame[i:])
		require.Len(t, rec.events, 1, "split at %d", i)
		assert.Equal(t, wholeRec.events[0], rec.events[0], "split at %d", i)
		assert.Zero(t, p.Buffered())
	}

	// Three-way split through the field name and the JSON body.
	p, rec := newRecorded()
	feed(p, frame[:2], frame[2:30], frame[30:])
	require.Len(t, rec.events, 1)
	assert.Equal(t, wholeRec.events[0], rec.events[0])
}

func TestInterpreterLoneCRFraming(t *testing.T) {
	lf := deltaFrame("msg_1", "Hi", 1)
	cr := strings.ReplaceAll(lf, "\n", "\r")

	want, wantRec := newRecorded()
	feed(want, lf)
	require.Len(t, wantRec.events, 1)

	p, rec := newRecorded()
	feed(p, cr)
	require.Len(t, rec.events, 1)
	assert.Equal(t, wantRec.events[0], rec.events[0])
	assert.Zero(t, p.Buffered())
}

func TestInterpreterBuffersPartialFrame(t *testing.T) {
	p, rec := newRecorded()
	frame := deltaFrame("msg_1", "Hi", 1)
	feed(p, frame[:20])
	assert.Zero(t, rec.calls())
	assert.Equal(t, 20, p.Buffered())

	feed(p, frame[20:])
	assert.Equal(t, 1, rec.calls())
}

func TestInterpreterSentinelSilence(t *testing.T) {
	var hooked []domain.StreamFrame
	p, rec := newRecorded(WithFrameHook(func(f domain.StreamFrame) { hooked = append(hooked, f) }))
	feed(p, "data: [DONE]\n\n")

	assert.Zero(t, rec.calls())
	assert.True(t, p.Done())
	require.Len(t, hooked, 1, "hook sees the sentinel")
	assert.True(t, hooked[0].IsDone())
}

func TestInterpreterErrorIsolation(t *testing.T) {
	p, rec := newRecorded()
	feed(p, "data: INVALID\n\n"+deltaFrame("msg_1", "ok", 2))

	assert.Equal(t, []string{"error", "event"}, rec.order)

	var se *domain.StreamError
	require.ErrorAs(t, rec.errs[0], &se)
	assert.Equal(t, domain.StreamErrMalformedInput, se.Kind)
	assert.Equal(t, "INVALID", se.Payload)
	assert.ErrorIs(t, rec.errs[0], domain.ErrMalformedInput)
	assert.ErrorIs(t, rec.errs[0], jsonvalue.ErrMalformedInput)

	assert.Equal(t, "ok", rec.events[0].(domain.OutputTextDelta).Delta)
}

func TestInterpreterExactlyOneDispatch(t *testing.T) {
	frames := []string{
		`{"type":"response.created","response":{"id":"resp_1","status":"in_progress"},"sequence_number":0}`,
		`{"type":"response.in_progress","response":{"id":"resp_1","status":"in_progress"},"sequence_number":1}`,
		`{"type":"response.output_item.added","output_index":0,"item":{"id":"msg_1","type":"message"},"sequence_number":2}`,
		`{"type":"response.content_part.added","item_id":"msg_1","output_index":0,"content_index":0,"part":{"type":"output_text","text":""},"sequence_number":3}`,
		`{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":"Hi","sequence_number":4}`,
		`{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0,"sequence_number":5}`,
		`not json`,
		`{"error":{"message":"overloaded","type":"server_error"}}`,
		`{"type":"response.output_text.done","item_id":"msg_1","output_index":0,"content_index":0,"text":"Hi","sequence_number":6}`,
		`{"type":"response.content_part.done","item_id":"msg_1","output_index":0,"content_index":0,"part":{"type":"output_text","text":"Hi"},"sequence_number":7}`,
		`{"type":"response.output_item.done","output_index":0,"item":{"id":"msg_1","type":"message"},"sequence_number":8}`,
		`{"type":"response.completed","response":{"id":"resp_1","status":"completed","usage":{"input_tokens":5,"output_tokens":1,"total_tokens":6}},"sequence_number":9}`,
		`[DONE]`,
	}

	var b strings.Builder
	for _, f := range frames {
		b.WriteString("data: " + f + "\n\n")
	}

	p, rec := newRecorded()
	feed(p, b.String())

	assert.Equal(t, len(frames)-1, rec.calls())
	assert.Len(t, rec.errs, 3)
	assert.Equal(t, InterpreterStats{Frames: len(frames), Events: 9, Errors: 3}, p.Stats())

	last := rec.events[len(rec.events)-1].(domain.ResponseCompleted)
	assert.Equal(t, "resp_1", last.Response.ID)
	assert.Equal(t, domain.ResponseStatusCompleted, last.Response.Status)
	assert.Equal(t, &domain.ResponseUsage{InputTokens: 5, OutputTokens: 1, TotalTokens: 6}, last.Response.Usage)
}

func TestInterpreterCatalog(t *testing.T) {
	tests := []struct {
		payload string
		want    domain.ResponseStreamEvent
	}{
		{
			`{"type":"response.output_item.added","output_index":1,"item":{"id":"fc_1"},"sequence_number":3}`,
			domain.OutputItemAdded{OutputIndex: 1, Item: jsonvalue.Object{"id": jsonvalue.String("fc_1")}, SequenceNumber: 3},
		},
		{
			`{"type":"response.refusal.delta","item_id":"msg_1","output_index":0,"content_index":0,"delta":"I can"}`,
			domain.RefusalDelta{ItemID: "msg_1", Delta: "I can"},
		},
		{
			`{"type":"response.refusal.done","item_id":"msg_1","output_index":0,"content_index":0,"refusal":"I can't"}`,
			domain.RefusalDone{ItemID: "msg_1", Refusal: "I can't"},
		},
		{
			`{"type":"response.function_call_arguments.delta","item_id":"fc_1","output_index":1,"delta":"{\"a\""}`,
			domain.FunctionCallArgumentsDelta{ItemID: "fc_1", OutputIndex: 1, Delta: `{"a"`},
		},
		{
			`{"type":"response.function_call_arguments.done","item_id":"fc_1","output_index":1,"arguments":"{\"a\":1}"}`,
			domain.FunctionCallArgumentsDone{ItemID: "fc_1", OutputIndex: 1, Arguments: `{"a":1}`},
		},
		{
			`{"type":"response.reasoning_summary_text.delta","item_id":"rs_1","output_index":0,"summary_index":2,"delta":"think"}`,
			domain.ReasoningSummaryTextDelta{ItemID: "rs_1", SummaryIndex: 2, Delta: "think"},
		},
		{
			`{"type":"response.failed","response":{"id":"resp_2","status":"failed","error":{"code":"server_error","message":"boom"}}}`,
			domain.ResponseFailed{Response: domain.ResponseSnapshot{
				ID: "resp_2", Status: domain.ResponseStatusFailed,
				Error: &domain.ResponseError{Code: "server_error", Message: "boom"},
			}},
		},
		{
			`{"type":"response.created","response":{"id":"resp_3","model":"gpt-4o","created_at":1741476542,"output":[],"extra":true}}`,
			domain.ResponseCreated{Response: domain.ResponseSnapshot{
				ID: "resp_3", Model: "gpt-4o", CreatedAt: 1741476542, Output: jsonvalue.Array{},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.want.EventType()), func(t *testing.T) {
			p, rec := newRecorded()
			feed(p, "data: "+tt.payload+"\n\n")
			require.Empty(t, rec.errs)
			require.Len(t, rec.events, 1)
			assert.Equal(t, tt.want, rec.events[0])
		})
	}
}

func TestInterpreterEventLabelFallback(t *testing.T) {
	p, rec := newRecorded()
	feed(p, "event: response.output_text.delta\ndata: {\"item_id\":\"msg_1\",\"output_index\":0,\"content_index\":0,\"delta\":\"x\"}\n\n")

	require.Len(t, rec.events, 1)
	assert.Equal(t, "x", rec.events[0].(domain.OutputTextDelta).Delta)
}

func TestInterpreterTypeWinsOverEventLabel(t *testing.T) {
	p, rec := newRecorded()
	feed(p, "event: something.else\n"+deltaFrame("msg_1", "x", 1))

	require.Len(t, rec.events, 1)
	assert.Equal(t, domain.ResponseEventOutputTextDelta, rec.events[0].EventType())
}

func TestInterpreterDecodeFailures(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		eventType string
		field     string
	}{
		{"missing delta", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":0,"content_index":0}`,
			"response.output_text.delta", "delta"},
		{"wrong scalar type", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":"0","content_index":0,"delta":"x"}`,
			"response.output_text.delta", "output_index"},
		{"fractional index", `{"type":"response.output_text.delta","item_id":"msg_1","output_index":0.5,"content_index":0,"delta":"x"}`,
			"response.output_text.delta", "output_index"},
		{"null required", `{"type":"response.output_text.delta","item_id":null,"output_index":0,"content_index":0,"delta":"x"}`,
			"response.output_text.delta", "item_id"},
		{"missing snapshot", `{"type":"response.completed"}`, "response.completed", "response"},
		{"snapshot id", `{"type":"response.completed","response":{"status":"completed"}}`, "response.completed", "response.id"},
		{"nested usage", `{"type":"response.completed","response":{"id":"r","usage":{"input_tokens":"5"}}}`,
			"response.completed", "response.usage.input_tokens"},
		{"item not object", `{"type":"response.output_item.added","output_index":0,"item":[]}`,
			"response.output_item.added", "item"},
		{"sequence not integer", `{"type":"response.refusal.delta","item_id":"m","output_index":0,"content_index":0,"delta":"x","sequence_number":"1"}`,
			"response.refusal.delta", "sequence_number"},
		{"type not string", `{"type":5}`, "", "type"},
		{"not an object", `[1,2]`, "", ""},
		{"scalar", `"hello"`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, rec := newRecorded()
			feed(p, "data: "+tt.payload+"\n\n")

			require.Empty(t, rec.events)
			require.Len(t, rec.errs, 1)
			assert.ErrorIs(t, rec.errs[0], domain.ErrDecodeFailure)

			var se *domain.StreamError
			require.ErrorAs(t, rec.errs[0], &se)
			assert.Equal(t, tt.eventType, se.EventType)
			assert.Equal(t, tt.field, se.Field)
			assert.Equal(t, tt.payload, se.Payload)
		})
	}
}

func TestInterpreterErrorEnvelope(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded","param":null}}`+"\n\n")

	require.Empty(t, rec.events)
	require.Len(t, rec.errs, 1)
	apiErr, ok := domain.AsAPIError(rec.errs[0])
	require.True(t, ok)
	assert.Equal(t, &domain.APIError{Message: "Rate limit reached", Type: "requests", Code: "rate_limit_exceeded"}, apiErr)
	assert.ErrorIs(t, rec.errs[0], domain.ErrProviderError)
}

func TestInterpreterErrorEnvelopeNumericCode(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"error":{"message":"bad gateway","code":502}}`+"\n\n")

	apiErr, ok := domain.AsAPIError(rec.errs[0])
	require.True(t, ok)
	assert.Equal(t, "502", apiErr.Code)
}

func TestInterpreterErrorEvent(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"type":"error","code":"ERR_SOMETHING","message":"Something went wrong","param":null,"sequence_number":3}`+"\n\n")

	require.Len(t, rec.errs, 1)
	apiErr, ok := domain.AsAPIError(rec.errs[0])
	require.True(t, ok)
	assert.Equal(t, "ERR_SOMETHING", apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, 3, apiErr.SequenceNumber)
}

func TestInterpreterErrorEventWithoutMessage(t *testing.T) {
	p, rec := newRecorded()
	feed(p, `data: {"type":"error","code":"ERR"}`+"\n\n")

	require.Len(t, rec.errs, 1)
	var se *domain.StreamError
	require.ErrorAs(t, rec.errs[0], &se)
	assert.Equal(t, "message", se.Field)
	assert.Equal(t, "error", se.EventType)
}

func TestInterpreterUnknownEventPolicy(t *testing.T) {
	input := `data: {"type":"response.audio.delta","delta":"AAA"}` + "\n\n" + `data: {"no_type":true}` + "\n\n"

	t.Run("ignore", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		p, rec := newRecorded(WithLogger(logger))
		feed(p, input)

		assert.Zero(t, rec.calls())
		assert.Equal(t, 2, p.Stats().Ignored)
		assert.Contains(t, logs.String(), "response.audio.delta")
	})

	t.Run("report", func(t *testing.T) {
		p, rec := newRecorded(WithUnknownEventPolicy(UnknownEventsReport))
		feed(p, input)

		require.Len(t, rec.errs, 2)
		assert.ErrorIs(t, rec.errs[0], domain.ErrUnrecognizedVariant)
		var se *domain.StreamError
		require.ErrorAs(t, rec.errs[0], &se)
		assert.Equal(t, "response.audio.delta", se.EventType)

		require.ErrorAs(t, rec.errs[1], &se)
		assert.Empty(t, se.EventType)
	})
}

func TestParseUnknownEventPolicy(t *testing.T) {
	got, err := ParseUnknownEventPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UnknownEventsIgnore, got)

	got, err = ParseUnknownEventPolicy("report")
	require.NoError(t, err)
	assert.Equal(t, UnknownEventsReport, got)

	_, err = ParseUnknownEventPolicy("explode")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInterpreterIntrospection(t *testing.T) {
	p, _ := newRecorded()
	feed(p, "id: evt_1\nretry: 3000\n"+deltaFrame("msg_1", "x", 1)+"id: evt_2\n")

	assert.Equal(t, "evt_2", p.LastEventID())
	assert.Equal(t, 3*time.Second, p.RetryHint())
}

func TestInterpreterCallbacksRequired(t *testing.T) {
	p := NewResponseEventsInterpreter()
	assert.Panics(t, func() { p.ProcessData([]byte("data: {}\n\n")) })
	assert.Panics(t, func() { p.SetCallbacks(nil, func(error) {}) })
	assert.Panics(t, func() { p.SetCallbacks(func(domain.ResponseStreamEvent) {}, nil) })
}

func TestInterpreterReplaceCallbacks(t *testing.T) {
	p, first := newRecorded()
	feed(p, deltaFrame("msg_1", "a", 1))

	second := &recorder{}
	p.SetCallbacks(second.onEvent, second.onError)
	feed(p, deltaFrame("msg_1", "b", 2))

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestKnownResponseEventType(t *testing.T) {
	assert.True(t, KnownResponseEventType(domain.ResponseEventOutputTextDelta))
	assert.False(t, KnownResponseEventType("response.audio.delta"))
	assert.False(t, KnownResponseEventType(domain.ResponseEventError))
}
