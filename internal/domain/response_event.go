package domain

import "respstream/pkg/jsonvalue"

// ResponseEventType is the "type" discriminant of a Responses API stream event.
type ResponseEventType string

const (
	ResponseEventCreated                   ResponseEventType = "response.created"
	ResponseEventInProgress                ResponseEventType = "response.in_progress"
	ResponseEventCompleted                 ResponseEventType = "response.completed"
	ResponseEventFailed                    ResponseEventType = "response.failed"
	ResponseEventIncomplete                ResponseEventType = "response.incomplete"
	ResponseEventOutputItemAdded           ResponseEventType = "response.output_item.added"
	ResponseEventOutputItemDone            ResponseEventType = "response.output_item.done"
	ResponseEventContentPartAdded          ResponseEventType = "response.content_part.added"
	ResponseEventContentPartDone           ResponseEventType = "response.content_part.done"
	ResponseEventOutputTextDelta           ResponseEventType = "response.output_text.delta"
	ResponseEventOutputTextDone            ResponseEventType = "response.output_text.done"
	ResponseEventRefusalDelta              ResponseEventType = "response.refusal.delta"
	ResponseEventRefusalDone               ResponseEventType = "response.refusal.done"
	ResponseEventFunctionCallArgsDelta     ResponseEventType = "response.function_call_arguments.delta"
	ResponseEventFunctionCallArgsDone      ResponseEventType = "response.function_call_arguments.done"
	ResponseEventReasoningSummaryTextDelta ResponseEventType = "response.reasoning_summary_text.delta"

	// ResponseEventError is the in-band error event. It is surfaced as an
	// *APIError, never as a ResponseStreamEvent.
	ResponseEventError ResponseEventType = "error"
)

// ResponseStreamEvent is the closed set of typed stream events. Consumers
// type-switch over the concrete types below.
type ResponseStreamEvent interface {
	EventType() ResponseEventType
	Sequence() int
	isResponseStreamEvent()
}

// ResponseStatus is the lifecycle status of a response.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusFailed     ResponseStatus = "failed"
	ResponseStatusIncomplete ResponseStatus = "incomplete"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
	ResponseStatusQueued     ResponseStatus = "queued"
)

// IncompleteReason explains why a response stopped early.
type IncompleteReason string

const (
	IncompleteReasonMaxOutputTokens IncompleteReason = "max_output_tokens"
	IncompleteReasonContentFilter   IncompleteReason = "content_filter"
)

// Known reports whether r is one of the reasons this build understands.
// Unknown reasons are kept verbatim rather than rejected.
func (r IncompleteReason) Known() bool {
	switch r {
	case IncompleteReasonMaxOutputTokens, IncompleteReasonContentFilter:
		return true
	}
	return false
}

// IncompleteDetails is attached to incomplete responses.
type IncompleteDetails struct {
	Reason IncompleteReason `json:"reason,omitempty"`
}

// ResponseError is the error object of a failed response.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ResponseUsage reports token consumption of a response.
type ResponseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResponseSnapshot is the response object carried by lifecycle events.
type ResponseSnapshot struct {
	ID                string             `json:"id"`
	Status            ResponseStatus     `json:"status,omitempty"`
	Model             string             `json:"model,omitempty"`
	CreatedAt         int64              `json:"created_at,omitempty"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details,omitempty"`
	Error             *ResponseError     `json:"error,omitempty"`
	Usage             *ResponseUsage     `json:"usage,omitempty"`
	Output            jsonvalue.Array    `json:"output,omitempty"`
}

// --- lifecycle events ---

// ResponseCreated is emitted once when the response object is created.
type ResponseCreated struct {
	Response       ResponseSnapshot `json:"response"`
	SequenceNumber int              `json:"sequence_number"`
}

// ResponseInProgress is emitted while the response is being generated.
type ResponseInProgress struct {
	Response       ResponseSnapshot `json:"response"`
	SequenceNumber int              `json:"sequence_number"`
}

// ResponseCompleted is the terminal event of a successful response.
type ResponseCompleted struct {
	Response       ResponseSnapshot `json:"response"`
	SequenceNumber int              `json:"sequence_number"`
}

// ResponseFailed is the terminal event of a failed response.
type ResponseFailed struct {
	Response       ResponseSnapshot `json:"response"`
	SequenceNumber int              `json:"sequence_number"`
}

// ResponseIncomplete is the terminal event of a response that stopped early.
// Details is nil when the server sent no details or sent null.
type ResponseIncomplete struct {
	Details        *IncompleteDetails `json:"incomplete_details"`
	Response       *ResponseSnapshot  `json:"response,omitempty"`
	SequenceNumber int                `json:"sequence_number"`
}

// --- output structure events ---

// OutputItemAdded announces a new output item.
type OutputItemAdded struct {
	OutputIndex    int              `json:"output_index"`
	Item           jsonvalue.Object `json:"item"`
	SequenceNumber int              `json:"sequence_number"`
}

// OutputItemDone carries the final form of an output item.
type OutputItemDone struct {
	OutputIndex    int              `json:"output_index"`
	Item           jsonvalue.Object `json:"item"`
	SequenceNumber int              `json:"sequence_number"`
}

// ContentPartAdded announces a new content part of an output item.
type ContentPartAdded struct {
	ItemID         string           `json:"item_id"`
	OutputIndex    int              `json:"output_index"`
	ContentIndex   int              `json:"content_index"`
	Part           jsonvalue.Object `json:"part"`
	SequenceNumber int              `json:"sequence_number"`
}

// ContentPartDone carries the final form of a content part.
type ContentPartDone struct {
	ItemID         string           `json:"item_id"`
	OutputIndex    int              `json:"output_index"`
	ContentIndex   int              `json:"content_index"`
	Part           jsonvalue.Object `json:"part"`
	SequenceNumber int              `json:"sequence_number"`
}

// --- incremental content events ---

// OutputTextDelta is one incremental chunk of output text.
type OutputTextDelta struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequence_number"`
}

// OutputTextDone carries the complete text of a content part.
type OutputTextDone struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Text           string `json:"text"`
	SequenceNumber int    `json:"sequence_number"`
}

// RefusalDelta is one incremental chunk of refusal text.
type RefusalDelta struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequence_number"`
}

// RefusalDone carries the complete refusal text.
type RefusalDone struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	ContentIndex   int    `json:"content_index"`
	Refusal        string `json:"refusal"`
	SequenceNumber int    `json:"sequence_number"`
}

// FunctionCallArgumentsDelta is one chunk of function call arguments JSON.
type FunctionCallArgumentsDelta struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequence_number"`
}

// FunctionCallArgumentsDone carries the complete arguments JSON.
type FunctionCallArgumentsDone struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	Arguments      string `json:"arguments"`
	SequenceNumber int    `json:"sequence_number"`
}

// ReasoningSummaryTextDelta is one chunk of a reasoning summary.
type ReasoningSummaryTextDelta struct {
	ItemID         string `json:"item_id"`
	OutputIndex    int    `json:"output_index"`
	SummaryIndex   int    `json:"summary_index"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequence_number"`
}

func (ResponseCreated) EventType() ResponseEventType    { return ResponseEventCreated }
func (ResponseInProgress) EventType() ResponseEventType { return ResponseEventInProgress }
func (ResponseCompleted) EventType() ResponseEventType  { return ResponseEventCompleted }
func (ResponseFailed) EventType() ResponseEventType     { return ResponseEventFailed }
func (ResponseIncomplete) EventType() ResponseEventType { return ResponseEventIncomplete }
func (OutputItemAdded) EventType() ResponseEventType    { return ResponseEventOutputItemAdded }
func (OutputItemDone) EventType() ResponseEventType     { return ResponseEventOutputItemDone }
func (ContentPartAdded) EventType() ResponseEventType   { return ResponseEventContentPartAdded }
func (ContentPartDone) EventType() ResponseEventType    { return ResponseEventContentPartDone }
func (OutputTextDelta) EventType() ResponseEventType    { return ResponseEventOutputTextDelta }
func (OutputTextDone) EventType() ResponseEventType     { return ResponseEventOutputTextDone }
func (RefusalDelta) EventType() ResponseEventType       { return ResponseEventRefusalDelta }
func (RefusalDone) EventType() ResponseEventType        { return ResponseEventRefusalDone }
func (FunctionCallArgumentsDelta) EventType() ResponseEventType {
	return ResponseEventFunctionCallArgsDelta
}
func (FunctionCallArgumentsDone) EventType() ResponseEventType {
	return ResponseEventFunctionCallArgsDone
}
func (ReasoningSummaryTextDelta) EventType() ResponseEventType {
	return ResponseEventReasoningSummaryTextDelta
}

func (e ResponseCreated) Sequence() int            { return e.SequenceNumber }
func (e ResponseInProgress) Sequence() int         { return e.SequenceNumber }
func (e ResponseCompleted) Sequence() int          { return e.SequenceNumber }
func (e ResponseFailed) Sequence() int             { return e.SequenceNumber }
func (e ResponseIncomplete) Sequence() int         { return e.SequenceNumber }
func (e OutputItemAdded) Sequence() int            { return e.SequenceNumber }
func (e OutputItemDone) Sequence() int             { return e.SequenceNumber }
func (e ContentPartAdded) Sequence() int           { return e.SequenceNumber }
func (e ContentPartDone) Sequence() int            { return e.SequenceNumber }
func (e OutputTextDelta) Sequence() int            { return e.SequenceNumber }
func (e OutputTextDone) Sequence() int             { return e.SequenceNumber }
func (e RefusalDelta) Sequence() int               { return e.SequenceNumber }
func (e RefusalDone) Sequence() int                { return e.SequenceNumber }
func (e FunctionCallArgumentsDelta) Sequence() int { return e.SequenceNumber }
func (e FunctionCallArgumentsDone) Sequence() int  { return e.SequenceNumber }
func (e ReasoningSummaryTextDelta) Sequence() int  { return e.SequenceNumber }

func (ResponseCreated) isResponseStreamEvent()            {}
func (ResponseInProgress) isResponseStreamEvent()         {}
func (ResponseCompleted) isResponseStreamEvent()          {}
func (ResponseFailed) isResponseStreamEvent()             {}
func (ResponseIncomplete) isResponseStreamEvent()         {}
func (OutputItemAdded) isResponseStreamEvent()            {}
func (OutputItemDone) isResponseStreamEvent()             {}
func (ContentPartAdded) isResponseStreamEvent()           {}
func (ContentPartDone) isResponseStreamEvent()            {}
func (OutputTextDelta) isResponseStreamEvent()            {}
func (OutputTextDone) isResponseStreamEvent()             {}
func (RefusalDelta) isResponseStreamEvent()               {}
func (RefusalDone) isResponseStreamEvent()                {}
func (FunctionCallArgumentsDelta) isResponseStreamEvent() {}
func (FunctionCallArgumentsDone) isResponseStreamEvent()  {}
func (ReasoningSummaryTextDelta) isResponseStreamEvent()  {}

// IsTerminal reports whether ev ends the response lifecycle.
func IsTerminal(ev ResponseStreamEvent) bool {
	switch ev.(type) {
	case ResponseCompleted, ResponseFailed, ResponseIncomplete:
		return true
	}
	return false
}
