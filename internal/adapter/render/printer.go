package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/charmbracelet/glamour"

	"respstream/internal/domain"
	"respstream/pkg/jsonvalue"
)

// Printer writes one line per callback, as styled text or as JSON lines.
// It is a usecase.Sink.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

// NewPrinter creates a text printer, or a JSON-lines printer when asJSON.
func NewPrinter(w io.Writer, asJSON bool) *Printer {
	return &Printer{w: w, json: asJSON}
}

type jsonEvent struct {
	Type     domain.ResponseEventType   `json:"type"`
	Sequence int                        `json:"sequence_number"`
	Event    domain.ResponseStreamEvent `json:"event"`
}

type jsonError struct {
	Error jsonErrorBody `json:"error"`
}

type jsonErrorBody struct {
	Code      domain.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	EventType string           `json:"event_type,omitempty"`
	Field     string           `json:"field,omitempty"`
	API       *domain.APIError `json:"api,omitempty"`
}

// OnEvent prints an event.
func (p *Printer) OnEvent(ev domain.ResponseStreamEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		p.writeJSON(jsonEvent{Type: ev.EventType(), Sequence: ev.Sequence(), Event: ev})
		return
	}
	t := string(ev.EventType())
	line := labelStyle(t).Render(t) + " " + Dim.Render("#"+strconv.Itoa(ev.Sequence()))
	if s := Summary(ev); s != "" {
		line += " " + s
	}
	fmt.Fprintln(p.w, line)
}

// OnError prints a failure.
func (p *Printer) OnError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		body := jsonErrorBody{Code: domain.ErrorCodeOf(err), Message: err.Error()}
		if se, ok := asStreamError(err); ok {
			body.EventType = se.EventType
			body.Field = se.Field
		}
		if apiErr, ok := domain.AsAPIError(err); ok {
			body.API = apiErr
		}
		p.writeJSON(jsonError{Error: body})
		return
	}
	fmt.Fprintln(p.w, TextError.Render("error")+" "+TextMuted.Render(string(domain.ErrorCodeOf(err)))+" "+err.Error())
}

func (p *Printer) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(p.w, "{\"error\":{\"code\":%q,\"message\":%q}}\n", domain.CodeUnknown, err.Error())
		return
	}
	p.w.Write(append(data, '\n'))
}

// Summary is a short human description of an event, without its type.
func Summary(ev domain.ResponseStreamEvent) string {
	switch e := ev.(type) {
	case domain.ResponseCreated:
		return snapshotSummary(e.Response)
	case domain.ResponseInProgress:
		return snapshotSummary(e.Response)
	case domain.ResponseCompleted:
		return snapshotSummary(e.Response)
	case domain.ResponseFailed:
		s := snapshotSummary(e.Response)
		if e.Response.Error != nil {
			s += " " + TextError.Render(e.Response.Error.Message)
		}
		return s
	case domain.ResponseIncomplete:
		if e.Details == nil || e.Details.Reason == "" {
			return "reason=none"
		}
		return "reason=" + string(e.Details.Reason)
	case domain.OutputItemAdded:
		return itemSummary(e.OutputIndex, e.Item)
	case domain.OutputItemDone:
		return itemSummary(e.OutputIndex, e.Item)
	case domain.ContentPartAdded:
		return fmt.Sprintf("item=%s part=%d", e.ItemID, e.ContentIndex)
	case domain.ContentPartDone:
		return fmt.Sprintf("item=%s part=%d", e.ItemID, e.ContentIndex)
	case domain.OutputTextDelta:
		return strconv.Quote(e.Delta)
	case domain.OutputTextDone:
		return strconv.Quote(e.Text)
	case domain.RefusalDelta:
		return strconv.Quote(e.Delta)
	case domain.RefusalDone:
		return strconv.Quote(e.Refusal)
	case domain.FunctionCallArgumentsDelta:
		return fmt.Sprintf("item=%s %s", e.ItemID, strconv.Quote(e.Delta))
	case domain.FunctionCallArgumentsDone:
		return fmt.Sprintf("item=%s %s", e.ItemID, e.Arguments)
	case domain.ReasoningSummaryTextDelta:
		return strconv.Quote(e.Delta)
	}
	return ""
}

func snapshotSummary(s domain.ResponseSnapshot) string {
	out := "id=" + s.ID
	if s.Status != "" {
		out += " status=" + string(s.Status)
	}
	if s.Usage != nil {
		out += fmt.Sprintf(" tokens=%d/%d", s.Usage.InputTokens, s.Usage.OutputTokens)
	}
	return out
}

func itemSummary(index int, item jsonvalue.Object) string {
	out := fmt.Sprintf("index=%d", index)
	if t, ok := item["type"].(jsonvalue.String); ok {
		out += " type=" + string(t)
	}
	if id, ok := item["id"].(jsonvalue.String); ok {
		out += " id=" + string(id)
	}
	return out
}

func asStreamError(err error) (*domain.StreamError, bool) {
	var se *domain.StreamError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Markdown renders content for a terminal of the given width. On renderer
// failure the content is returned unchanged.
func Markdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}
