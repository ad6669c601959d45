package render

import (
	"fmt"
	"io"
	"sync"

	"respstream/internal/domain"
)

// LiveText writes output text deltas as they arrive, for a chat-like view.
// Refusals are styled as warnings; failures go to errW on their own line.
type LiveText struct {
	mu      sync.Mutex
	w       io.Writer
	errW    io.Writer
	midLine bool
}

// NewLiveText creates a live writer.
func NewLiveText(w, errW io.Writer) *LiveText {
	return &LiveText{w: w, errW: errW}
}

// OnEvent implements usecase.Sink.
func (l *LiveText) OnEvent(ev domain.ResponseStreamEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e := ev.(type) {
	case domain.OutputTextDelta:
		l.write(e.Delta)
	case domain.RefusalDelta:
		l.write(TextWarning.Render(e.Delta))
	case domain.ResponseIncomplete:
		l.newline()
		reason := "unknown"
		if e.Details != nil && e.Details.Reason != "" {
			reason = string(e.Details.Reason)
		}
		fmt.Fprintln(l.errW, TextWarning.Render("incomplete: "+reason))
	case domain.ResponseFailed:
		l.newline()
		msg := "response failed"
		if e.Response.Error != nil {
			msg += ": " + e.Response.Error.Message
		}
		fmt.Fprintln(l.errW, TextError.Render(msg))
	}
}

// OnError implements usecase.Sink.
func (l *LiveText) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newline()
	fmt.Fprintln(l.errW, TextError.Render("error: ")+err.Error())
}

// Finish ends a partially written line.
func (l *LiveText) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.newline()
}

func (l *LiveText) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(l.w, s)
	l.midLine = s[len(s)-1] != '\n'
}

func (l *LiveText) newline() {
	if l.midLine {
		io.WriteString(l.w, "\n")
		l.midLine = false
	}
}
