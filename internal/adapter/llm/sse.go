package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"respstream/internal/domain"
)

// defaultReadChunkSize is the body read size when none is configured.
const defaultReadChunkSize = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// frameScanner splits an event-stream body into frames. Input arrives in
// arbitrary chunks; a partial line stays in buf and a partial frame stays in
// data/event until the bytes that complete them arrive.
type frameScanner struct {
	buf     []byte
	started bool // leading BOM handled
	skipLF  bool // previous chunk ended in CR; a leading LF completes that CRLF

	data      strings.Builder
	dataLines int
	event     string
	lastID    string
	retry     time.Duration
}

// feed appends chunk and emits every frame completed by it, in order.
func (s *frameScanner) feed(chunk []byte, emit func(domain.StreamFrame)) {
	s.buf = append(s.buf, chunk...)

	if !s.started {
		if len(s.buf) < len(utf8BOM) && bytes.HasPrefix(utf8BOM, s.buf) {
			return // could still be a BOM
		}
		s.buf = bytes.TrimPrefix(s.buf, utf8BOM)
		s.started = true
	}

	pos := 0
	if s.skipLF && len(s.buf) > 0 {
		if s.buf[0] == '\n' {
			pos = 1
		}
		s.skipLF = false
	}
	for {
		rest := s.buf[pos:]
		i := bytes.IndexAny(rest, "\r\n")
		if i < 0 {
			break
		}
		advance := i + 1
		if rest[i] == '\r' {
			if i+1 == len(rest) {
				s.skipLF = true
			} else if rest[i+1] == '\n' {
				advance++
			}
		}
		s.line(rest[:i], emit)
		pos += advance
	}

	n := copy(s.buf, s.buf[pos:])
	s.buf = s.buf[:n]
}

// line handles one line without its terminator.
func (s *frameScanner) line(line []byte, emit func(domain.StreamFrame)) {
	if len(line) == 0 {
		s.dispatch(emit)
		return
	}

	// Comments keep-alive the connection and carry nothing.
	if line[0] == ':' {
		return
	}

	field, value := line, []byte(nil)
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field = line[:i]
		value = bytes.TrimPrefix(line[i+1:], []byte(" "))
	}

	switch string(field) {
	case "data":
		if s.dataLines > 0 {
			s.data.WriteByte('\n')
		}
		s.data.Write(value)
		s.dataLines++
	case "event":
		s.event = string(value)
	case "id":
		if bytes.IndexByte(value, 0) < 0 {
			s.lastID = string(value)
		}
	case "retry":
		if ms, err := strconv.Atoi(string(value)); err == nil && ms >= 0 {
			s.retry = time.Duration(ms) * time.Millisecond
		}
	default:
		// Unknown fields are ignored.
	}
}

// dispatch completes the current frame. A frame whose data is empty is
// dropped, along with its event name.
func (s *frameScanner) dispatch(emit func(domain.StreamFrame)) {
	hasData := s.data.Len() > 0
	frame := domain.StreamFrame{Event: s.event, Data: s.data.String(), ID: s.lastID}

	s.data.Reset()
	s.dataLines = 0
	s.event = ""

	if hasData {
		emit(frame)
	}
}

// buffered reports the number of bytes held back waiting for a line end.
func (s *frameScanner) buffered() int {
	return len(s.buf)
}

// streamResults reads body in chunks, feeds each chunk to interp and
// forwards the interpreter's callbacks as results on the returned channel.
// The channel is closed when the body is exhausted, the [DONE] sentinel has
// been seen, the body fails, or ctx is cancelled. A read error other than
// EOF is delivered as a final result. finish, if set, runs just before the
// channel is closed.
func streamResults(ctx context.Context, body io.ReadCloser, interp *ResponseEventsInterpreter, chunkSize, buffer int, finish func()) <-chan domain.ResponseStreamResult {
	if chunkSize <= 0 {
		chunkSize = defaultReadChunkSize
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan domain.ResponseStreamResult, buffer)

	go func() {
		defer close(ch)
		defer body.Close()
		if finish != nil {
			defer finish()
		}

		send := func(r domain.ResponseStreamResult) {
			select {
			case ch <- r:
			case <-ctx.Done():
			}
		}
		interp.SetCallbacks(
			func(ev domain.ResponseStreamEvent) { send(domain.ResponseStreamResult{Event: ev}) },
			func(err error) { send(domain.ResponseStreamResult{Err: err}) },
		)

		chunk := make([]byte, chunkSize)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := body.Read(chunk)
			if n > 0 {
				interp.ProcessData(chunk[:n])
			}
			if interp.Done() || ctx.Err() != nil {
				return
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					send(domain.ResponseStreamResult{Err: fmt.Errorf("read stream: %w", err)})
				}
				return
			}
		}
	}()
	return ch
}
