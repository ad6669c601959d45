package journal

import (
	"context"
	"strings"

	"respstream/internal/domain"
)

// Encode renders frames back to event-stream bytes. An id line is written
// whenever the last event id changes, so a scanner reading the output ends
// each frame with the same ID it was recorded with.
func Encode(frames []domain.StreamFrame) []byte {
	var b strings.Builder
	lastID := ""
	for _, f := range frames {
		if f.Event != "" {
			b.WriteString("event: ")
			b.WriteString(f.Event)
			b.WriteByte('\n')
		}
		if f.ID != lastID {
			b.WriteString("id: ")
			b.WriteString(f.ID)
			b.WriteByte('\n')
			lastID = f.ID
		}
		for line := range strings.SplitSeq(f.Data, "\n") {
			b.WriteString("data: ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Replay feeds recorded frames through interp, whose callbacks must
// already be set.
func Replay(frames []domain.StreamFrame, interp domain.StreamInterpreter) {
	interp.ProcessData(Encode(frames))
}

// ReplaySession loads a session from j and replays it.
func ReplaySession(ctx context.Context, j domain.FrameJournal, sessionID string, interp domain.StreamInterpreter) (int, error) {
	frames, err := j.Frames(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	Replay(frames, interp)
	return len(frames), nil
}
