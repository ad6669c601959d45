package journal

import (
	"context"
	"log/slog"
	"sync/atomic"

	"respstream/internal/domain"
)

// Recorder appends every frame an interpreter sees to one journal session.
// Journal failures are logged and counted; they never reach the
// interpreter's callbacks.
type Recorder struct {
	ctx       context.Context
	journal   domain.FrameJournal
	sessionID string
	logger    *slog.Logger

	recorded atomic.Int64
	failed   atomic.Int64
}

// NewRecorder starts a session labelled label. ctx bounds every append.
func NewRecorder(ctx context.Context, j domain.FrameJournal, label string, logger *slog.Logger) (*Recorder, error) {
	id, err := j.StartSession(ctx, label)
	if err != nil {
		return nil, err
	}
	logger.Debug("journal session started", "session_id", id, "label", label)
	return &Recorder{ctx: ctx, journal: j, sessionID: id, logger: logger}, nil
}

// SessionID returns the session frames are recorded into.
func (r *Recorder) SessionID() string { return r.sessionID }

// Hook returns the frame hook to install on an interpreter.
func (r *Recorder) Hook() domain.FrameHook {
	return r.record
}

func (r *Recorder) record(frame domain.StreamFrame) {
	if err := r.journal.Append(r.ctx, r.sessionID, frame); err != nil {
		r.failed.Add(1)
		r.logger.Warn("journal append failed", "session_id", r.sessionID, "error", err)
		return
	}
	r.recorded.Add(1)
}

// Recorded returns how many frames were stored.
func (r *Recorder) Recorded() int { return int(r.recorded.Load()) }

// Failed returns how many appends failed.
func (r *Recorder) Failed() int { return int(r.failed.Load()) }
