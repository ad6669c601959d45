package domain

import (
	"context"
	"time"
)

// JournalSession is one recorded stream.
type JournalSession struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Frames    int       `json:"frames"`
}

// FrameJournal persists raw stream frames so a stream can be replayed
// through an interpreter later.
type FrameJournal interface {
	// StartSession opens a new session and returns its ID.
	StartSession(ctx context.Context, label string) (string, error)
	// Append records frame at the end of the session.
	Append(ctx context.Context, sessionID string, frame StreamFrame) error
	// Frames returns the session's frames in recording order.
	Frames(ctx context.Context, sessionID string) ([]StreamFrame, error)
	// Sessions lists all sessions, oldest first.
	Sessions(ctx context.Context) ([]JournalSession, error)
}
