package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"respstream/internal/domain"
)

const subsystem = "journal"

// SQLiteJournal implements domain.FrameJournal using SQLite.
type SQLiteJournal struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath
// and runs the schema migration. Use ":memory:" for a throwaway journal.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}
	now := time.Now()
	return &SQLiteJournal{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			label      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS frames (
			session_id  TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			event       TEXT    NOT NULL DEFAULT '',
			data        TEXT    NOT NULL,
			last_id     TEXT    NOT NULL DEFAULT '',
			recorded_at TEXT    NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) newID(t time.Time) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), j.entropy).String()
}

// StartSession implements domain.FrameJournal.
func (j *SQLiteJournal) StartSession(ctx context.Context, label string) (string, error) {
	now := time.Now().UTC()
	id := j.newID(now)
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO sessions (id, label, created_at) VALUES (?, ?, ?)",
		id, label, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", domain.NewSubSystemError(subsystem, "Journal.StartSession", domain.ErrJournalWrite, err.Error())
	}
	return id, nil
}

// Append implements domain.FrameJournal. The frame gets the next sequence
// number of its session; appending to an unknown session fails.
func (j *SQLiteJournal) Append(ctx context.Context, sessionID string, frame domain.StreamFrame) error {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO frames (session_id, seq, event, data, last_id, recorded_at)
		SELECT s.id,
		       COALESCE((SELECT MAX(seq) FROM frames WHERE session_id = s.id), 0) + 1,
		       ?, ?, ?, ?
		FROM sessions s WHERE s.id = ?`,
		frame.Event, frame.Data, frame.ID, time.Now().UTC().Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return domain.NewSubSystemError(subsystem, "Journal.Append", domain.ErrJournalWrite, err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewSubSystemError(subsystem, "Journal.Append", domain.ErrNotFound, sessionID)
	}
	return nil
}

// Frames implements domain.FrameJournal.
func (j *SQLiteJournal) Frames(ctx context.Context, sessionID string) ([]domain.StreamFrame, error) {
	var exists int
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if exists == 0 {
		return nil, domain.NewSubSystemError(subsystem, "Journal.Frames", domain.ErrNotFound, sessionID)
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT event, data, last_id FROM frames WHERE session_id = ? ORDER BY seq", sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []domain.StreamFrame
	for rows.Next() {
		var f domain.StreamFrame
		if err := rows.Scan(&f.Event, &f.Data, &f.ID); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Sessions implements domain.FrameJournal.
func (j *SQLiteJournal) Sessions(ctx context.Context) ([]domain.JournalSession, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, s.label, s.created_at, COUNT(f.seq)
		FROM sessions s LEFT JOIN frames f ON f.session_id = s.id
		GROUP BY s.id
		ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.JournalSession
	for rows.Next() {
		var (
			s       domain.JournalSession
			created string
		)
		if err := rows.Scan(&s.ID, &s.Label, &created, &s.Frames); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

var _ domain.FrameJournal = (*SQLiteJournal)(nil)
