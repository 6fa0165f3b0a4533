// internal/journal/journal.go
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidSession      = errors.New("invalid session id")
)

// Entry types written by the desk.
const (
	EntryCheckinRecorded = "CheckinRecorded"
	EntrySessionEnded    = "SessionEnded"
)

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS desk_journal (
	id BIGSERIAL PRIMARY KEY,
	session_id UUID NOT NULL,
	service_point_id TEXT NOT NULL,
	entry_type TEXT NOT NULL,
	entry_data JSONB NOT NULL,
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (session_id, version)
);`

// Entry is one journal row.
type Entry struct {
	ID             int64           `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	ServicePointID string          `json:"service_point_id"`
	EntryType      string          `json:"entry_type"`
	EntryData      json.RawMessage `json:"entry_data"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Journal is an append-only audit of desk sessions in Postgres.
type Journal struct {
	db             *sql.DB
	servicePointID string
	tracer         trace.Tracer
}

// New creates a journal for the desk at servicePointID.
func New(db *sql.DB, servicePointID string) *Journal {
	return &Journal{
		db:             db,
		servicePointID: servicePointID,
		tracer:         otel.Tracer("checkindesk/journal"),
	}
}

// EnsureSchema creates the table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Append adds an entry at the next version of the session.
func (j *Journal) Append(ctx context.Context, sessionID, entryType string, data any) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSession, sessionID)
	}

	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("entry.type", entryType),
		),
	)
	defer span.End()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	var entryID int64
	var version int
	for attempt := 1; ; attempt++ {
		entryID, version, err = j.appendOnce(ctx, id, entryType, payload)
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt == appendAttempts {
			break
		}
		span.AddEvent("journal.append.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int64("entry.id", entryID),
		attribute.Int("entry.version", version),
	)
	return nil
}

// appendAttempts bounds how often an append is tried when it loses a race
// for the next version.
const appendAttempts = 2

func (j *Journal) appendOnce(ctx context.Context, id uuid.UUID, entryType string, payload []byte) (int64, int, error) {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM desk_journal
		WHERE session_id = $1
	`, id).Scan(&current)
	if err != nil {
		return 0, 0, conflictOr(err, "query current version")
	}

	var entryID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO desk_journal (session_id, service_point_id, entry_type, entry_data, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, id, j.servicePointID, entryType, payload, current+1, time.Now().UTC()).Scan(&entryID)
	if err != nil {
		return 0, 0, conflictOr(err, "insert entry")
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, conflictOr(err, "commit transaction")
	}
	return entryID, current + 1, nil
}

// conflictOr maps a lost version race to ErrConcurrencyConflict: either a
// duplicate (session_id, version) or a serialization failure. Other errors
// are wrapped with op.
func conflictOr(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001":
			return ErrConcurrencyConflict
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Load returns the entries of the given sessions ordered by session and
// version.
func (j *Journal) Load(ctx context.Context, sessionIDs ...string) ([]Entry, error) {
	ctx, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(attribute.Int("sessions", len(sessionIDs))),
	)
	defer span.End()

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, service_point_id, entry_type, entry_data, version, created_at
		FROM desk_journal
		WHERE session_id::text = ANY($1)
		ORDER BY session_id, version ASC
	`, pq.Array(sessionIDs))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ServicePointID, &e.EntryType, &e.EntryData, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	span.SetAttributes(attribute.Int("entries.loaded", len(entries)))
	return entries, nil
}
