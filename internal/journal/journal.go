package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/airlink2mqtt/internal/bridges/airlink"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// ErrInvalidEntry is returned when an entry lacks a direction or outcome.
var ErrInvalidEntry = errors.New("invalid journal entry")

// Entry is one journaled relay outcome.
type Entry struct {
	ID          string
	Direction   string
	Outcome     string
	PhoneNumber string
	Message     string
	Error       string
	CreatedAt   time.Time
}

// Repository defines the journal operations. The journal is write-only from
// the bridge's side; entries are read with sqlite3 tooling.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository stores entries in the sms_journal table.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ Repository       = (*SQLiteRepository)(nil)
	_ airlink.Recorder = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository creates a journal backed by db. The schema must
// already be migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Direction == "" || e.Outcome == "" {
		return fmt.Errorf("%w: direction and outcome are required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sms_journal (id, direction, outcome, phone_number, message, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Direction, e.Outcome,
		nullableString(e.PhoneNumber), nullableString(e.Message), nullableString(e.Error),
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// RecordRelay journals a bridge relay outcome.
func (r *SQLiteRepository) RecordRelay(ctx context.Context, rec airlink.RelayRecord) error {
	e := Entry{
		Direction:   string(rec.Direction),
		Outcome:     string(rec.Outcome),
		PhoneNumber: rec.Message.PhoneNumber,
		Message:     rec.Message.Message,
		CreatedAt:   rec.At,
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}
	return r.Record(ctx, &e)
}

// nullableString maps "" to NULL for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// PruneBefore deletes entries created before cutoff and returns the count.
func (r *SQLiteRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sms_journal WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	return n, nil
}
