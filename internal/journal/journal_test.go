package journal

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/airlink2mqtt/internal/bridges/airlink"
	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/airlink2mqtt/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

// readAll returns every stored entry, most recent first.
func readAll(t *testing.T, repo *SQLiteRepository) []Entry {
	t.Helper()

	rows, err := repo.db.QueryContext(context.Background(),
		`SELECT id, direction, outcome, phone_number, message, error, created_at
		 FROM sms_journal ORDER BY created_at DESC, id`)
	if err != nil {
		t.Fatalf("query journal: %v", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                       Entry
			phone, message, errText sql.NullString
			createdAt               string
		)
		if err := rows.Scan(&e.ID, &e.Direction, &e.Outcome, &phone, &message, &errText, &createdAt); err != nil {
			t.Fatalf("scan journal row: %v", err)
		}
		e.PhoneNumber, e.Message, e.Error = phone.String, message.String, errText.String
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			t.Fatalf("parse created_at %q: %v", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate journal: %v", err)
	}
	return entries
}

func TestRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	entries := []*Entry{
		{Direction: "inbound", Outcome: "relayed", PhoneNumber: "+15550001", Message: "first", CreatedAt: base},
		{Direction: "outbound", Outcome: "failed", PhoneNumber: "+15550002", Message: "second", Error: "modem: not connected", CreatedAt: base.Add(time.Minute)},
		{Direction: "outbound", Outcome: "discarded", Error: "invalid payload", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Record() should assign an ID")
		}
	}

	got := readAll(t, repo)
	if len(got) != 3 {
		t.Fatalf("stored %d entries, want 3", len(got))
	}
	if got[0].Outcome != "discarded" || got[2].Message != "first" {
		t.Errorf("entries = %+v", got)
	}
	if got[0].PhoneNumber != "" || got[0].Message != "" {
		t.Errorf("NULL columns should read back empty: %+v", got[0])
	}
	if got[1].Error != "modem: not connected" {
		t.Errorf("Error = %q", got[1].Error)
	}
	if !got[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got[2].CreatedAt, base)
	}
}

func TestRecord_Invalid(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Record(context.Background(), &Entry{Direction: "inbound"})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Record() error = %v, want ErrInvalidEntry", err)
	}

	// The schema rejects unknown values.
	err = repo.Record(context.Background(), &Entry{Direction: "sideways", Outcome: "relayed"})
	if err == nil {
		t.Error("Record() expected CHECK constraint error")
	}
}

func TestRecordRelay(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	err := repo.RecordRelay(ctx, airlink.RelayRecord{
		Direction: airlink.DirectionOutbound,
		Outcome:   airlink.OutcomeFailed,
		Message:   airlink.Message{PhoneNumber: "+447700900123", Message: "hi"},
		Err:       airlink.ErrNotConnected,
		At:        at,
	})
	if err != nil {
		t.Fatalf("RecordRelay() error = %v", err)
	}

	got := readAll(t, repo)
	if len(got) != 1 {
		t.Fatalf("stored %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Direction != "outbound" || e.Outcome != "failed" || e.PhoneNumber != "+447700900123" {
		t.Errorf("entry = %+v", e)
	}
	if e.Error != airlink.ErrNotConnected.Error() {
		t.Errorf("Error = %q", e.Error)
	}
	if !e.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, at)
	}
}

func TestPruneBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
		if err := repo.Record(ctx, &Entry{Direction: "inbound", Outcome: "relayed", CreatedAt: now.Add(-age)}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	n, err := repo.PruneBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("PruneBefore() deleted %d, want 2", n)
	}

	if left := readAll(t, repo); len(left) != 1 {
		t.Errorf("%d entries left, want 1", len(left))
	}
}

// pruneCounter is a Repository that counts PruneBefore calls.
type pruneCounter struct {
	Repository
	mu    sync.Mutex
	calls int
}

func (p *pruneCounter) PruneBefore(context.Context, time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 0, nil
}

func (p *pruneCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestRunRetention(t *testing.T) {
	repo := &pruneCounter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunRetention(ctx, repo, time.Hour, 10*time.Millisecond, nopLogger{})
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention did not return after cancel")
	}
	if repo.count() < 2 {
		t.Errorf("PruneBefore called %d times, want at least 2", repo.count())
	}
}

func TestRunRetention_Disabled(t *testing.T) {
	repo := &pruneCounter{}
	RunRetention(context.Background(), repo, 0, time.Hour, nopLogger{})

	if repo.count() != 0 {
		t.Errorf("PruneBefore called %d times, want 0", repo.count())
	}
}
