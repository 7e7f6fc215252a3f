package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/model"
)

func testLogger(t *testing.T) *Logger {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewLogger(NewSQLiteAppender(store.DB()), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRecord(principal, server, status string, ts time.Time) *model.AuditRecord {
	return &model.AuditRecord{
		RequestID:  "req-" + principal + "-" + status,
		Timestamp:  ts,
		Principal:  principal,
		Role:       "developer",
		Server:     server,
		Method:     "create_issue",
		ParamsJSON: `{"title":"x"}`,
		Status:     status,
		DurationMs: 12.5,
	}
}

func TestRecordAndSearch(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	records := []*model.AuditRecord{
		testRecord("alice", "github", "success", base),
		testRecord("alice", "github", "denied", base.Add(time.Minute)),
		testRecord("bob", "jira", "success", base.Add(2*time.Minute)),
	}
	for _, rec := range records {
		if err := l.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if rec.ID == 0 {
			t.Error("record ID not populated after append")
		}
	}

	got, err := l.Search(ctx, Query{Principal: "alice"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("alice records = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Status != "denied" || got[1].Status != "success" {
		t.Errorf("order = [%s %s], want newest first", got[0].Status, got[1].Status)
	}

	got, err = l.Search(ctx, Query{Server: "jira", Status: "success"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Principal != "bob" {
		t.Errorf("jira/success = %+v, want bob's record", got)
	}

	count, err := l.Count(ctx, Query{Principal: "alice"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count = %d, want 2", count)
	}
}

func TestSearchTimeRange(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := testRecord("alice", "github", "success", base.Add(time.Duration(i)*time.Hour))
		if err := l.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := l.Search(ctx, Query{
		Since: base.Add(time.Hour),
		Until: base.Add(3 * time.Hour), // exclusive
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("records in [1h, 3h) = %d, want 2", len(got))
	}
}

func TestRecordSetsTimestamp(t *testing.T) {
	l := testLogger(t)

	rec := testRecord("alice", "github", "success", time.Time{})
	before := time.Now().UTC()
	if err := l.Record(context.Background(), rec); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Timestamp.Before(before.Add(-time.Second)) {
		t.Errorf("timestamp not set: %v", rec.Timestamp)
	}
}

func TestPrune(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rec := testRecord("alice", "github", "success", base.Add(time.Duration(i)*24*time.Hour))
		if err := l.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	deleted, err := l.Prune(ctx, base.Add(2*24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	count, _ := l.Count(ctx, Query{})
	if count != 2 {
		t.Errorf("remaining = %d, want 2", count)
	}
}

// failingAppender always fails its writes.
type failingAppender struct{}

func (failingAppender) Append(context.Context, *model.AuditRecord) error {
	return errors.New("disk full")
}
func (failingAppender) Close() error { return nil }

func TestWriteFailureIsWrapped(t *testing.T) {
	l := NewLogger(failingAppender{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := l.Record(context.Background(), testRecord("alice", "github", "success", time.Now()))
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("got %v, want ErrWriteFailure", err)
	}
}

func TestReadsUnsupportedByWriteOnlyBackend(t *testing.T) {
	l := NewLogger(failingAppender{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := l.Search(context.Background(), Query{}); err == nil {
		t.Error("Search on a write-only backend should fail")
	}
	if _, err := l.Count(context.Background(), Query{}); err == nil {
		t.Error("Count on a write-only backend should fail")
	}
	// Prune is a silent no-op when unsupported.
	if n, err := l.Prune(context.Background(), time.Now()); err != nil || n != 0 {
		t.Errorf("Prune = (%d, %v), want (0, nil)", n, err)
	}
}
