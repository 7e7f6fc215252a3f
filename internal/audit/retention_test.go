package audit

import (
	"io"
	"log/slog"
	"testing"
)

func TestNewRetention(t *testing.T) {
	log := testLogger(t)
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := NewRetention(log, 90, "0 3 * * *", slogger)
	if err != nil {
		t.Fatalf("NewRetention: %v", err)
	}
	r.Start()
	r.Stop()
}

func TestNewRetentionDefaultSchedule(t *testing.T) {
	log := testLogger(t)
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := NewRetention(log, 30, "", slogger)
	if err != nil {
		t.Fatalf("NewRetention with empty schedule: %v", err)
	}
	r.Start()
	r.Stop()
}

func TestNewRetentionBadSchedule(t *testing.T) {
	log := testLogger(t)
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := NewRetention(log, 90, "not a cron expr", slogger); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestNewRetentionDisabled(t *testing.T) {
	log := testLogger(t)
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r, err := NewRetention(log, 0, "0 3 * * *", slogger)
	if err != nil {
		t.Fatalf("NewRetention disabled: %v", err)
	}
	// Start and Stop are no-ops when pruning is disabled.
	r.Start()
	r.Stop()
}
