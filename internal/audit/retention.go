package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention prunes audit records past the configured retention window on a
// cron schedule.
type Retention struct {
	logger    *Logger
	slog      *slog.Logger
	retention time.Duration
	cron      *cron.Cron
}

// NewRetention builds a retention job. retentionDays <= 0 disables pruning
// entirely (records are kept forever).
func NewRetention(logger *Logger, retentionDays int, schedule string, slogger *slog.Logger) (*Retention, error) {
	r := &Retention{
		logger:    logger,
		slog:      slogger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
	if retentionDays <= 0 {
		return r, nil
	}
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("audit prune schedule %q: %w", schedule, err)
	}
	r.cron = c
	return r, nil
}

// Start begins the schedule. No-op when pruning is disabled.
func (r *Retention) Start() {
	if r.cron != nil {
		r.cron.Start()
	}
}

// Stop halts the schedule and waits for a running prune to finish.
func (r *Retention) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-r.retention)
	n, err := r.logger.Prune(ctx, cutoff)
	if err != nil {
		r.slog.Error("audit retention prune failed", "error", err)
		return
	}
	if n > 0 {
		r.slog.Info("audit retention prune", "removed", n, "cutoff", cutoff)
	}
}
