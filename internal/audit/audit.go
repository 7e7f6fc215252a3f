// Package audit persists the immutable decision trail. Every gateway call
// produces exactly one record; the append sits on the critical path and the
// gateway fails closed when a write cannot be guaranteed.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wardenmcp/warden/internal/model"
)

// ErrWriteFailure wraps any appender failure. Callers must treat it as fatal
// for the request in flight.
var ErrWriteFailure = errors.New("audit write failure")

// Appender is the narrow interface the audit logger needs from a storage
// backend: append durably or fail.
type Appender interface {
	Append(ctx context.Context, rec *model.AuditRecord) error
	Close() error
}

// Query selects audit records for the admin API and CLI.
type Query struct {
	Principal string
	Server    string
	Status    string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Reader is implemented by appenders that also support querying. The
// PostgreSQL appender is write-only from Warden's side; operators query it
// directly.
type Reader interface {
	Search(ctx context.Context, q Query) ([]model.AuditRecord, error)
	Count(ctx context.Context, q Query) (int64, error)
}

// Pruner is implemented by appenders that support retention pruning.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Logger appends audit records through a backend appender.
type Logger struct {
	appender Appender
	logger   *slog.Logger
}

// NewLogger creates an audit logger over the given appender.
func NewLogger(appender Appender, logger *slog.Logger) *Logger {
	return &Logger{appender: appender, logger: logger}
}

// Record appends one audit record. The record's timestamp is set here if
// unset. Returns ErrWriteFailure (wrapping the cause) on any storage error so
// the gateway can fail the request closed.
func (l *Logger) Record(ctx context.Context, rec *model.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := l.appender.Append(ctx, rec); err != nil {
		l.logger.Error("audit append failed",
			"request_id", rec.RequestID,
			"status", rec.Status,
			"error", err,
		)
		return errors.Join(ErrWriteFailure, err)
	}
	return nil
}

// Search proxies to the appender when it supports reading.
func (l *Logger) Search(ctx context.Context, q Query) ([]model.AuditRecord, error) {
	r, ok := l.appender.(Reader)
	if !ok {
		return nil, errors.New("audit backend does not support queries")
	}
	return r.Search(ctx, q)
}

// Count proxies to the appender when it supports reading.
func (l *Logger) Count(ctx context.Context, q Query) (int64, error) {
	r, ok := l.appender.(Reader)
	if !ok {
		return 0, errors.New("audit backend does not support queries")
	}
	return r.Count(ctx, q)
}

// Prune removes records older than the cutoff when the backend supports it.
func (l *Logger) Prune(ctx context.Context, before time.Time) (int64, error) {
	p, ok := l.appender.(Pruner)
	if !ok {
		return 0, nil
	}
	return p.Prune(ctx, before)
}

// Close closes the underlying appender.
func (l *Logger) Close() error {
	return l.appender.Close()
}
