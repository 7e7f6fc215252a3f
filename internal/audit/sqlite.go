package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wardenmcp/warden/internal/model"
)

// SQLiteAppender writes audit records into the audit_records table of
// Warden's SQLite database. This is the default audit backend.
type SQLiteAppender struct {
	db *sqlx.DB
}

// NewSQLiteAppender creates an appender over an already-migrated database
// handle (the config store owns the schema).
func NewSQLiteAppender(db *sqlx.DB) *SQLiteAppender {
	return &SQLiteAppender{db: db}
}

// Append inserts one record. Records are never updated or deleted outside
// retention pruning.
func (a *SQLiteAppender) Append(ctx context.Context, rec *model.AuditRecord) error {
	const q = `INSERT INTO audit_records
		(request_id, timestamp, principal, role, server, method, params_json,
		 status, error_kind, approval_id, duration_ms, remote_addr)
		VALUES
		(:request_id, :timestamp, :principal, :role, :server, :method, :params_json,
		 :status, :error_kind, :approval_id, :duration_ms, :remote_addr)`

	result, err := a.db.NamedExecContext(ctx, q, rec)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get audit record id: %w", err)
	}
	rec.ID = id
	return nil
}

// Search returns records matching the query, newest first.
func (a *SQLiteAppender) Search(ctx context.Context, q Query) ([]model.AuditRecord, error) {
	where, args := buildWhere(q)

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	sql := "SELECT * FROM audit_records" + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	var recs []model.AuditRecord
	if err := a.db.SelectContext(ctx, &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("search audit records: %w", err)
	}
	return recs, nil
}

// Count returns the number of records matching the query.
func (a *SQLiteAppender) Count(ctx context.Context, q Query) (int64, error) {
	where, args := buildWhere(q)

	var count int64
	if err := a.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM audit_records"+where, args...); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return count, nil
}

// Prune deletes records older than the cutoff and returns how many were
// removed. Only retention pruning may delete audit rows.
func (a *SQLiteAppender) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, "DELETE FROM audit_records WHERE timestamp < ?", before)
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	return result.RowsAffected()
}

// Close is a no-op; the config store owns the database handle.
func (a *SQLiteAppender) Close() error {
	return nil
}

func buildWhere(q Query) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if q.Principal != "" {
		conds = append(conds, "principal = ?")
		args = append(args, q.Principal)
	}
	if q.Server != "" {
		conds = append(conds, "server = ?")
		args = append(args, q.Server)
	}
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, q.Status)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, q.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
