package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardenmcp/warden/internal/model"
)

// PostgresAppender writes audit records to a PostgreSQL database for
// deployments where the trail must outlive the gateway host. Warden only
// writes; querying and archival are the operator's concern.
type PostgresAppender struct {
	pool *pgxpool.Pool
}

// NewPostgresAppender connects to PostgreSQL and ensures the audit table
// exists.
func NewPostgresAppender(ctx context.Context, dsn string) (*PostgresAppender, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit postgres: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS audit_records (
		id BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		principal TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		server TEXT NOT NULL,
		method TEXT NOT NULL,
		params_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		approval_id TEXT NOT NULL DEFAULT '',
		duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
		remote_addr TEXT NOT NULL DEFAULT ''
	)`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	if _, err := pool.Exec(ctx,
		"CREATE INDEX IF NOT EXISTS idx_audit_records_ts ON audit_records(timestamp)"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit index: %w", err)
	}

	return &PostgresAppender{pool: pool}, nil
}

// Append inserts one record.
func (a *PostgresAppender) Append(ctx context.Context, rec *model.AuditRecord) error {
	const q = `INSERT INTO audit_records
		(request_id, timestamp, principal, role, server, method, params_json,
		 status, error_kind, approval_id, duration_ms, remote_addr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	row := a.pool.QueryRow(ctx, q,
		rec.RequestID, rec.Timestamp, rec.Principal, rec.Role, rec.Server,
		rec.Method, rec.ParamsJSON, rec.Status, rec.ErrorKind, rec.ApprovalID,
		rec.DurationMs, rec.RemoteAddr)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Prune deletes records older than the cutoff.
func (a *PostgresAppender) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, "DELETE FROM audit_records WHERE timestamp < $1", before)
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the connection pool.
func (a *PostgresAppender) Close() error {
	a.pool.Close()
	return nil
}
