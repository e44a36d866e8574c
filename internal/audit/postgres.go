package audit

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id                UUID PRIMARY KEY,
	action            TEXT NOT NULL,
	source            TEXT NOT NULL,
	fingerprint       TEXT,
	records           INTEGER NOT NULL DEFAULT 0,
	duplicates        INTEGER NOT NULL DEFAULT 0,
	coercion_failures INTEGER NOT NULL DEFAULT 0,
	incomplete_rows   INTEGER NOT NULL DEFAULT 0,
	error             TEXT,
	ip_address        INET,
	user_agent        TEXT,
	duration_ms       BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ingest_runs_created_at_idx ON ingest_runs (created_at DESC);
`

const insertRunSQL = `
INSERT INTO ingest_runs (
	id, action, source, fingerprint, records, duplicates, coercion_failures,
	incomplete_rows, error, ip_address, user_agent, duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const recentRunsSQL = `
SELECT id, action, source, fingerprint, records, duplicates, coercion_failures,
	incomplete_rows, error, ip_address, user_agent, duration_ms, created_at
FROM ingest_runs
ORDER BY created_at DESC
LIMIT $1`

// PGRecorder stores runs in PostgreSQL.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder creates a recorder on an open pool.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// EnsureSchema creates the ingest_runs table if it does not exist.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create ingest_runs: %w", err)
	}
	return nil
}

// Record inserts one run.
func (r *PGRecorder) Record(ctx context.Context, run Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", run.ID, err)
	}

	_, err = r.pool.Exec(ctx, insertRunSQL,
		pgtype.UUID{Bytes: id, Valid: true},
		string(run.Action),
		run.Source,
		toPgText(run.Fingerprint),
		run.Records,
		run.Duplicates,
		run.CoercionFailures,
		run.IncompleteRows,
		toPgText(run.Error),
		parseIP(run.IPAddress),
		toPgText(run.UserAgent),
		run.DurationMS,
		pgtype.Timestamptz{Time: run.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (r *PGRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := r.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("scan ingest runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.CollectableRow) (Run, error) {
	var (
		id          pgtype.UUID
		action      string
		run         Run
		fingerprint pgtype.Text
		errText     pgtype.Text
		ipAddress   *netip.Addr
		userAgent   pgtype.Text
		createdAt   pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &action, &run.Source, &fingerprint, &run.Records, &run.Duplicates,
		&run.CoercionFailures, &run.IncompleteRows, &errText, &ipAddress,
		&userAgent, &run.DurationMS, &createdAt,
	)
	if err != nil {
		return Run{}, err
	}

	if id.Valid {
		run.ID = uuid.UUID(id.Bytes).String()
	}
	run.Action = Action(action)
	run.Fingerprint = fingerprint.String
	run.Error = errText.String
	run.UserAgent = userAgent.String
	if ipAddress != nil {
		run.IPAddress = ipAddress.String()
	}
	run.CreatedAt = createdAt.Time
	return run, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
