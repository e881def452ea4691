package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunExported is returned when rows for the run id already exist.
var ErrRunExported = errors.New("run already exported")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS aum_ranked (
    run_id       UUID NOT NULL,
    rank         INTEGER NOT NULL,
    company_name TEXT NOT NULL,
    value        DOUBLE PRECISION NOT NULL,
    form_type    TEXT NOT NULL,
    cik          TEXT NOT NULL,
    date_filed   TEXT NOT NULL,
    file_name    TEXT NOT NULL,
    exported_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, rank)
);
CREATE TABLE IF NOT EXISTS aum_failed (
    run_id       UUID NOT NULL,
    line         INTEGER NOT NULL,
    company_name TEXT NOT NULL,
    form_type    TEXT NOT NULL,
    cik          TEXT NOT NULL,
    date_filed   TEXT NOT NULL,
    file_name    TEXT NOT NULL,
    kind         TEXT NOT NULL,
    error        TEXT NOT NULL,
    exported_at  TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the export tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create export tables: %w", err)
	}
	return nil
}

// StoreReport copies both tables of one run into Postgres in a single
// transaction.
func StoreReport(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID, rep Report) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"aum_ranked"},
		[]string{"run_id", "rank", "company_name", "value", "form_type", "cik", "date_filed", "file_name", "exported_at"},
		pgx.CopyFromSlice(len(rep.Ranked), func(i int) ([]any, error) {
			r := rep.Ranked[i]
			return []any{runID, r.Rank, r.Record.CompanyName, r.Value, r.Record.FormType, r.Record.CIK, r.Record.DateFiled, r.Record.FileName, now}, nil
		}),
	); err != nil {
		return fmt.Errorf("copy ranked rows: %w", classifyPgError(err))
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"aum_failed"},
		[]string{"run_id", "line", "company_name", "form_type", "cik", "date_filed", "file_name", "kind", "error", "exported_at"},
		pgx.CopyFromSlice(len(rep.Failures), func(i int) ([]any, error) {
			f := rep.Failures[i]
			return []any{runID, f.Line, f.Record.CompanyName, f.Record.FormType, f.Record.CIK, f.Record.DateFiled, f.Record.FileName, f.Kind.String(), f.Reason, now}, nil
		}),
	); err != nil {
		return fmt.Errorf("copy failed rows: %w", classifyPgError(err))
	}

	return tx.Commit(ctx)
}

func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrRunExported
	}
	return err
}

// ExportToPostgres connects, ensures the schema and stores rep.
func ExportToPostgres(ctx context.Context, databaseURL string, runID uuid.UUID, rep Report) error {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		return err
	}
	return StoreReport(ctx, pool, runID, rep)
}
