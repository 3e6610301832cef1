package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"FeedHighlights/internal/domain"
	"FeedHighlights/internal/ports"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const runsTable = "highlight_runs"

var runColumns = []string{
	"id", "started_at", "finished_at", "status", "source_feed", "target_feed",
	"submission_id", "title", "candidates", "selected", "reconcile_state", "warnings",
}

// RunRepository persists run history through squirrel-built statements.
type RunRepository struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ ports.RunRepository = (*RunRepository)(nil)

// DialectFor infers the dialect from a DSN; postgres URLs select lib/pq, anything else is a sqlite path.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the DSN and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*RunRepository, error) {
	dialect := DialectFor(dsn)
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// modernc connections do not share an in-memory database.
		db.SetMaxOpenConns(1)
	}

	repo := NewRunRepository(db, dialect)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRunRepository wires a sql.DB implementation.
func NewRunRepository(db *sql.DB, dialect Dialect) *RunRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		placeholder = sq.Dollar
	}
	return &RunRepository{
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Migrate creates the runs table when missing.
func (r *RunRepository) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
		id              TEXT PRIMARY KEY,
		started_at      BIGINT NOT NULL,
		finished_at     BIGINT NOT NULL,
		status          TEXT NOT NULL,
		source_feed     TEXT NOT NULL,
		target_feed     TEXT NOT NULL,
		submission_id   TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		candidates      INTEGER NOT NULL DEFAULT 0,
		selected        INTEGER NOT NULL DEFAULT 0,
		reconcile_state TEXT NOT NULL DEFAULT '',
		warnings        TEXT NOT NULL DEFAULT '[]'
	)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", runsTable, err)
	}
	return nil
}

// SaveRun upserts the run snapshot.
func (r *RunRepository) SaveRun(ctx context.Context, run domain.RunRecord) error {
	if r.db == nil {
		return nil
	}

	warnings := run.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	query, args, err := r.builder.
		Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.ID,
			run.StartedAt.UTC().UnixMilli(),
			run.FinishedAt.UTC().UnixMilli(),
			string(run.Status),
			run.SourceFeed,
			run.TargetFeed,
			run.SubmissionID,
			run.Title,
			run.Candidates,
			run.Selected,
			run.ReconcileState,
			string(encoded),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE
              SET finished_at = EXCLUDED.finished_at,
                  status = EXCLUDED.status,
                  submission_id = EXCLUDED.submission_id,
                  reconcile_state = EXCLUDED.reconcile_state,
                  warnings = EXCLUDED.warnings`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}
	return nil
}

// LatestRun returns the most recently started run or ports.ErrNotFound.
func (r *RunRepository) LatestRun(ctx context.Context) (domain.RunRecord, error) {
	if r.db == nil {
		return domain.RunRecord{}, ports.ErrNotFound
	}

	query, args, err := r.builder.
		Select(runColumns...).
		From(runsTable).
		OrderBy("started_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("build select: %w", err)
	}

	var (
		run               domain.RunRecord
		started, finished int64
		status, warnings  string
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&run.ID,
		&started,
		&finished,
		&status,
		&run.SourceFeed,
		&run.TargetFeed,
		&run.SubmissionID,
		&run.Title,
		&run.Candidates,
		&run.Selected,
		&run.ReconcileState,
		&warnings,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("query latest run: %w", err)
	}

	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode warnings: %w", err)
	}
	return run, nil
}

// Close releases the underlying connection pool.
func (r *RunRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
