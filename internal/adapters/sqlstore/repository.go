// Package sqlstore keeps pipeline run reports in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"klineforge/internal/domain"
	"klineforge/internal/ports"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Repository implements the ports.RunRepository interface using sqlx.
type Repository struct {
	db     *sqlx.DB
	logger ports.Logger
}

// Config holds configuration for the run repository.
type Config struct {
	Driver string // sqlite3 (default) or postgres
	DSN    string // file path for sqlite3, connection string for postgres
	Logger ports.Logger
}

// NewRepository opens the database and creates the schema if needed.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for run repository")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		path := cfg.DSN
		if path == "" {
			path = "./data/klineforge.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(path), err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres DSN is required: %w", domain.ErrConfiguration)
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q (use: %s, %s): %w", driver, DriverSQLite, DriverPostgres, domain.ErrConfiguration)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w: %w", driver, ports.ErrDBConnection, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w: %w", driver, ports.ErrDBConnection, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	cfg.Logger.Info(ctx, "Run repository ready", map[string]interface{}{"driver": driver})
	return repo, nil
}

// initializeSchema uses DDL that both SQLite and PostgreSQL accept.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		kline_interval TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		rows_in INTEGER NOT NULL,
		coerced_values INTEGER NOT NULL,
		duplicates_dropped INTEGER NOT NULL,
		high_low_swapped INTEGER NOT NULL,
		highs_clamped INTEGER NOT NULL,
		lows_clamped INTEGER NOT NULL,
		nan_dropped INTEGER NOT NULL,
		rows_after_nan INTEGER NOT NULL,
		non_positive_price_dropped INTEGER NOT NULL,
		rows_after_price INTEGER NOT NULL,
		negative_volume_dropped INTEGER NOT NULL,
		rows_out INTEGER NOT NULL,
		feature_columns TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_runs_symbol_started ON pipeline_runs (symbol, started_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// runRow is the flat database shape of a RunReport.
type runRow struct {
	ID             string    `db:"id"`
	Symbol         string    `db:"symbol"`
	Interval       string    `db:"kline_interval"`
	StartedAt      time.Time `db:"started_at"`
	FinishedAt     time.Time `db:"finished_at"`
	FeatureColumns string    `db:"feature_columns"`
	domain.CleanReport
}

const selectRun = `SELECT id, symbol, kline_interval, started_at, finished_at,
	rows_in, coerced_values, duplicates_dropped, high_low_swapped, highs_clamped, lows_clamped,
	nan_dropped, rows_after_nan, non_positive_price_dropped, rows_after_price, negative_volume_dropped,
	rows_out, feature_columns
	FROM pipeline_runs`

func toRow(rep *domain.RunReport) (runRow, error) {
	cols := rep.Columns
	if cols == nil {
		cols = []string{}
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return runRow{}, err
	}
	return runRow{
		ID:             rep.ID,
		Symbol:         rep.Symbol,
		Interval:       rep.Interval,
		StartedAt:      rep.StartedAt.UTC(),
		FinishedAt:     rep.FinishedAt.UTC(),
		FeatureColumns: string(data),
		CleanReport:    rep.Clean,
	}, nil
}

func (row runRow) report() (*domain.RunReport, error) {
	var cols []string
	if err := json.Unmarshal([]byte(row.FeatureColumns), &cols); err != nil {
		return nil, fmt.Errorf("decode feature columns of run %s: %w", row.ID, err)
	}
	return &domain.RunReport{
		ID:         row.ID,
		Symbol:     row.Symbol,
		Interval:   row.Interval,
		StartedAt:  row.StartedAt.UTC(),
		FinishedAt: row.FinishedAt.UTC(),
		Clean:      row.CleanReport,
		Columns:    cols,
	}, nil
}

// SaveRun inserts a run report.
func (r *Repository) SaveRun(ctx context.Context, rep *domain.RunReport) error {
	row, err := toRow(rep)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rep.ID, err)
	}

	const query = `INSERT INTO pipeline_runs (
		id, symbol, kline_interval, started_at, finished_at,
		rows_in, coerced_values, duplicates_dropped, high_low_swapped, highs_clamped, lows_clamped,
		nan_dropped, rows_after_nan, non_positive_price_dropped, rows_after_price, negative_volume_dropped,
		rows_out, feature_columns
	) VALUES (
		:id, :symbol, :kline_interval, :started_at, :finished_at,
		:rows_in, :coerced_values, :duplicates_dropped, :high_low_swapped, :highs_clamped, :lows_clamped,
		:nan_dropped, :rows_after_nan, :non_positive_price_dropped, :rows_after_price, :negative_volume_dropped,
		:rows_out, :feature_columns
	)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", rep.ID, ports.ErrDuplicateEntry)
		}
		r.logger.Error(ctx, err, "Failed to save run", map[string]interface{}{"run_id": rep.ID, "symbol": rep.Symbol})
		return fmt.Errorf("save run %s: %w: %w", rep.ID, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Run saved", map[string]interface{}{"run_id": rep.ID, "symbol": rep.Symbol})
	return nil
}

// FindRun retrieves a run by ID. Returns nil, nil if not found.
func (r *Repository) FindRun(ctx context.Context, id string) (*domain.RunReport, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectRun+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find run %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return row.report()
}

// ListRuns retrieves the most recent runs for a symbol, newest first.
func (r *Repository) ListRuns(ctx context.Context, symbol string, limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d: %w", limit, ports.ErrInvalidRequest)
	}
	var rows []runRow
	query := r.db.Rebind(selectRun + ` WHERE symbol = ? ORDER BY started_at DESC, id DESC LIMIT ?`)
	if err := r.db.SelectContext(ctx, &rows, query, symbol, limit); err != nil {
		return nil, fmt.Errorf("list runs for %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}

	out := make([]*domain.RunReport, 0, len(rows))
	for _, row := range rows {
		rep, err := row.report()
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
