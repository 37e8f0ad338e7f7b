package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
)

var _ domain.ScenarioStore = (*SQLiteStore)(nil)

// SQLiteStore keeps scenario observations in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration. ":memory:" gives an ephemeral store.
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate dataset db: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger.OrNop(log)}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			scenario  TEXT NOT NULL,
			indicator TEXT NOT NULL,
			sector    TEXT NOT NULL DEFAULT '',
			unit      TEXT NOT NULL DEFAULT '',
			year      INTEGER NOT NULL,
			value     REAL NOT NULL,
			source    TEXT NOT NULL,
			PRIMARY KEY (scenario, indicator, sector, year, source)
		);
		CREATE INDEX IF NOT EXISTS idx_observations_indicator ON observations(indicator);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert upserts observations in a single transaction.
func (s *SQLiteStore) Insert(ctx context.Context, obs []domain.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (scenario, indicator, sector, unit, year, value, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scenario, indicator, sector, year, source) DO UPDATE SET value = excluded.value, unit = excluded.unit`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.Scenario, o.Indicator, o.Sector, o.Unit, o.Year, o.Value, o.Source); err != nil {
			return fmt.Errorf("insert %s/%s/%d: %w", o.Scenario, o.Indicator, o.Year, err)
		}
	}
	return tx.Commit()
}

// Query returns observations matching q, ordered by scenario, indicator and year.
// Scenario, indicator and sector filters are case-insensitive.
func (s *SQLiteStore) Query(ctx context.Context, q domain.ObservationQuery) ([]domain.Observation, error) {
	var (
		where []string
		args  []any
	)
	addIn := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		where = append(where, fmt.Sprintf("lower(%s) IN (%s)", col, placeholders(len(vals))))
		for _, v := range vals {
			args = append(args, strings.ToLower(v))
		}
	}
	addIn("scenario", q.Scenarios)
	addIn("indicator", q.Indicators)
	addIn("sector", q.Sectors)
	if len(q.Years) > 0 {
		where = append(where, fmt.Sprintf("year IN (%s)", placeholders(len(q.Years))))
		for _, y := range q.Years {
			args = append(args, y)
		}
	}

	query := "SELECT scenario, indicator, sector, unit, year, value, source FROM observations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scenario, indicator, sector, year"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.Query", err)
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.Scenario, &o.Indicator, &o.Sector, &o.Unit, &o.Year, &o.Value, &o.Source); err != nil {
			return nil, domain.WrapOp("SQLiteStore.Query", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Scenarios lists distinct scenario names.
func (s *SQLiteStore) Scenarios(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "scenario")
}

// Indicators lists distinct indicator names.
func (s *SQLiteStore) Indicators(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "indicator")
}

// Sources lists the files observations were imported from.
func (s *SQLiteStore) Sources(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "source")
}

// Count returns the number of stored observations.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations").Scan(&n)
	return n, err
}

func (s *SQLiteStore) distinct(ctx context.Context, col string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM observations ORDER BY %s", col, col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
