package storer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/iancoleman/strcase"
	_ "github.com/mattn/go-sqlite3"

	"github.com/controlkit/checkout/pkg/types/check"
)

// sqliteStorer archives reports to a local SQLite file. Intended for
// workstations running checkouts without a shared database; the schema
// mirrors the MySQL storer so the analyze tooling reads either.
type sqliteStorer struct {
	db *sql.DB
	commonStorer
}

// NewSQLiteStorer creates a storer backed by a local SQLite file, creating
// the parent directory and schema as needed.
func NewSQLiteStorer(ctx context.Context, path string) (Storer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	s := &sqliteStorer{
		db: db,
	}
	s.commonStorer.init()
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating archive: %w", err)
	}
	return s, nil
}

func (s *sqliteStorer) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			severity INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			cancelled INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS run_configurations (
			run_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			configuration TEXT NOT NULL,
			severity INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			cancelled INTEGER NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY(run_id, configuration)
		);
		CREATE TABLE IF NOT EXISTS run_results (
			run_id TEXT NOT NULL,
			configuration TEXT NOT NULL,
			check_name TEXT NOT NULL,
			identifier TEXT NOT NULL,
			comparison TEXT NOT NULL,
			severity INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			reason TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_run_configurations_ts ON run_configurations(configuration, ts);
	`)
	return err
}

// SaveRunReport saves one run's report.
func (s *sqliteStorer) SaveRunReport(ctx context.Context, report check.RunReport) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, severity, passed, cancelled)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		int(report.Severity),
		report.Passed,
		report.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("storing run: %w", err)
	}

	cfgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_configurations (run_id, ts, configuration, severity, passed, cancelled, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing configuration insert: %w", err)
	}
	defer cfgStmt.Close()
	resStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_results (run_id, configuration, check_name, identifier, comparison, severity, passed, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing result insert: %w", err)
	}
	defer resStmt.Close()

	ts := report.FinishedAt.UTC().Format(time.RFC3339Nano)
	for _, cr := range report.Configurations {
		cfgName := strcase.ToSnake(cr.Name)
		if _, err = cfgStmt.ExecContext(ctx, report.ID, ts, cfgName, int(cr.Severity), cr.Passed, cr.Cancelled, truncate(cr.Reason)); err != nil {
			return fmt.Errorf("storing configuration verdict: %w", err)
		}
		for _, chk := range cr.Checks {
			for _, er := range chk.Evaluations {
				if _, err = resStmt.ExecContext(ctx, report.ID, cfgName, strcase.ToSnake(chk.Name), er.Identifier, er.Comparison, int(er.Severity), er.Passed, truncate(er.Reason)); err != nil {
					return fmt.Errorf("storing elementary result: %w", err)
				}
			}
		}
	}
	return nil
}

// AsyncQueryRetry runs f asynchronously with retries on failure.
func (s *sqliteStorer) AsyncQueryRetry(
	ctx context.Context,
	attemptSchedule []time.Duration,
	f func(ctx context.Context, attempt int) error,
) {
	asyncQueryRetry(ctx, s, attemptSchedule, f)
}

// AnalyzeLastFailures reports the most recent failing configuration verdict
// per configuration between start and end.
func (s *sqliteStorer) AnalyzeLastFailures(
	ctx context.Context,
	start time.Time,
	end time.Time,
	configs []string,
	output func(Failure),
) error {
	cond := sq.And{
		sq.GtOrEq{"ts": start.UTC().Format(time.RFC3339Nano)},
		sq.LtOrEq{"ts": end.UTC().Format(time.RFC3339Nano)},
		sq.GtOrEq{"severity": int(check.Warning)},
		sq.Eq{"cancelled": false},
	}
	if len(configs) > 0 {
		snaked := make([]string, len(configs))
		for i, c := range configs {
			snaked[i] = strcase.ToSnake(c)
		}
		cond = append(cond, sq.Eq{"configuration": snaked})
	}
	rows, err := sq.Select("configuration", "severity", "ts", "reason").
		From("run_configurations").
		Where(cond).
		OrderBy("configuration", "ts ASC").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()
	var last Failure
	for rows.Next() {
		var f Failure
		var severity int
		var ts string
		if err := rows.Scan(&f.Configuration, &severity, &ts, &f.Reason); err != nil {
			return err
		}
		f.Severity = check.Severity(severity)
		if f.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return fmt.Errorf("parsing archived timestamp: %w", err)
		}
		if last.Configuration != "" && f.Configuration != last.Configuration {
			output(last)
		}
		last = f
	}
	if last.Configuration != "" {
		output(last)
	}
	return rows.Err()
}

// Close shuts down the archive and any async savers.
func (s *sqliteStorer) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wgWait()
	return s.db.Close()
}
