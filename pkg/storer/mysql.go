package storer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/iancoleman/strcase"
	"github.com/xo/dburl"

	"github.com/controlkit/checkout/pkg/types/check"
)

const (
	defaultConnectTimeout = "10s"
	defaultReadTimeout    = "10s"
	defaultWriteTimeout   = "10s"

	maxReasonLen = 512
)

// mysqlConfigID ensures any certificates registered against the driver are
// given a unique name.
var mysqlConfigID = 1

type mysqlStorer struct {
	db *sql.DB
	commonStorer
}

// NewMySQLStorer creates a new storer driver for a MySQL backend.
func NewMySQLStorer(ctx context.Context, uri, cert string, createTables bool) (Storer, error) {
	u, err := dburl.Parse(uri)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	tlsMode := "true"
	if cert != "" {
		tlsMode, err = RegisterMySQLCertificate(cert)
		if err != nil {
			return nil, fmt.Errorf("loading TLS cert: %w", err)
		}
	}
	if cert != "" || strings.EqualFold(q.Get("ssl-mode"), "required") {
		q.Del("ssl-mode")
		q.Add("tls", tlsMode)
	}
	q.Add("parseTime", "true")
	if !q.Has("timeout") {
		q.Add("timeout", defaultConnectTimeout)
	}
	if !q.Has("writeTimeout") {
		q.Add("writeTimeout", defaultWriteTimeout)
	}
	if !q.Has("readTimeout") {
		q.Add("readTimeout", defaultReadTimeout)
	}
	u.RawQuery = q.Encode()
	connStr, _, err := dburl.GenMysql(u)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, err
	}
	// Open() only inits the config & pool, do a Ping() to establish/validate a connection.
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	m := &mysqlStorer{
		db: db,
	}
	if err := m.init(ctx, createTables); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// SaveRunReport saves one run's report: the run row, one row per
// configuration verdict, and one row per elementary evaluation.
func (m *mysqlStorer) SaveRunReport(ctx context.Context, report check.RunReport) (err error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelDefault,
	})
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

	_, err = sq.Insert("runs").
		Columns("id", "started_at", "finished_at", "severity", "passed", "cancelled").
		Values(report.ID, report.StartedAt, report.FinishedAt, int(report.Severity), report.Passed, report.Cancelled).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("storing run: %w", err)
	}

	if len(report.Configurations) > 0 {
		q := sq.Insert("run_configurations").
			Columns("run_id", "ts", "configuration", "severity", "passed", "cancelled", "reason")
		for _, cr := range report.Configurations {
			q = q.Values(
				report.ID,
				report.FinishedAt,
				strcase.ToSnake(cr.Name),
				int(cr.Severity),
				cr.Passed,
				cr.Cancelled,
				truncate(cr.Reason),
			)
		}
		if _, err = q.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("storing configuration verdicts: %w", err)
		}
	}

	q := sq.Insert("run_results").
		Columns("run_id", "configuration", "check_name", "identifier", "comparison", "severity", "passed", "reason")
	var rows int
	for _, cr := range report.Configurations {
		for _, chk := range cr.Checks {
			for _, er := range chk.Evaluations {
				q = q.Values(
					report.ID,
					strcase.ToSnake(cr.Name),
					strcase.ToSnake(chk.Name),
					er.Identifier,
					er.Comparison,
					int(er.Severity),
					er.Passed,
					truncate(er.Reason),
				)
				rows++
			}
		}
	}
	if rows > 0 {
		if _, err = q.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("storing elementary results: %w", err)
		}
	}

	return nil
}

// AsyncQueryRetry runs f asynchronously with retries on failure.
func (m *mysqlStorer) AsyncQueryRetry(
	ctx context.Context,
	attemptSchedule []time.Duration,
	f func(ctx context.Context, attempt int) error,
) {
	asyncQueryRetry(ctx, m, attemptSchedule, f)
}

// AnalyzeLastFailures reports the most recent failing configuration verdict
// per configuration between start and end.
func (m *mysqlStorer) AnalyzeLastFailures(
	ctx context.Context,
	start time.Time,
	end time.Time,
	configs []string,
	output func(Failure),
) error {
	cond := sq.And{
		sq.GtOrEq{"ts": start},
		sq.LtOrEq{"ts": end},
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
	q := sq.Select("configuration", "severity", "ts", "reason").
		From("run_configurations").
		Where(cond).
		OrderBy("configuration", "ts ASC")
	rows, err := q.RunWith(m.db).QueryContext(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()
	var last Failure
	for rows.Next() {
		var f Failure
		var severity int
		if err := rows.Scan(&f.Configuration, &severity, &f.TS, &f.Reason); err != nil {
			return err
		}
		f.Severity = check.Severity(severity)
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

// Close shuts down the database handle and any async savers.
func (m *mysqlStorer) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wgWait()
	return m.db.Close()
}

// RegisterMySQLCertificate registers a CA certificate (PEM content or a
// path to one) with the driver and returns the tls config name to use.
func RegisterMySQLCertificate(cert string) (string, error) {
	rootCertPool := x509.NewCertPool()
	pem := []byte(cert)
	if strings.HasPrefix(cert, "/") {
		var err error
		pem, err = os.ReadFile(cert)
		if err != nil {
			return "", err
		}
	}
	if ok := rootCertPool.AppendCertsFromPEM(pem); !ok {
		return "", errors.New("appending certificate to pool")
	}

	mysqlConfigName := fmt.Sprintf("custom%d", mysqlConfigID)
	mysqlConfigID++
	mysql.RegisterTLSConfig(mysqlConfigName, &tls.Config{
		RootCAs: rootCertPool,
	})
	return mysqlConfigName, nil
}

func (m *mysqlStorer) init(ctx context.Context, createTables bool) error {
	m.commonStorer.init()
	if !createTables {
		return nil
	}

	exists, err := m.tableExists(ctx, "runs")
	if err != nil {
		return err
	}
	if !exists {
		// We keep the "IF NOT EXISTS" because there may be other instances creating these tables.
		_, err := m.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS runs (
				id CHAR(36) NOT NULL,
				started_at TIMESTAMP(6) NOT NULL,
				finished_at TIMESTAMP(6) NOT NULL,
				severity TINYINT NOT NULL,
				passed BOOL NOT NULL,
				cancelled BOOL NOT NULL,
				KEY started_at (started_at),
				KEY severity (severity),
				PRIMARY KEY(id)
			)
		`)
		if err != nil {
			return err
		}
	}

	exists, err = m.tableExists(ctx, "run_configurations")
	if err != nil {
		return err
	}
	if !exists {
		_, err := m.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS run_configurations (
				run_id CHAR(36) NOT NULL,
				ts TIMESTAMP(6) NOT NULL,
				configuration VARCHAR(64) NOT NULL,
				severity TINYINT NOT NULL,
				passed BOOL NOT NULL,
				cancelled BOOL NOT NULL,
				reason VARCHAR(512) NOT NULL,
				KEY configuration_ts (configuration, ts),
				PRIMARY KEY(run_id, configuration)
			)
		`)
		if err != nil {
			return err
		}
	}

	exists, err = m.tableExists(ctx, "run_results")
	if err != nil {
		return err
	}
	if !exists {
		_, err = m.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS run_results (
				run_id CHAR(36) NOT NULL,
				configuration VARCHAR(64) NOT NULL,
				check_name VARCHAR(64) NOT NULL,
				identifier VARCHAR(128) NOT NULL,
				comparison VARCHAR(64) NOT NULL,
				severity TINYINT NOT NULL,
				passed BOOL NOT NULL,
				reason VARCHAR(512) NOT NULL,
				KEY configuration (configuration),
				KEY identifier (identifier),
				PRIMARY KEY(run_id, configuration, check_name, identifier, comparison)
			)
		`)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *mysqlStorer) tableExists(ctx context.Context, table string) (bool, error) {
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM `+table).Err()
	if mErr, ok := err.(*mysql.MySQLError); ok {
		if mErr.Number == 1146 {
			return false, nil
		}
	}
	return true, nil
}

func truncate(reason string) string {
	if len(reason) > maxReasonLen { // Truncate to fit column.
		return reason[:maxReasonLen]
	}
	return reason
}
