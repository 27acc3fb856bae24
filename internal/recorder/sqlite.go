package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists retrain runs to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so a dashboard can read while a retrain writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS retrain_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			symbol      TEXT,
			version     TEXT,
			stage       TEXT,
			outcome     TEXT,
			error       TEXT,
			row_count   INTEGER,
			added       INTEGER,
			data_from   INTEGER,
			data_to     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_retrain_started ON retrain_runs(started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func (r *SQLiteRecorder) RecordRetrain(run *RetrainRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO retrain_runs
		(started_at, finished_at, symbol, version, stage, outcome, error, row_count, added, data_from, data_to)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Symbol, run.Version,
		run.Stage, run.Outcome, run.Error, run.Rows, run.Added,
		unixOrZero(run.DataFrom), unixOrZero(run.DataTo),
	)
	return err
}

// RecentRetrains returns up to limit runs, newest first.
func (r *SQLiteRecorder) RecentRetrains(limit int) ([]RetrainRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT started_at, finished_at, symbol, version, stage, outcome, error,
		row_count, added, data_from, data_to
		FROM retrain_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RetrainRun
	for rows.Next() {
		var (
			run               RetrainRun
			started, finished int64
			dataFrom, dataTo  int64
		)
		if err := rows.Scan(&started, &finished, &run.Symbol, &run.Version, &run.Stage,
			&run.Outcome, &run.Error, &run.Rows, &run.Added, &dataFrom, &dataTo); err != nil {
			return nil, err
		}
		run.StartedAt = fromUnix(started)
		run.FinishedAt = fromUnix(finished)
		run.DataFrom = fromUnix(dataFrom)
		run.DataTo = fromUnix(dataTo)
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
