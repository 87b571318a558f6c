// Package trace persists pipeline runs and their progress events in SQLite
// so a deliberation can be inspected, exported or replayed later.
package trace

// #region imports
import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/bibo/internal/logging"
	"github.com/danielpatrickdp/bibo/internal/orchestrator"
	"github.com/danielpatrickdp/bibo/internal/progress"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	prompt        TEXT NOT NULL,
	mode          TEXT NOT NULL,
	history_json  TEXT,
	flow          TEXT,
	status        TEXT NOT NULL,
	answer        TEXT,
	error         TEXT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS run_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	label         TEXT NOT NULL,
	event_json    TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// #endregion schema

// #region types

// Status is the lifecycle state of a stored run.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID         string
	Prompt     string
	Mode       string
	History    []orchestrator.Message
	Flow       string
	Status     Status
	Answer     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Events     int
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// #endregion

// #region store-struct

// Store manages run traces in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; concurrent recorders queue on the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, logger: logging.OrNop(logger)}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion constructor

// #region begin

// Begin inserts a running row and returns a recorder for its events.
func (s *Store) Begin(prompt string, mode orchestrator.Mode, history []orchestrator.Message) (*Recorder, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var historyJSON any
	if len(history) > 0 {
		b, err := json.Marshal(history)
		if err != nil {
			return nil, fmt.Errorf("marshal history: %w", err)
		}
		historyJSON = string(b)
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, prompt, mode, history_json, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, prompt, string(mode), historyJSON, string(StatusRunning), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Recorder{store: s, runID: id, mode: mode}, nil
}

// #endregion begin

// #region queries

// ListRuns returns the most recent runs first. limit <= 0 means 20.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT r.run_id, r.prompt, r.mode, r.history_json, r.flow, r.status, r.answer, r.error,
		        r.started_at, r.finished_at,
		        (SELECT COUNT(*) FROM run_events e WHERE e.run_id = r.run_id)
		 FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun reads one run.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT r.run_id, r.prompt, r.mode, r.history_json, r.flow, r.status, r.answer, r.error,
		        r.started_at, r.finished_at,
		        (SELECT COUNT(*) FROM run_events e WHERE e.run_id = r.run_id)
		 FROM runs r WHERE r.run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Events returns a run's progress events in emission order.
func (s *Store) Events(id string) ([]progress.Event, error) {
	if _, err := s.GetRun(id); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT event_json FROM run_events WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []progress.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev progress.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Process rebuilds the thinking process of a stored run.
func (s *Store) Process(id string) (progress.ThinkingProcess, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return progress.ThinkingProcess{}, err
	}
	events, err := s.Events(id)
	if err != nil {
		return progress.ThinkingProcess{}, err
	}
	acc := progress.NewAccumulator()
	for _, ev := range events {
		acc.Apply(ev)
	}
	acc.SetFinal(run.Answer)
	return acc.Process(), nil
}

// #endregion queries

// #region helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                                     Run
		history, flow, answer, errMsg, finish sql.NullString
		status, started                       string
	)
	err := sc.Scan(&r.ID, &r.Prompt, &r.Mode, &history, &flow, &status, &answer, &errMsg, &started, &finish, &r.Events)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Flow = flow.String
	r.Status = Status(status)
	r.Answer = answer.String
	r.Error = errMsg.String
	r.StartedAt, _ = time.Parse(timeLayout, started)
	if finish.Valid {
		r.FinishedAt, _ = time.Parse(timeLayout, finish.String)
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &r.History); err != nil {
			return Run{}, fmt.Errorf("decode history: %w", err)
		}
	}
	return r, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
