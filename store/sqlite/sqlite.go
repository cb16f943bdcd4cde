// Package sqlite is a reference Store backed by a local SQLite file. It keeps
// just enough of the RAMP data model to drive the dispatcher end to end:
// submissions, their cross-validation folds and leaderboard refresh marks.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
  id          INTEGER PRIMARY KEY,
  name        TEXT NOT NULL,
  event       TEXT NOT NULL,
  problem     TEXT NOT NULL,
  state       TEXT NOT NULL DEFAULT 'new',
  error_msg   TEXT NOT NULL DEFAULT '',
  max_ram     REAL NOT NULL DEFAULT 0,
  updated_at  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS submissions_event_state ON submissions(event, state)`,
	`CREATE TABLE IF NOT EXISTS cv_folds (
  id               INTEGER PRIMARY KEY,
  submission_id    INTEGER NOT NULL REFERENCES submissions(id) ON DELETE CASCADE,
  fold_index       INTEGER NOT NULL,
  predictions_path TEXT NOT NULL DEFAULT '',
  UNIQUE(submission_id, fold_index)
)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_refreshes (
  event        TEXT NOT NULL,
  kind         TEXT NOT NULL,
  refreshed_at TEXT NOT NULL
)`,
}

const (
	kindLeaderboards     = "leaderboards"
	kindUserLeaderboards = "user_leaderboards"
)

// Store implements store.Store.
type Store struct {
	db *sql.DB
}

// Open opens, and creates if needed, the database at path. ":memory:" gives
// a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection, so ":memory:" stays a single database and writes never race.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{"PRAGMA foreign_keys = ON;", "PRAGMA busy_timeout = 5000;"} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(pctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "bootstrap schema")
		}
	}
	log.WithFields(log.Fields{"path": path}).Debug("Opened sqlite store")
	return &Store{db: db}, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// AddSubmission inserts a submission with nFolds folds and returns its id.
func (s *Store) AddSubmission(ctx context.Context, sub domain.Submission, nFolds int) (int64, error) {
	if sub.State == "" {
		sub.State = domain.New
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var res sql.Result
	if sub.ID != 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO submissions(id, name, event, problem, state, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sub.ID, sub.Basename, sub.EventName, sub.ProblemName, string(sub.State), now())
	} else {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO submissions(name, event, problem, state, updated_at) VALUES (?, ?, ?, ?, ?)`,
			sub.Basename, sub.EventName, sub.ProblemName, string(sub.State), now())
	}
	if err != nil {
		return 0, errors.Wrapf(err, "insert submission %s", sub.Basename)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i := 0; i < nFolds; i++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cv_folds(submission_id, fold_index) VALUES (?, ?)`, id, i); err != nil {
			return 0, errors.Wrapf(err, "insert fold %d of %s", i, sub.Basename)
		}
	}
	return id, tx.Commit()
}

const selectSubmissions = `SELECT id, name, event, problem, state, error_msg, max_ram FROM submissions`

func (s *Store) GetNewSubmissions(ctx context.Context, event string) ([]*domain.Submission, error) {
	return s.query(ctx, selectSubmissions+` WHERE event = ? AND state = ? ORDER BY id`, event, string(domain.New))
}

func (s *Store) GetSubmissions(ctx context.Context, event string, stateFilter string) ([]*domain.Submission, error) {
	if stateFilter == "" {
		return s.query(ctx, selectSubmissions+` WHERE event = ? ORDER BY id`, event)
	}
	// instr rather than LIKE so '_' in state names is not a wildcard.
	return s.query(ctx, selectSubmissions+` WHERE event = ? AND instr(state, ?) > 0 ORDER BY id`, event, stateFilter)
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]*domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query submissions")
	}
	defer rows.Close()
	var subs []*domain.Submission
	for rows.Next() {
		var sub domain.Submission
		var state string
		if err := rows.Scan(&sub.ID, &sub.Basename, &sub.EventName, &sub.ProblemName, &state, &sub.ErrorMsg, &sub.MaxRAM); err != nil {
			return nil, err
		}
		sub.State = domain.State(state)
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

func (s *Store) SetSubmissionState(ctx context.Context, id int64, state domain.State) error {
	return s.exec(ctx, id, `UPDATE submissions SET state = ?, updated_at = ? WHERE id = ?`, string(state), now(), id)
}

func (s *Store) SetSubmissionError(ctx context.Context, id int64, msg string) error {
	return s.exec(ctx, id, `UPDATE submissions SET error_msg = ?, updated_at = ? WHERE id = ?`, msg, now(), id)
}

func (s *Store) SetSubmissionMaxRAM(ctx context.Context, id int64, mb float64) error {
	return s.exec(ctx, id, `UPDATE submissions SET max_ram = ?, updated_at = ? WHERE id = ?`, mb, now(), id)
}

func (s *Store) exec(ctx context.Context, id int64, q string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrapf(err, "update submission %d", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(store.ErrNotFound, "submission %d", id)
	}
	return nil
}

func (s *Store) GetSubmissionOnCVFolds(ctx context.Context, id int64) ([]domain.CVFold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, fold_index FROM cv_folds WHERE submission_id = ? ORDER BY fold_index`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query folds of %d", id)
	}
	defer rows.Close()
	var folds []domain.CVFold
	for rows.Next() {
		var f domain.CVFold
		if err := rows.Scan(&f.ID, &f.SubmissionID, &f.Index); err != nil {
			return nil, err
		}
		folds = append(folds, f)
	}
	return folds, rows.Err()
}

func (s *Store) UpdateSubmissionOnCVFold(ctx context.Context, fold domain.CVFold, path string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cv_folds SET predictions_path = ? WHERE id = ?`, path, fold.ID)
	if err != nil {
		return errors.Wrapf(err, "update fold %d", fold.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(store.ErrNotFound, "fold %d", fold.ID)
	}
	return nil
}

// FoldPredictionsPath returns the path recorded for a fold.
func (s *Store) FoldPredictionsPath(ctx context.Context, foldID int64) (string, error) {
	var p string
	err := s.db.QueryRowContext(ctx, `SELECT predictions_path FROM cv_folds WHERE id = ?`, foldID).Scan(&p)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(store.ErrNotFound, "fold %d", foldID)
	}
	return p, err
}

func (s *Store) UpdateLeaderboards(ctx context.Context, event string) error {
	return s.markRefresh(ctx, event, kindLeaderboards)
}

func (s *Store) UpdateAllUserLeaderboards(ctx context.Context, event string) error {
	return s.markRefresh(ctx, event, kindUserLeaderboards)
}

// Scoring is done elsewhere; this records that a refresh was requested.
func (s *Store) markRefresh(ctx context.Context, event, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard_refreshes(event, kind, refreshed_at) VALUES (?, ?, ?)`, event, kind, now())
	return errors.Wrapf(err, "refresh %s of %s", kind, event)
}

// RefreshCount returns how many refreshes of kind were recorded for event.
func (s *Store) RefreshCount(ctx context.Context, event string, userBoards bool) (int, error) {
	kind := kindLeaderboards
	if userBoards {
		kind = kindUserLeaderboards
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM leaderboard_refreshes WHERE event = ? AND kind = ?`, event, kind).Scan(&n)
	return n, err
}

// IsNotFound reports whether err wraps store.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == store.ErrNotFound
}
