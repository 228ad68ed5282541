// Package sqlite provides a SQLite implementation of
// transport.SubmissionStore for single-node deployments. It uses the
// pure-Go modernc.org/sqlite driver through database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

// Store is a SQLite-backed SubmissionStore.
type Store struct {
	db *sql.DB
}

var _ transport.SubmissionStore = (*Store)(nil)

// New opens (creating if needed) the database at path and ensures the
// schema exists.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS submissions (
		session_id  TEXT PRIMARY KEY,
		form_id     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		finished_at INTEGER NOT NULL,
		data        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_finished ON submissions(finished_at, session_id);
	CREATE INDEX IF NOT EXISTS idx_submissions_form ON submissions(form_id, finished_at);
	`)
	return err
}

// SaveSubmission inserts a submission. A second save for the same session
// returns storage.ErrConflict.
func (s *Store) SaveSubmission(ctx context.Context, sub *api.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshaling submission: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (session_id, form_id, outcome, finished_at, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sub.SessionID, sub.FormID, string(sub.Outcome), sub.FinishedAt.UnixMilli(), string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting submission: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// GetSubmission retrieves the submission of a session.
func (s *Store) GetSubmission(ctx context.Context, sessionID string) (*api.Submission, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM submissions WHERE session_id = ?", sessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying submission: %w", err)
	}
	return decode(data)
}

// ListSubmissions pages through submissions with keyset pagination on
// (finished_at, session_id).
func (s *Store) ListSubmissions(ctx context.Context, opts transport.ListOptions) (*api.SubmissionList, error) {
	dir, cmp := "DESC", "<"
	if opts.Order == "asc" {
		dir, cmp = "ASC", ">"
	}

	var (
		where []string
		args  []any
	)
	if opts.FormID != "" {
		where = append(where, "form_id = ?")
		args = append(args, opts.FormID)
	}
	if opts.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, string(opts.Outcome))
	}
	if opts.After != "" {
		where = append(where, "(finished_at, session_id) "+cmp+
			" (SELECT finished_at, session_id FROM submissions WHERE session_id = ?)")
		args = append(args, opts.After)
	}

	query := "SELECT data FROM submissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.EffectiveLimit()
	query += " ORDER BY finished_at " + dir + ", session_id " + dir + " LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var subs []*api.Submission
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		sub, err := decode(data)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}

	hasMore := len(subs) > limit
	if hasMore {
		subs = subs[:limit]
	}
	return storage.NewList(subs, hasMore), nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decode(data string) (*api.Submission, error) {
	var sub api.Submission
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, fmt.Errorf("unmarshaling submission: %w", err)
	}
	return &sub, nil
}
