// Package postgres provides a PostgreSQL implementation of
// transport.SubmissionStore. It uses pgx/v5 for connection pooling and
// JSONB columns for answers, transcripts and attempts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

// Store is a PostgreSQL-backed SubmissionStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.SubmissionStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

const selectColumns = `session_id, form_id, outcome, variables, answers,
	unanswered, transcript, attempts, started_at, finished_at`

// SaveSubmission inserts a submission. A second save for the same session
// returns storage.ErrConflict.
func (s *Store) SaveSubmission(ctx context.Context, sub *api.Submission) error {
	cols, err := marshalColumns(sub)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (
			session_id, form_id, outcome, variables, answers,
			unanswered, transcript, attempts, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		sub.SessionID, sub.FormID, string(sub.Outcome),
		cols.variables, cols.answers, cols.unanswered, cols.transcript, cols.attempts,
		sub.StartedAt, sub.FinishedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves the submission of a session.
func (s *Store) GetSubmission(ctx context.Context, sessionID string) (*api.Submission, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM submissions WHERE session_id = $1", sessionID)

	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying submission: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns a page of submissions using keyset pagination
// on (finished_at, session_id). An unknown After cursor yields an empty
// page.
func (s *Store) ListSubmissions(ctx context.Context, opts transport.ListOptions) (*api.SubmissionList, error) {
	dir, cmp := "DESC", "<"
	if opts.Order == "asc" {
		dir, cmp = "ASC", ">"
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.FormID != "" {
		where = append(where, "form_id = "+arg(opts.FormID))
	}
	if opts.Outcome != "" {
		where = append(where, "outcome = "+arg(string(opts.Outcome)))
	}
	if opts.After != "" {
		where = append(where, fmt.Sprintf(
			"(finished_at, session_id) %s (SELECT finished_at, session_id FROM submissions WHERE session_id = %s)",
			cmp, arg(opts.After)))
	}

	query := "SELECT " + selectColumns + " FROM submissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.EffectiveLimit()
	query += fmt.Sprintf(" ORDER BY finished_at %s, session_id %s LIMIT %s", dir, dir, arg(limit+1))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*api.Submission, error) {
		return scanSubmission(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning submissions: %w", err)
	}

	hasMore := len(subs) > limit
	if hasMore {
		subs = subs[:limit]
	}
	return storage.NewList(subs, hasMore), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type jsonColumns struct {
	variables, answers, unanswered, transcript, attempts []byte
}

func marshalColumns(sub *api.Submission) (jsonColumns, error) {
	var cols jsonColumns
	fields := []struct {
		name string
		v    any
		dst  *[]byte
	}{
		{"variables", nonNilMap(sub.Variables), &cols.variables},
		{"answers", nonNilAnswers(sub.Answers), &cols.answers},
		{"unanswered", nonNilSlice(sub.Unanswered), &cols.unanswered},
		{"transcript", sub.Transcript, &cols.transcript},
		{"attempts", sub.Attempts, &cols.attempts},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return cols, fmt.Errorf("marshaling %s: %w", f.name, err)
		}
		*f.dst = b
	}
	return cols, nil
}

func scanSubmission(row pgx.Row) (*api.Submission, error) {
	var (
		sub     api.Submission
		outcome string
		cols    jsonColumns
	)
	err := row.Scan(
		&sub.SessionID, &sub.FormID, &outcome,
		&cols.variables, &cols.answers, &cols.unanswered, &cols.transcript, &cols.attempts,
		&sub.StartedAt, &sub.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Outcome = api.SessionStatus(outcome)

	targets := []struct {
		name string
		src  []byte
		dst  any
	}{
		{"variables", cols.variables, &sub.Variables},
		{"answers", cols.answers, &sub.Answers},
		{"unanswered", cols.unanswered, &sub.Unanswered},
		{"transcript", cols.transcript, &sub.Transcript},
		{"attempts", cols.attempts, &sub.Attempts},
	}
	for _, t := range targets {
		if err := json.Unmarshal(t.src, t.dst); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", t.name, err)
		}
	}
	return &sub, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilAnswers(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
