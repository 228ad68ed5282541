// Package redis provides a Redis implementation of transport.SubmissionStore.
// Each submission is stored as a JSON string; sorted sets keyed by finish
// time index all submissions and the submissions of each form.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces all keys (default "formchat").
	Prefix string

	// TTL expires stored submissions. Zero keeps them forever.
	TTL time.Duration
}

// Store is a Redis-backed SubmissionStore.
type Store struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ transport.SubmissionStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "formchat"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Store{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (s *Store) submissionKey(sessionID string) string {
	return s.prefix + ":submission:" + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + ":submissions"
}

func (s *Store) formIndexKey(formID string) string {
	return s.prefix + ":form:" + formID
}

// SaveSubmission stores a submission unless one exists for the session.
// A save that finds the submission already stored re-adds it to the
// indexes before reporting the conflict, so a retry after a failed
// indexing step still makes it listable.
func (s *Store) SaveSubmission(ctx context.Context, sub *api.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshaling submission: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.submissionKey(sub.SessionID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("storing submission: %w", err)
	}
	if ok {
		return s.index(ctx, sub)
	}

	stored, err := s.GetSubmission(ctx, sub.SessionID)
	if err != nil {
		return err
	}
	if err := s.index(ctx, stored); err != nil {
		return err
	}
	debug.Log("storage", "submission already stored", "session_id", sub.SessionID)
	return storage.ErrConflict
}

// index adds a submission to the global and per-form sorted sets. ZADD is
// idempotent, so repeating it is safe.
func (s *Store) index(ctx context.Context, sub *api.Submission) error {
	member := goredis.Z{Score: float64(sub.FinishedAt.UnixMilli()), Member: sub.SessionID}
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, s.indexKey(), member)
		pipe.ZAdd(ctx, s.formIndexKey(sub.FormID), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves the submission of a session.
func (s *Store) GetSubmission(ctx context.Context, sessionID string) (*api.Submission, error) {
	data, err := s.rdb.Get(ctx, s.submissionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading submission: %w", err)
	}

	var sub api.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("unmarshaling submission: %w", err)
	}
	return &sub, nil
}

// ListSubmissions loads the indexed submissions, dropping index entries
// whose value has expired, and pages through them.
func (s *Store) ListSubmissions(ctx context.Context, opts transport.ListOptions) (*api.SubmissionList, error) {
	index := s.indexKey()
	if opts.FormID != "" {
		index = s.formIndexKey(opts.FormID)
	}

	ids, err := s.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	if len(ids) == 0 {
		return storage.NewList(nil, false), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.submissionKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}

	var (
		subs  []*api.Submission
		stale []any
	)
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sub api.Submission
		if err := json.Unmarshal([]byte(str), &sub); err != nil {
			return nil, fmt.Errorf("unmarshaling submission %s: %w", ids[i], err)
		}
		if storage.Matches(&sub, opts) {
			subs = append(subs, &sub)
		}
	}
	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, index, stale...).Err(); err != nil {
			debug.Log("storage", "pruning expired index entries failed", "error", err)
		}
	}

	return storage.Paginate(subs, opts), nil
}

// HealthCheck pings Redis.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
