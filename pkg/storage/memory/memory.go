// Package memory provides an in-memory implementation of
// transport.SubmissionStore for testing and lightweight deployments.
// Submissions are lost when the process restarts. Optional LRU eviction
// limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

type entry struct {
	sub     *api.Submission
	lruElem *list.Element
}

// Store is an in-memory SubmissionStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ transport.SubmissionStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used submission is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveSubmission stores a submission keyed by session ID.
func (s *Store) SaveSubmission(_ context.Context, sub *api.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sub.SessionID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(sub.SessionID)
	s.entries[sub.SessionID] = &entry{sub: sub, lruElem: elem}
	return nil
}

// GetSubmission retrieves the submission of a session and marks it as
// recently used.
func (s *Store) GetSubmission(_ context.Context, sessionID string) (*api.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.sub, nil
}

// ListSubmissions returns a page of stored submissions.
func (s *Store) ListSubmissions(_ context.Context, opts transport.ListOptions) (*api.SubmissionList, error) {
	s.mu.RLock()
	var matches []*api.Submission
	for _, e := range s.entries {
		if storage.Matches(e.sub, opts) {
			matches = append(matches, e.sub)
		}
	}
	s.mu.RUnlock()

	return storage.Paginate(matches, opts), nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored submissions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest removes the least recently used entry. Must be called with
// s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
	debug.Log("storage", "submission evicted", "session_id", id)
}
