package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/form"
)

// Default store timings.
const (
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultClosedRetention = 10 * time.Minute
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIdleTimeout sets how long an active session may go without input
// before it is expired. Zero disables expiry.
func WithIdleTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTimeout = d }
}

// WithClosedRetention sets how long a closed session is kept so that late
// input is answered with SessionClosed rather than SessionNotFound.
func WithClosedRetention(d time.Duration) StoreOption {
	return func(s *Store) { s.closedRetention = d }
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store owns all sessions of one process. Live sessions are mutable;
// closed sessions are retained read-only for a while and then purged.
type Store struct {
	mu     sync.RWMutex
	live   map[string]*Session
	closed map[string]retired

	idleTimeout     time.Duration
	closedRetention time.Duration
	now             func() time.Time
}

type retired struct {
	sess *Session
	at   time.Time
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		live:            make(map[string]*Session),
		closed:          make(map[string]retired),
		idleTimeout:     DefaultIdleTimeout,
		closedRetention: DefaultClosedRetention,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdleTimeout returns the configured idle timeout.
func (s *Store) IdleTimeout() time.Duration { return s.idleTimeout }

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.now() }

// Create starts tracking a new active session for the form.
func (s *Store) Create(def *form.Definition, vars map[string]string) *Session {
	sess := New(api.NewSessionID(), def, vars, s.now)

	s.mu.Lock()
	s.live[sess.ID] = sess
	s.mu.Unlock()

	debug.Log("sessions", "session created", "session_id", sess.ID, "form", def.ID)
	return sess
}

// Get returns a live or recently closed session. Callers check the status
// under the session lock before mutating.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.live[id]; ok {
		return sess, nil
	}
	if r, ok := s.closed[id]; ok {
		return r.sess, nil
	}
	return nil, api.NewSessionNotFoundError(id)
}

// Retire moves a session from the live set to the closed set.
func (s *Store) Retire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.live[id]; ok {
		delete(s.live, id)
		s.closed[id] = retired{sess: sess, at: s.now()}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Sweep purges closed sessions past their retention and returns the live
// sessions whose last activity is older than the idle timeout. It does not
// close them; that is the caller's job under the session lock.
func (s *Store) Sweep(now time.Time) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.closed {
		if now.Sub(r.at) >= s.closedRetention {
			delete(s.closed, id)
			debug.Log("sessions", "closed session purged", "session_id", id)
		}
	}

	if s.idleTimeout <= 0 {
		return nil
	}
	var idle []*Session
	for _, sess := range s.live {
		if now.Sub(sess.LastActivity()) >= s.idleTimeout {
			idle = append(idle, sess)
		}
	}
	return idle
}

// Run sweeps every interval until ctx is cancelled, handing each idle
// session to onExpire.
func (s *Store) Run(ctx context.Context, interval time.Duration, onExpire func(*Session)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := s.Sweep(s.now())
			if len(idle) > 0 {
				slog.Info("expiring idle sessions", "count", len(idle))
			}
			for _, sess := range idle {
				onExpire(sess)
			}
		}
	}
}
