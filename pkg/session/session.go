// Package session holds dialogue session state and the store that owns
// live sessions.
//
// A Session's methods enforce its invariants (attempt bound, answer and
// attempt consistency, monotonic stage progress, append-only transcript).
// Callers serialize mutations by holding the session lock for the whole
// processing of one inbound message.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/form"
)

// Phase is the sub-state of the current stage.
type Phase string

const (
	PhaseAsking         Phase = "asking"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseValidating     Phase = "validating"
	PhaseRephrasing     Phase = "rephrasing"
	PhaseClosed         Phase = "closed"
)

// Invariant violations. They indicate a bug in the caller, never a
// respondent error.
var (
	ErrAttemptLimit    = errors.New("attempt limit reached")
	ErrNotCurrent      = errors.New("question is not the current stage")
	ErrAlreadyTerminal = errors.New("session already closed")
)

// Session is the mutable state of one conversation.
//
// Stage indexes run 0 (opening), 1..N (questions in form order), N+1
// (closing).
type Session struct {
	mu sync.Mutex

	ID        string
	Form      *form.Definition
	Variables map[string]string
	CreatedAt time.Time

	status     api.SessionStatus
	stage      int
	phase      Phase
	transcript []api.TranscriptEntry
	attempts   map[string][]api.Attempt
	answers    map[string]any
	unanswered []string
	options    map[string][]string
	lastPrompt string
	closedAt   time.Time
	persisted  bool

	lastActivity atomic.Int64
	now          func() time.Time
}

// New creates an active session at the opening stage. Variables are
// copied and the option list of every choice question is snapshotted.
func New(id string, def *form.Definition, vars map[string]string, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	bound := make(map[string]string, len(vars))
	for k, v := range vars {
		bound[k] = v
	}
	options := make(map[string][]string)
	for _, q := range def.Questions {
		if opts := form.Options(q.Kind); opts != nil {
			options[q.ID] = slices.Clone(opts)
		}
	}
	s := &Session{
		ID:        id,
		Form:      def,
		Variables: bound,
		CreatedAt: now(),
		status:    api.SessionStatusActive,
		phase:     PhaseAsking,
		attempts:  make(map[string][]api.Attempt),
		answers:   make(map[string]any),
		options:   options,
		now:       now,
	}
	s.Touch()
	return s
}

// Lock acquires the session for one mutation.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Status returns the lifecycle status.
func (s *Session) Status() api.SessionStatus { return s.status }

// StageIndex returns the current stage index.
func (s *Session) StageIndex() int { return s.stage }

// Phase returns the sub-state of the current stage.
func (s *Session) Phase() Phase { return s.phase }

// SetPhase moves to another sub-state of the current stage.
func (s *Session) SetPhase(p Phase) { s.phase = p }

// ClosingIndex is the stage index of the closing stage.
func (s *Session) ClosingIndex() int { return len(s.Form.Questions) + 1 }

// StageLabel returns the label of the current stage.
func (s *Session) StageLabel() string {
	switch {
	case s.stage == 0:
		return api.StageOpening
	case s.stage >= s.ClosingIndex():
		return api.StageClosing
	default:
		return s.Form.Questions[s.stage-1].Stage()
	}
}

// CurrentQuestion returns the question of the current stage, if the
// session is at a question stage.
func (s *Session) CurrentQuestion() (form.Question, bool) {
	if s.stage < 1 || s.stage > len(s.Form.Questions) {
		return form.Question{}, false
	}
	return s.Form.Questions[s.stage-1], true
}

// Advance moves to the next stage. It never moves past closing.
func (s *Session) Advance() int {
	if s.stage < s.ClosingIndex() {
		s.stage++
	}
	s.phase = PhaseAsking
	return s.stage
}

// Append adds a transcript entry labelled with the current stage.
func (s *Session) Append(role api.Role, content string) api.TranscriptEntry {
	e := api.TranscriptEntry{
		Role:      role,
		Content:   content,
		Stage:     s.StageLabel(),
		Timestamp: s.now(),
	}
	s.transcript = append(s.transcript, e)
	return e
}

// SetPrompt records the prompt text most recently shown for the current
// question; it is stored with the next attempt.
func (s *Session) SetPrompt(text string) { s.lastPrompt = text }

// LastPrompt returns the prompt most recently shown.
func (s *Session) LastPrompt() string { return s.lastPrompt }

// RecordAttempt appends an attempt for the current question. A valid
// verdict also records the answer. It refuses attempts beyond the
// question's MaxAttempts.
func (s *Session) RecordAttempt(questionID, raw string, v api.Verdict) (int, error) {
	q, ok := s.CurrentQuestion()
	if !ok || q.ID != questionID {
		return 0, fmt.Errorf("%w: %s", ErrNotCurrent, questionID)
	}
	if len(s.attempts[q.ID]) >= q.MaxAttempts {
		return len(s.attempts[q.ID]), fmt.Errorf("%w: %s", ErrAttemptLimit, questionID)
	}
	s.attempts[q.ID] = append(s.attempts[q.ID], api.Attempt{
		RawAnswer:   raw,
		Verdict:     v,
		PromptShown: s.lastPrompt,
		At:          s.now(),
	})
	if v.Valid {
		s.answers[q.ID] = v.Value
	}
	return len(s.attempts[q.ID]), nil
}

// AttemptCount returns the number of attempts for a question.
func (s *Session) AttemptCount(questionID string) int {
	return len(s.attempts[questionID])
}

// Attempts returns a copy of the attempts for a question.
func (s *Session) Attempts(questionID string) []api.Attempt {
	return slices.Clone(s.attempts[questionID])
}

// Answer returns the recorded answer for a question.
func (s *Session) Answer(questionID string) (any, bool) {
	v, ok := s.answers[questionID]
	return v, ok
}

// Answers returns a copy of the answers.
func (s *Session) Answers() map[string]any {
	out := make(map[string]any, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// MarkUnanswered records that a question exhausted its attempts.
func (s *Session) MarkUnanswered(questionID string) {
	if !slices.Contains(s.unanswered, questionID) {
		s.unanswered = append(s.unanswered, questionID)
	}
}

// Unanswered returns the questions that exhausted their attempts.
func (s *Session) Unanswered() []string {
	return slices.Clone(s.unanswered)
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []api.TranscriptEntry {
	return slices.Clone(s.transcript)
}

// OptionsSnapshot returns the options captured at session start.
func (s *Session) OptionsSnapshot(questionID string) []string {
	return s.options[questionID]
}

// Close moves the session to a terminal status.
func (s *Session) Close(status api.SessionStatus) error {
	if apiErr := api.ValidateSessionTransition(s.status, status); apiErr != nil {
		if s.status.Terminal() {
			return fmt.Errorf("%w: %s", ErrAlreadyTerminal, s.status)
		}
		return apiErr
	}
	s.status = status
	s.phase = PhaseClosed
	s.closedAt = s.now()
	return nil
}

// ClosedAt returns when the session reached a terminal status.
func (s *Session) ClosedAt() time.Time { return s.closedAt }

// MarkPersisted reports whether this is the first hand-off to
// persistence. Later calls return false.
func (s *Session) MarkPersisted() bool {
	if s.persisted {
		return false
	}
	s.persisted = true
	return true
}

// Touch records activity. It is safe to call without the session lock.
func (s *Session) Touch() {
	s.lastActivity.Store(s.now().UnixNano())
}

// LastActivity returns the time of the last recorded activity. It is safe
// to call without the session lock.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Submission builds the answer set for persistence.
func (s *Session) Submission() *api.Submission {
	attempts := make(map[string][]api.Attempt, len(s.attempts))
	for k, v := range s.attempts {
		attempts[k] = slices.Clone(v)
	}
	vars := make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		vars[k] = v
	}
	finished := s.closedAt
	if finished.IsZero() {
		finished = s.now()
	}
	return &api.Submission{
		FormID:     s.Form.ID,
		SessionID:  s.ID,
		Outcome:    s.status,
		Variables:  vars,
		Answers:    s.Answers(),
		Unanswered: s.Unanswered(),
		Transcript: s.Transcript(),
		Attempts:   attempts,
		StartedAt:  s.CreatedAt,
		FinishedAt: finished,
	}
}

// View returns a read-only snapshot.
func (s *Session) View() *api.SessionView {
	counts := make(map[string]int, len(s.attempts))
	for k, v := range s.attempts {
		counts[k] = len(v)
	}
	return &api.SessionView{
		ID:           s.ID,
		FormID:       s.Form.ID,
		Status:       s.status,
		Stage:        s.StageLabel(),
		StageIndex:   s.stage,
		Phase:        string(s.phase),
		Variables:    s.Variables,
		Answers:      s.Answers(),
		Unanswered:   s.Unanswered(),
		AttemptCount: counts,
		Transcript:   s.Transcript(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
	}
}
