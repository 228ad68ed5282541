package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/form"
	"github.com/rhuss/formchat/pkg/judge"
	"github.com/rhuss/formchat/pkg/observability"
	"github.com/rhuss/formchat/pkg/prompt"
	"github.com/rhuss/formchat/pkg/session"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

// Assistant messages that are not derived from the form.
const (
	MoveOnText  = "No problem, let's move on."
	AbandonText = "This conversation has ended. Your answers so far have been kept."
)

// FormSource resolves form definitions. form.Catalog implements it.
type FormSource interface {
	Get(id string) (*form.Definition, bool)
	List() []api.FormSummary
}

// SubmissionSaver receives finished sessions. transport.SubmissionStore
// implementations satisfy it.
type SubmissionSaver interface {
	SaveSubmission(ctx context.Context, sub *api.Submission) error
}

// Engine drives dialogue sessions. It implements transport.TurnHandler,
// transport.SessionReader and transport.FormCatalog.
type Engine struct {
	forms    FormSource
	judge    judge.Judge
	sessions *session.Store
	saver    SubmissionSaver
	cfg      Config
	onExpire func(sessionID string)
}

var (
	_ transport.TurnHandler   = (*Engine)(nil)
	_ transport.SessionReader = (*Engine)(nil)
	_ transport.FormCatalog   = (*Engine)(nil)
)

// New creates an Engine. forms, j and sessions must not be nil. saver may
// be nil, in which case finished sessions are only logged.
func New(forms FormSource, j judge.Judge, sessions *session.Store, saver SubmissionSaver, cfg Config) (*Engine, error) {
	if forms == nil {
		return nil, fmt.Errorf("engine: form source must not be nil")
	}
	if j == nil {
		return nil, fmt.Errorf("engine: judge must not be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("engine: session store must not be nil")
	}
	return &Engine{
		forms:    forms,
		judge:    j,
		sessions: sessions,
		saver:    saver,
		cfg:      cfg,
	}, nil
}

// HandleInbound dispatches an inbound event.
func (e *Engine) HandleInbound(ctx context.Context, in *transport.Inbound) (*api.Turn, error) {
	switch in.Kind {
	case transport.InboundStart:
		if in.Start == nil {
			return nil, api.NewInvalidRequestError("form_id", "form_id is required")
		}
		return e.Start(ctx, in.Start)
	case transport.InboundReply:
		return e.Reply(ctx, in.SessionID, in.Text)
	case transport.InboundCancel:
		return e.Cancel(ctx, in.SessionID)
	default:
		return nil, api.NewInvalidRequestError("kind", fmt.Sprintf("unknown inbound kind %q", in.Kind))
	}
}

// Start creates a session for a form, binds its variables and returns the
// opening message followed by the first question.
func (e *Engine) Start(ctx context.Context, req *api.StartRequest) (*api.Turn, error) {
	if strings.TrimSpace(req.FormID) == "" {
		return nil, api.NewInvalidRequestError("form_id", "form_id is required")
	}
	def, ok := e.forms.Get(req.FormID)
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("form %q not found", req.FormID))
	}

	s := e.sessions.Create(def, req.Variables)
	s.Lock()
	defer s.Unlock()

	if debug.Enabled("engine") {
		for _, name := range def.Variables {
			if _, ok := s.Variables[name]; !ok {
				debug.Log("engine", "variable not bound", "session_id", s.ID, "variable", name)
			}
		}
	}

	observability.SessionsStartedTotal.WithLabelValues(def.ID).Inc()
	observability.SessionsActive.Inc()
	slog.Info("session started", "session_id", s.ID, "form", def.ID)

	events := []api.Event{e.say(s, prompt.Opening(def, s.Variables))}
	events = append(events, e.advance(ctx, s)...)
	return e.turn(s, events), nil
}

// Reply applies one respondent message to the session's current question.
func (e *Engine) Reply(ctx context.Context, sessionID, text string) (*api.Turn, error) {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()

	if s.Status().Terminal() {
		return nil, api.NewSessionClosedError(s.ID, s.Status())
	}
	s.Touch()
	defer s.Touch()

	q, ok := s.CurrentQuestion()
	if !ok {
		return nil, api.NewServerError(fmt.Sprintf("session %s has no open question", s.ID))
	}

	s.Append(api.RoleUser, text)
	s.SetPhase(session.PhaseValidating)

	verdict := e.validate(ctx, s, q, text)
	count, err := s.RecordAttempt(q.ID, text, verdict)
	if err != nil {
		return nil, api.NewServerError(err.Error())
	}
	observability.AttemptsTotal.WithLabelValues(q.Kind.Type(), attemptResult(verdict)).Inc()
	debug.Log("engine", "attempt recorded",
		"session_id", s.ID,
		"question", q.ID,
		"attempt", count,
		"valid", verdict.Valid,
		"reason", verdict.Reason,
	)

	var events []api.Event
	switch {
	case verdict.Valid:
		events = e.advance(ctx, s)
	case count < q.MaxAttempts:
		s.SetPhase(session.PhaseRephrasing)
		events = []api.Event{e.say(s, prompt.Rephrase(q, s.Variables, count))}
	default:
		s.MarkUnanswered(q.ID)
		observability.QuestionsUnansweredTotal.WithLabelValues(s.Form.ID, strconv.FormatBool(q.Required)).Inc()
		slog.Info("question left unanswered",
			"session_id", s.ID,
			"question", q.ID,
			"required", q.Required,
			"attempts", count,
		)
		events = []api.Event{e.say(s, MoveOnText)}
		events = append(events, e.advance(ctx, s)...)
	}
	return e.turn(s, events), nil
}

// Cancel abandons an active session. Partial answers are persisted with
// outcome abandoned.
func (e *Engine) Cancel(ctx context.Context, sessionID string) (*api.Turn, error) {
	s, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()

	if s.Status().Terminal() {
		return nil, api.NewSessionClosedError(s.ID, s.Status())
	}
	return e.turn(s, e.finish(ctx, s, api.SessionStatusAbandoned)), nil
}

// OnExpire registers fn to be called with the ID of every session that
// times out, after the session lock is released. Transports use it to
// close live connections. It must be called before Run.
func (e *Engine) OnExpire(fn func(sessionID string)) {
	e.onExpire = fn
}

// Expire closes a session that has been idle past the store's timeout.
// Activity that happened after the sweep picked the session up wins.
func (e *Engine) Expire(ctx context.Context, s *session.Session) {
	if !e.expire(ctx, s) {
		return
	}
	if e.onExpire != nil {
		e.onExpire(s.ID)
	}
}

func (e *Engine) expire(ctx context.Context, s *session.Session) bool {
	s.Lock()
	defer s.Unlock()

	if s.Status().Terminal() {
		return false
	}
	idle := e.sessions.Now().Sub(s.LastActivity())
	if idle < e.sessions.IdleTimeout() {
		return false
	}
	slog.Info("session timed out", "session_id", s.ID, "idle", idle.Round(time.Second))
	e.finish(ctx, s, api.SessionStatusTimedOut)
	return true
}

// Run expires idle sessions until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.sessions.Run(ctx, e.cfg.SweepInterval, func(s *session.Session) {
		e.Expire(ctx, s)
	})
}

// Session returns a snapshot of a live or recently closed session.
func (e *Engine) Session(_ context.Context, id string) (*api.SessionView, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	s.Lock()
	defer s.Unlock()
	return s.View(), nil
}

// Forms lists the served forms.
func (e *Engine) Forms(_ context.Context) []api.FormSummary {
	return e.forms.List()
}

// Form describes one served form.
func (e *Engine) Form(_ context.Context, id string) (*api.FormSummary, error) {
	def, ok := e.forms.Get(id)
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("form %q not found", id))
	}
	summary := def.Summary()
	return &summary, nil
}

// validate produces the verdict for one raw answer. Blank answers never
// reach the judge. The judge call is detached from the caller's
// cancellation so that a dropped HTTP request does not burn an attempt;
// the judge bounds its own latency.
func (e *Engine) validate(ctx context.Context, s *session.Session, q form.Question, raw string) api.Verdict {
	if strings.TrimSpace(raw) == "" {
		return api.InvalidVerdict(api.ReasonEmptyAnswer)
	}
	return e.judge.Validate(context.WithoutCancel(ctx), judge.Request{
		Question:  q,
		Variables: s.Variables,
		RawAnswer: raw,
		Options:   s.OptionsSnapshot(q.ID),
	})
}

// advance moves to the next stage and emits what it opens with: the next
// question or the closing message.
func (e *Engine) advance(ctx context.Context, s *session.Session) []api.Event {
	s.Advance()
	if q, ok := s.CurrentQuestion(); ok {
		s.SetPhase(session.PhaseAsking)
		return []api.Event{e.say(s, prompt.Question(q, s.Variables))}
	}
	return e.finish(ctx, s, api.SessionStatusDone)
}

// finish closes the session with the given outcome and hands it to
// persistence. A session that is already closed is left untouched.
func (e *Engine) finish(ctx context.Context, s *session.Session, outcome api.SessionStatus) []api.Event {
	if s.Status().Terminal() {
		return nil
	}

	var events []api.Event
	switch outcome {
	case api.SessionStatusDone:
		ev := e.say(s, prompt.Closing(s.Form, s.Variables, s.Answers()))
		ev.Final = true
		events = append(events, ev)
	case api.SessionStatusAbandoned:
		ev := e.say(s, AbandonText)
		ev.Final = true
		events = append(events, ev)
	}

	if err := s.Close(outcome); err != nil {
		slog.Error("closing session", "session_id", s.ID, "outcome", outcome, "error", err)
		return events
	}
	e.sessions.Retire(s.ID)

	observability.SessionsActive.Dec()
	observability.SessionsFinishedTotal.WithLabelValues(s.Form.ID, string(outcome)).Inc()
	slog.Info("session finished",
		"session_id", s.ID,
		"form", s.Form.ID,
		"outcome", outcome,
		"unanswered", len(s.Unanswered()),
	)

	e.persist(ctx, s)
	return events
}

// persist hands the submission to the saver exactly once. Failures are
// retried with backoff and then logged; they never reach the respondent.
func (e *Engine) persist(ctx context.Context, s *session.Session) {
	if !s.MarkPersisted() {
		return
	}
	sub := s.Submission()
	if e.saver == nil {
		debug.Log("engine", "no submission store configured", "session_id", s.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.persistTimeout())
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.cfg.persistBackoff()
	b := backoff.WithContext(backoff.WithMaxRetries(eb, e.cfg.persistRetries()), ctx)

	op := func() error {
		err := e.saver.SaveSubmission(ctx, sub)
		if errors.Is(err, storage.ErrConflict) {
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("saving submission failed, retrying",
			"session_id", sub.SessionID,
			"error", err,
			"wait", wait,
		)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		observability.PersistFailuresTotal.WithLabelValues(string(sub.Outcome)).Inc()
		slog.Error("submission not persisted",
			"session_id", sub.SessionID,
			"form", sub.FormID,
			"outcome", sub.Outcome,
			"error", err,
		)
		return
	}
	debug.Log("engine", "submission persisted", "session_id", sub.SessionID, "outcome", sub.Outcome)
}

// say appends an assistant message to the transcript and returns it as an
// outbound event. The session then waits for an answer.
func (e *Engine) say(s *session.Session, text string) api.Event {
	entry := s.Append(api.RoleAssistant, text)
	s.SetPrompt(text)
	s.SetPhase(session.PhaseAwaitingAnswer)
	return api.Event{Text: text, Stage: entry.Stage}
}

func (e *Engine) turn(s *session.Session, events []api.Event) *api.Turn {
	if events == nil {
		events = []api.Event{}
	}
	return &api.Turn{
		SessionID: s.ID,
		Status:    s.Status(),
		Events:    events,
	}
}

func attemptResult(v api.Verdict) string {
	switch {
	case v.Valid:
		return "valid"
	case v.Reason == api.ReasonEmptyAnswer:
		return "empty"
	case v.Reason == api.ReasonValidatorError:
		return "validator_error"
	default:
		return "invalid"
	}
}
