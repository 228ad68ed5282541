package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/form"
)

func testForm() *form.Definition {
	return &form.Definition{
		ID:      "intake",
		Opening: "Hello {name}.",
		Closing: "Bye.",
		Questions: []form.Question{
			{ID: "color", Prompt: "Favorite color?", Kind: form.MultipleChoice{Options: []string{"Red", "Blue"}}, Required: true, MaxAttempts: 2},
			{ID: "notes", Prompt: "Notes?", Kind: form.Text{}, MaxAttempts: 1},
		},
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestNew_SnapshotsOptionsAndCopiesVariables(t *testing.T) {
	def := testForm()
	vars := map[string]string{"name": "Ada"}
	s := New("sess_1", def, vars, nil)

	vars["name"] = "Grace"
	if s.Variables["name"] != "Ada" {
		t.Errorf("variables not copied: %q", s.Variables["name"])
	}

	opts := s.OptionsSnapshot("color")
	if len(opts) != 2 || opts[0] != "Red" {
		t.Errorf("options snapshot = %v", opts)
	}
	def.Questions[0].Kind.(form.MultipleChoice).Options[0] = "Green"
	if s.OptionsSnapshot("color")[0] != "Red" {
		t.Error("options snapshot aliases the form")
	}
	if s.OptionsSnapshot("notes") != nil {
		t.Error("text question should have no options")
	}

	if s.Status() != api.SessionStatusActive {
		t.Errorf("status = %s, want active", s.Status())
	}
	if s.StageLabel() != api.StageOpening {
		t.Errorf("stage = %s, want opening", s.StageLabel())
	}
}

func TestAdvance_MonotonicAndBounded(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)

	want := []string{"question:color", "question:notes", api.StageClosing, api.StageClosing}
	prev := s.StageIndex()
	for i, label := range want {
		s.Advance()
		if s.StageIndex() < prev {
			t.Fatalf("step %d: stage went backwards %d -> %d", i, prev, s.StageIndex())
		}
		prev = s.StageIndex()
		if s.StageLabel() != label {
			t.Errorf("step %d: stage = %s, want %s", i, s.StageLabel(), label)
		}
	}
	if s.StageIndex() != s.ClosingIndex() {
		t.Errorf("stage index = %d, want %d", s.StageIndex(), s.ClosingIndex())
	}
	if _, ok := s.CurrentQuestion(); ok {
		t.Error("closing stage should have no current question")
	}
}

func TestRecordAttempt(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)
	s.Advance()
	s.SetPrompt("Favorite color? Choose one of: Red, Blue.")

	n, err := s.RecordAttempt("color", "purple", api.InvalidVerdict("no_match"))
	if err != nil || n != 1 {
		t.Fatalf("RecordAttempt = %d, %v", n, err)
	}
	if _, ok := s.Answer("color"); ok {
		t.Error("invalid verdict recorded an answer")
	}

	n, err = s.RecordAttempt("color", "blue", api.Verdict{Valid: true, Value: "Blue", Confidence: 1})
	if err != nil || n != 2 {
		t.Fatalf("RecordAttempt = %d, %v", n, err)
	}
	if v, _ := s.Answer("color"); v != "Blue" {
		t.Errorf("answer = %v, want Blue", v)
	}

	attempts := s.Attempts("color")
	if attempts[0].PromptShown != "Favorite color? Choose one of: Red, Blue." {
		t.Errorf("prompt shown = %q", attempts[0].PromptShown)
	}

	_, err = s.RecordAttempt("color", "red", api.Verdict{Valid: true, Value: "Red"})
	if !errors.Is(err, ErrAttemptLimit) {
		t.Errorf("third attempt error = %v, want ErrAttemptLimit", err)
	}
	if s.AttemptCount("color") != 2 {
		t.Errorf("attempt count = %d, want 2", s.AttemptCount("color"))
	}
}

func TestRecordAttempt_NotCurrent(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)
	if _, err := s.RecordAttempt("color", "red", api.Verdict{Valid: true}); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("opening stage: error = %v, want ErrNotCurrent", err)
	}
	s.Advance()
	if _, err := s.RecordAttempt("notes", "hi", api.Verdict{Valid: true}); !errors.Is(err, ErrNotCurrent) {
		t.Errorf("other question: error = %v, want ErrNotCurrent", err)
	}
}

func TestTranscriptStages(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)
	s.Append(api.RoleAssistant, "Hello.")
	s.Advance()
	s.Append(api.RoleAssistant, "Favorite color?")
	s.Append(api.RoleUser, "red")

	tr := s.Transcript()
	if len(tr) != 3 {
		t.Fatalf("transcript length = %d, want 3", len(tr))
	}
	if tr[0].Stage != api.StageOpening || tr[2].Stage != "question:color" {
		t.Errorf("stages = %s, %s", tr[0].Stage, tr[2].Stage)
	}
	if tr[2].Role != api.RoleUser {
		t.Errorf("role = %s, want user", tr[2].Role)
	}

	tr[0].Content = "changed"
	if s.Transcript()[0].Content != "Hello." {
		t.Error("Transcript returned an aliased slice")
	}
}

func TestClose(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)
	if err := s.Close(api.SessionStatusAbandoned); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.Phase() != PhaseClosed {
		t.Errorf("phase = %s, want closed", s.Phase())
	}
	if err := s.Close(api.SessionStatusDone); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("second Close error = %v, want ErrAlreadyTerminal", err)
	}
	if s.Status() != api.SessionStatusAbandoned {
		t.Errorf("status = %s, want abandoned", s.Status())
	}
}

func TestMarkPersisted_Once(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)
	if !s.MarkPersisted() {
		t.Error("first MarkPersisted = false")
	}
	if s.MarkPersisted() {
		t.Error("second MarkPersisted = true")
	}
}

func TestSubmission(t *testing.T) {
	clock := newClock()
	s := New("sess_1", testForm(), map[string]string{"name": "Ada"}, clock.Now)
	s.Advance()
	if _, err := s.RecordAttempt("color", "blue", api.Verdict{Valid: true, Value: "Blue"}); err != nil {
		t.Fatal(err)
	}
	s.Advance()
	if _, err := s.RecordAttempt("notes", "", api.InvalidVerdict(api.ReasonEmptyAnswer)); err != nil {
		t.Fatal(err)
	}
	s.MarkUnanswered("notes")
	s.MarkUnanswered("notes")
	clock.Advance(time.Minute)
	if err := s.Close(api.SessionStatusDone); err != nil {
		t.Fatal(err)
	}

	sub := s.Submission()
	if sub.Outcome != api.SessionStatusDone {
		t.Errorf("outcome = %s", sub.Outcome)
	}
	if sub.Answers["color"] != "Blue" {
		t.Errorf("answers = %v", sub.Answers)
	}
	if len(sub.Unanswered) != 1 || sub.Unanswered[0] != "notes" {
		t.Errorf("unanswered = %v", sub.Unanswered)
	}
	if len(sub.Attempts["notes"]) != 1 {
		t.Errorf("attempts[notes] = %v", sub.Attempts["notes"])
	}
	if !sub.FinishedAt.After(sub.StartedAt) {
		t.Errorf("finished %v not after started %v", sub.FinishedAt, sub.StartedAt)
	}
}

func TestView(t *testing.T) {
	s := New("sess_1", testForm(), nil, nil)
	s.Advance()
	s.SetPhase(PhaseAwaitingAnswer)
	if _, err := s.RecordAttempt("color", "x", api.InvalidVerdict("no_match")); err != nil {
		t.Fatal(err)
	}
	v := s.View()
	if v.Stage != "question:color" || v.StageIndex != 1 {
		t.Errorf("stage = %s/%d", v.Stage, v.StageIndex)
	}
	if v.Phase != string(PhaseAwaitingAnswer) {
		t.Errorf("phase = %s", v.Phase)
	}
	if v.AttemptCount["color"] != 1 {
		t.Errorf("attempt count = %v", v.AttemptCount)
	}
}

func TestStore_GetAndRetire(t *testing.T) {
	store := NewStore()
	s := store.Create(testForm(), nil)

	if !api.ValidateSessionID(s.ID) {
		t.Errorf("invalid session id %q", s.ID)
	}
	got, err := store.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}

	store.Retire(s.ID)
	if store.Len() != 0 {
		t.Errorf("Len after retire = %d, want 0", store.Len())
	}
	if got, err := store.Get(s.ID); err != nil || got != s {
		t.Errorf("retired session should still resolve, got %v, %v", got, err)
	}

	_, err = store.Get("sess_unknown")
	if !errors.Is(err, api.ErrSessionNotFound) {
		t.Errorf("unknown id error = %v, want session not found", err)
	}
}

func TestStore_Sweep(t *testing.T) {
	clock := newClock()
	store := NewStore(
		WithClock(clock.Now),
		WithIdleTimeout(10*time.Minute),
		WithClosedRetention(time.Minute),
	)
	stale := store.Create(testForm(), nil)
	clock.Advance(6 * time.Minute)
	fresh := store.Create(testForm(), nil)
	clock.Advance(5 * time.Minute)

	idle := store.Sweep(clock.Now())
	if len(idle) != 1 || idle[0] != stale {
		t.Fatalf("Sweep = %v, want only the stale session", idle)
	}

	fresh.Touch()
	store.Retire(stale.ID)
	clock.Advance(2 * time.Minute)
	if idle := store.Sweep(clock.Now()); len(idle) != 0 {
		t.Errorf("Sweep after touch = %d sessions, want 0", len(idle))
	}
	if _, err := store.Get(stale.ID); !errors.Is(err, api.ErrSessionNotFound) {
		t.Errorf("purged session error = %v, want session not found", err)
	}
}

func TestStore_SweepDisabled(t *testing.T) {
	clock := newClock()
	store := NewStore(WithClock(clock.Now), WithIdleTimeout(0))
	store.Create(testForm(), nil)
	clock.Advance(24 * time.Hour)
	if idle := store.Sweep(clock.Now()); idle != nil {
		t.Errorf("Sweep with expiry disabled = %v", idle)
	}
}

func TestStore_Run(t *testing.T) {
	clock := newClock()
	store := NewStore(WithClock(clock.Now), WithIdleTimeout(time.Minute))
	s := store.Create(testForm(), nil)
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expired := make(chan *Session, 1)
	go store.Run(ctx, 5*time.Millisecond, func(sess *Session) {
		store.Retire(sess.ID)
		select {
		case expired <- sess:
		default:
		}
	})

	select {
	case got := <-expired:
		if got != s {
			t.Errorf("expired %s, want %s", got.ID, s.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session was not expired")
	}
}
