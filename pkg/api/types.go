package api

import "time"

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// SessionStatus is the lifecycle status of a dialogue session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusDone      SessionStatus = "done"
	SessionStatusAbandoned SessionStatus = "abandoned"
	SessionStatusTimedOut  SessionStatus = "timed_out"
)

// Terminal reports whether no further input is accepted in this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusDone || s == SessionStatusAbandoned || s == SessionStatusTimedOut
}

// Verdict reasons produced without a judge decision.
const (
	ReasonValidatorError = "validator_error"
	ReasonEmptyAnswer    = "empty_answer"
)

// Stage labels used on transcript entries and events. Question stages
// are labelled with QuestionStage.
const (
	StageOpening = "opening"
	StageClosing = "closing"
)

// QuestionStage returns the stage label for the question with the given id.
func QuestionStage(questionID string) string {
	return "question:" + questionID
}

// TranscriptEntry is one line of the conversation.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// Verdict is the judge's decision about one answer. Value holds the
// normalized answer when Valid is true.
type Verdict struct {
	Valid      bool    `json:"valid"`
	Value      any     `json:"value,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// InvalidVerdict returns a zero-confidence rejection with the given reason.
func InvalidVerdict(reason string) Verdict {
	return Verdict{Valid: false, Confidence: 0, Reason: reason}
}

// Attempt records one answer to a question.
type Attempt struct {
	RawAnswer   string    `json:"raw_answer"`
	Verdict     Verdict   `json:"verdict"`
	PromptShown string    `json:"prompt_shown"`
	At          time.Time `json:"at"`
}

// Event is one piece of assistant output. Final is set on the last
// event of a session (the closing message, or the notice of a terminal
// state).
type Event struct {
	Text  string `json:"text"`
	Stage string `json:"stage"`
	Final bool   `json:"final,omitempty"`
}

// Turn is the result of starting or replying to a session.
type Turn struct {
	SessionID    string        `json:"session_id"`
	Status       SessionStatus `json:"status"`
	Events       []Event       `json:"events"`
	Acknowledged bool          `json:"acknowledged,omitempty"`
}

// StartRequest starts a new session for a form. Variables binds the
// form's dynamic variables; they are fixed for the life of the session.
type StartRequest struct {
	FormID    string            `json:"form_id"`
	Variables map[string]string `json:"variables,omitempty"`
}

// ReplyRequest carries one respondent message.
type ReplyRequest struct {
	Text string `json:"text"`
}

// Submission is the answer set handed to persistence when a session
// ends. Sessions that end early produce a partial submission whose
// Outcome is abandoned or timed_out.
type Submission struct {
	FormID     string               `json:"form_id"`
	SessionID  string               `json:"session_id"`
	Outcome    SessionStatus        `json:"outcome"`
	Variables  map[string]string    `json:"variables,omitempty"`
	Answers    map[string]any       `json:"answers"`
	Unanswered []string             `json:"unanswered,omitempty"`
	Transcript []TranscriptEntry    `json:"transcript"`
	Attempts   map[string][]Attempt `json:"attempts,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// SessionView is a read-only snapshot of a session.
type SessionView struct {
	ID           string            `json:"id"`
	FormID       string            `json:"form_id"`
	Status       SessionStatus     `json:"status"`
	Stage        string            `json:"stage"`
	StageIndex   int               `json:"stage_index"`
	Phase        string            `json:"phase"`
	Variables    map[string]string `json:"variables,omitempty"`
	Answers      map[string]any    `json:"answers"`
	Unanswered   []string          `json:"unanswered,omitempty"`
	AttemptCount map[string]int    `json:"attempt_count,omitempty"`
	Transcript   []TranscriptEntry `json:"transcript"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// FormSummary describes a loaded form.
type FormSummary struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	Questions int      `json:"questions"`
	Variables []string `json:"variables,omitempty"`
}

// SubmissionList is a page of submissions.
type SubmissionList struct {
	Object  string       `json:"object"`
	Data    []Submission `json:"data"`
	HasMore bool         `json:"has_more"`
	FirstID string       `json:"first_id,omitempty"`
	LastID  string       `json:"last_id,omitempty"`
}
