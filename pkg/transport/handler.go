package transport

import (
	"context"

	"github.com/rhuss/formchat/pkg/api"
)

// InboundKind identifies what an inbound event asks the engine to do.
type InboundKind string

const (
	InboundStart  InboundKind = "start"
	InboundReply  InboundKind = "reply"
	InboundCancel InboundKind = "cancel"
)

// Inbound is one event arriving from a respondent channel. HTTP requests,
// websocket frames and terminal lines all become Inbound values, so the
// engine never reads from a channel directly.
type Inbound struct {
	Kind      InboundKind
	SessionID string

	// Start is set for InboundStart.
	Start *api.StartRequest

	// Text is the respondent message for InboundReply.
	Text string
}

// TurnHandler processes one inbound event and returns the assistant turn
// it produced. It is the primary handler contract wrapped by Middleware.
type TurnHandler interface {
	HandleInbound(ctx context.Context, in *Inbound) (*api.Turn, error)
}

// TurnHandlerFunc is an adapter that allows using an ordinary function
// as a TurnHandler.
type TurnHandlerFunc func(ctx context.Context, in *Inbound) (*api.Turn, error)

// HandleInbound calls f(ctx, in).
func (f TurnHandlerFunc) HandleInbound(ctx context.Context, in *Inbound) (*api.Turn, error) {
	return f(ctx, in)
}

// SessionReader exposes read-only session snapshots.
type SessionReader interface {
	// Session returns the current view of a live or recently closed
	// session. Unknown ids yield a session_not_found error.
	Session(ctx context.Context, id string) (*api.SessionView, error)
}

// FormCatalog lists the forms a deployment serves.
type FormCatalog interface {
	Forms(ctx context.Context) []api.FormSummary
	Form(ctx context.Context, id string) (*api.FormSummary, error)
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After   string            // Cursor: return items after this session ID.
	Limit   int               // Maximum number of items to return (default 20, max 100).
	FormID  string            // Filter by form.
	Outcome api.SessionStatus // Filter by outcome.
	Order   string            // Sort order: "asc" or "desc" (default "desc").
}

// Limits applied to ListOptions.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// EffectiveLimit returns Limit clamped to [1, MaxListLimit].
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// SubmissionStore persists the answer sets of finished sessions. It is
// only present when a storage backend is configured.
type SubmissionStore interface {
	// SaveSubmission persists a submission. Saving the same session twice
	// returns storage.ErrConflict.
	SaveSubmission(ctx context.Context, sub *api.Submission) error

	// GetSubmission retrieves the submission of a session. Returns
	// storage.ErrNotFound if none exists.
	GetSubmission(ctx context.Context, sessionID string) (*api.Submission, error)

	// ListSubmissions returns a page of submissions ordered by finish time.
	ListSubmissions(ctx context.Context, opts ListOptions) (*api.SubmissionList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}
