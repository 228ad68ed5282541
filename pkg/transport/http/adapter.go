package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/storage"
	"github.com/rhuss/formchat/pkg/transport"
)

// Backend groups the services the adapter routes to.
type Backend struct {
	// Turns handles session start, replies and cancellation. Middleware
	// passed to NewAdapter wraps it.
	Turns transport.TurnHandler

	Sessions transport.SessionReader
	Forms    transport.FormCatalog

	// Submissions is optional; without it the submission endpoints
	// answer 501.
	Submissions transport.SubmissionStore
}

// Adapter serves the dialogue API over HTTP and WebSocket.
type Adapter struct {
	turns       transport.TurnHandler
	sessions    transport.SessionReader
	forms       transport.FormCatalog
	submissions transport.SubmissionStore
	conns       *transport.ConnRegistry
	mux         *http.ServeMux
	config      Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// WSWriteTimeout bounds writing one WebSocket frame.
	WSWriteTimeout time.Duration

	// OriginPatterns lists the origins allowed to open WebSockets. Empty
	// means same-origin only.
	OriginPatterns []string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    1 << 20, // 1 MB
		WSWriteTimeout: 10 * time.Second,
	}
}

// NewAdapter creates an HTTP adapter for b. Middleware is applied to
// b.Turns in the given order.
func NewAdapter(b Backend, cfg Config, middlewares ...transport.Middleware) *Adapter {
	turns := b.Turns
	if len(middlewares) > 0 {
		turns = transport.Chain(middlewares...)(turns)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.WSWriteTimeout <= 0 {
		cfg.WSWriteTimeout = DefaultConfig().WSWriteTimeout
	}

	a := &Adapter{
		turns:       turns,
		sessions:    b.Sessions,
		forms:       b.Forms,
		submissions: b.Submissions,
		conns:       transport.NewConnRegistry(),
		mux:         http.NewServeMux(),
		config:      cfg,
	}

	a.mux.HandleFunc("POST /v1/sessions", a.handleStartSession)
	a.mux.HandleFunc("POST /v1/sessions/{id}/messages", a.handleReply)
	a.mux.HandleFunc("GET /v1/sessions/{id}/ws", a.handleWebSocket)
	a.mux.HandleFunc("GET /v1/sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("DELETE /v1/sessions/{id}", a.handleCancelSession)
	a.mux.HandleFunc("GET /v1/forms", a.handleListForms)
	a.mux.HandleFunc("GET /v1/forms/{id}", a.handleGetForm)
	a.mux.HandleFunc("GET /v1/submissions", a.handleListSubmissions)
	a.mux.HandleFunc("GET /v1/submissions/{id}", a.handleGetSubmission)

	return a
}

// Handle registers an additional handler on the adapter's mux, for
// operational endpoints such as health checks and metrics.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// Conns exposes the registry of live WebSocket connections.
func (a *Adapter) Conns() *transport.ConnRegistry {
	return a.conns
}

// handleStartSession handles POST /v1/sessions.
func (a *Adapter) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	turn, err := a.turns.HandleInbound(r.Context(), &transport.Inbound{
		Kind:  transport.InboundStart,
		Start: &req,
	})
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusCreated, turn)
}

// handleReply handles POST /v1/sessions/{id}/messages. Input for a session
// that already ended is acknowledged with an empty turn rather than
// rejected, so a client racing the end of a dialogue does not see an error.
func (a *Adapter) handleReply(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req api.ReplyRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	turn, err := a.turns.HandleInbound(r.Context(), &transport.Inbound{
		Kind:      transport.InboundReply,
		SessionID: id,
		Text:      req.Text,
	})
	if err != nil {
		apiErr := transport.AsAPIError(err)
		if errors.Is(apiErr, api.ErrSessionClosed) {
			writeJSON(w, http.StatusOK, acknowledge(id, apiErr))
			return
		}
		transport.WriteAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// handleGetSession handles GET /v1/sessions/{id}.
func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	view, err := a.sessions.Session(r.Context(), id)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCancelSession handles DELETE /v1/sessions/{id}. An open WebSocket
// for the session is closed as well.
func (a *Adapter) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	turn, err := a.turns.HandleInbound(r.Context(), &transport.Inbound{
		Kind:      transport.InboundCancel,
		SessionID: id,
	})
	a.conns.Cancel(id)
	if err != nil {
		apiErr := transport.AsAPIError(err)
		if errors.Is(apiErr, api.ErrSessionClosed) {
			writeJSON(w, http.StatusOK, acknowledge(id, apiErr))
			return
		}
		transport.WriteAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

type formList struct {
	Object string            `json:"object"`
	Data   []api.FormSummary `json:"data"`
}

// handleListForms handles GET /v1/forms.
func (a *Adapter) handleListForms(w http.ResponseWriter, r *http.Request) {
	forms := a.forms.Forms(r.Context())
	if forms == nil {
		forms = []api.FormSummary{}
	}
	writeJSON(w, http.StatusOK, formList{Object: "list", Data: forms})
}

// handleGetForm handles GET /v1/forms/{id}.
func (a *Adapter) handleGetForm(w http.ResponseWriter, r *http.Request) {
	f, err := a.forms.Form(r.Context(), r.PathValue("id"))
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// handleListSubmissions handles GET /v1/submissions.
func (a *Adapter) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if a.submissions == nil {
		notConfigured(w, "submission listing")
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	list, err := a.submissions.ListSubmissions(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetSubmission handles GET /v1/submissions/{id}.
func (a *Adapter) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	if a.submissions == nil {
		notConfigured(w, "submission retrieval")
		return
	}
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	sub, err := a.submissions.GetSubmission(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("submission for session "+id+" not found"))
			return
		}
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// decodeBody validates the content type, limits the body size and decodes
// JSON into v. It writes the error response and returns false on failure.
func (a *Adapter) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return false
	}
	return true
}

func sessionIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !api.ValidateSessionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed session ID"),
			http.StatusBadRequest,
		)
		return "", false
	}
	return id, true
}

// parseListOptions extracts pagination and filter parameters from the
// query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:   q.Get("after"),
		FormID:  q.Get("form_id"),
		Outcome: api.SessionStatus(q.Get("outcome")),
		Order:   q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if opts.Outcome != "" && !opts.Outcome.Terminal() {
		return opts, api.NewInvalidRequestError("outcome", "outcome must be 'done', 'abandoned' or 'timed_out'")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// acknowledge builds the empty turn returned for input that arrives after
// a session ended. The closed error carries the final status in its code.
func acknowledge(id string, closed *api.APIError) *api.Turn {
	return &api.Turn{
		SessionID:    id,
		Status:       api.SessionStatus(closed.Code),
		Events:       []api.Event{},
		Acknowledged: true,
	}
}

func notConfigured(w http.ResponseWriter, what string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available (no storage configured)"),
		http.StatusNotImplemented,
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
