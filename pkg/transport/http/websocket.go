package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/transport"
)

// wsError is the frame sent when an inbound message cannot be processed.
type wsError struct {
	Error *api.APIError `json:"error"`
}

// handleWebSocket handles GET /v1/sessions/{id}/ws. Each inbound frame
// {"text": "..."} is one reply and is answered with one Turn frame. The
// connection closes when the session ends. A respondent who disconnects
// while the session is active abandons it.
func (a *Adapter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	view, err := a.sessions.Session(r.Context(), id)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	if view.Status.Terminal() {
		transport.WriteAPIError(w, api.NewSessionClosedError(id, view.Status))
		return
	}

	// Server read/write timeouts must not apply to a long-lived connection.
	rc := http.NewResponseController(w)
	rc.SetReadDeadline(time.Time{})
	rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.config.OriginPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer conn.CloseNow()

	// Detached from the request so that only the registry (a DELETE or a
	// newer connection) and this handler end the connection.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	release := a.conns.Register(id, cancel)
	defer release()

	debug.Log("transport", "websocket opened", "session_id", id)

	for {
		var msg api.ReplyRequest
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			a.wsDisconnected(ctx, conn, id, err)
			return
		}

		turn, err := a.turns.HandleInbound(ctx, &transport.Inbound{
			Kind:      transport.InboundReply,
			SessionID: id,
			Text:      msg.Text,
		})
		if err != nil {
			apiErr := transport.AsAPIError(err)
			switch {
			case errors.Is(apiErr, api.ErrSessionClosed):
				a.wsWrite(ctx, conn, acknowledge(id, apiErr))
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			case errors.Is(apiErr, api.ErrSessionNotFound):
				a.wsWrite(ctx, conn, wsError{Error: apiErr})
				conn.Close(websocket.StatusPolicyViolation, "session not found")
				return
			default:
				if !a.wsWrite(ctx, conn, wsError{Error: apiErr}) {
					return
				}
				continue
			}
		}

		if !a.wsWrite(ctx, conn, turn) {
			return
		}
		if turn.Status.Terminal() {
			conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		}
	}
}

// wsDisconnected handles the end of the read loop. When the respondent
// went away, the session is abandoned; when the registry cancelled the
// connection, the session was already dealt with elsewhere.
func (a *Adapter) wsDisconnected(ctx context.Context, conn *websocket.Conn, id string, err error) {
	if ctx.Err() != nil {
		conn.Close(websocket.StatusGoingAway, "session closed")
		debug.Log("transport", "websocket closed by server", "session_id", id)
		return
	}

	if websocket.CloseStatus(err) == -1 {
		slog.Warn("websocket read error", "session_id", id, "error", err)
	} else {
		debug.Log("transport", "websocket closed by client", "session_id", id, "status", websocket.CloseStatus(err))
	}

	_, cerr := a.turns.HandleInbound(ctx, &transport.Inbound{
		Kind:      transport.InboundCancel,
		SessionID: id,
	})
	if cerr != nil && !errors.Is(cerr, api.ErrSessionClosed) {
		slog.Warn("abandoning session after disconnect failed", "session_id", id, "error", cerr)
	}
}

// wsWrite sends one JSON frame and reports whether it succeeded.
func (a *Adapter) wsWrite(ctx context.Context, conn *websocket.Conn, v any) bool {
	ctx, cancel := context.WithTimeout(ctx, a.config.WSWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		debug.Log("transport", "websocket write failed", "error", err)
		return false
	}
	return true
}
