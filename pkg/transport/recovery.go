package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/formchat/pkg/api"
)

// Recovery returns middleware that converts a panic in the handler into a
// server error. The session that panicked may be left mid-turn; other
// sessions are unaffected.
func Recovery() Middleware {
	return func(next TurnHandler) TurnHandler {
		return TurnHandlerFunc(func(ctx context.Context, in *Inbound) (turn *api.Turn, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in turn handler",
						"kind", in.Kind,
						"session_id", in.SessionID,
						"panic", r,
					)
					turn = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.HandleInbound(ctx, in)
		})
	}
}
