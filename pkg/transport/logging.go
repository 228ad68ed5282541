package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/formchat/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// inbound event: kind, session, resulting status, duration and request ID.
// Respondent-side errors (unknown or closed sessions, bad requests) are
// logged at WARN, everything else at ERROR.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next TurnHandler) TurnHandler {
		return TurnHandlerFunc(func(ctx context.Context, in *Inbound) (*api.Turn, error) {
			start := time.Now()

			turn, err := next.HandleInbound(ctx, in)

			sessionID := in.SessionID
			if turn != nil {
				sessionID = turn.SessionID
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("kind", string(in.Kind)),
				slog.String("session_id", sessionID),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				level := slog.LevelError
				var apiErr *api.APIError
				if errors.As(err, &apiErr) && HTTPStatusFromError(apiErr) < 500 {
					level = slog.LevelWarn
				}
				logger.LogAttrs(ctx, level, "turn failed", attrs...)
				return turn, err
			}

			attrs = append(attrs,
				slog.String("status", string(turn.Status)),
				slog.Int("events", len(turn.Events)),
			)
			logger.LogAttrs(ctx, slog.LevelInfo, "turn completed", attrs...)
			return turn, nil
		})
	}
}
