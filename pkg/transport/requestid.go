package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rhuss/formchat/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// inbound event. If the context already carries one (set by the HTTP
// adapter from the X-Request-ID header), that value is kept.
func RequestID() Middleware {
	return func(next TurnHandler) TurnHandler {
		return TurnHandlerFunc(func(ctx context.Context, in *Inbound) (*api.Turn, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, generateRequestID())
			}
			return next.HandleInbound(ctx, in)
		})
	}
}

func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
