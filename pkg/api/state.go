package api

import "fmt"

// ValidateSessionTransition checks whether a session status transition is valid.
// An empty "from" status represents a session that has not been created yet.
// Terminal states (done, abandoned, timed_out) do not allow outgoing transitions.
func ValidateSessionTransition(from, to SessionStatus) *APIError {
	valid := map[SessionStatus][]SessionStatus{
		"":                  {SessionStatusActive},
		SessionStatusActive: {SessionStatusDone, SessionStatusAbandoned, SessionStatusTimedOut},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
