package api

import (
	"strings"
	"testing"
)

func TestValidateSessionTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		wantErr bool
	}{
		{name: "initial to active", from: "", to: SessionStatusActive},
		{name: "active to done", from: SessionStatusActive, to: SessionStatusDone},
		{name: "active to abandoned", from: SessionStatusActive, to: SessionStatusAbandoned},
		{name: "active to timed_out", from: SessionStatusActive, to: SessionStatusTimedOut},

		{name: "initial to done", from: "", to: SessionStatusDone, wantErr: true},
		{name: "done to active", from: SessionStatusDone, to: SessionStatusActive, wantErr: true},
		{name: "done to abandoned", from: SessionStatusDone, to: SessionStatusAbandoned, wantErr: true},
		{name: "abandoned to done", from: SessionStatusAbandoned, to: SessionStatusDone, wantErr: true},
		{name: "timed_out to active", from: SessionStatusTimedOut, to: SessionStatusActive, wantErr: true},
		{name: "active to active", from: SessionStatusActive, to: SessionStatusActive, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionTransition(tt.from, tt.to)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ValidateSessionTransition(%q, %q) = nil, want error", tt.from, tt.to)
				} else if !strings.Contains(err.Message, "invalid transition") {
					t.Errorf("error message %q does not contain \"invalid transition\"", err.Message)
				}
			} else if err != nil {
				t.Errorf("ValidateSessionTransition(%q, %q) = %v, want nil", tt.from, tt.to, err)
			}
		})
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	for _, s := range []SessionStatus{SessionStatusDone, SessionStatusAbandoned, SessionStatusTimedOut} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	if SessionStatusActive.Terminal() {
		t.Error("active.Terminal() = true, want false")
	}
}
