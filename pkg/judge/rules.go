package judge

import (
	"context"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
)

// Rules is a deterministic judge that applies the type policy locally.
// It backs offline runs and tests, and the mock judge backend.
type Rules struct{}

var _ Judge = Rules{}

// Validate implements Judge.
func (Rules) Validate(_ context.Context, req Request) api.Verdict {
	if !optionsMatch(req) {
		return api.InvalidVerdict(api.ReasonValidatorError)
	}
	value, reason := Match(req.Question.Kind, req.RawAnswer)
	if reason != "" {
		debug.Log("judge", "rules verdict", "question", req.Question.ID, "valid", false, "reason", reason)
		return api.InvalidVerdict(reason)
	}
	debug.Log("judge", "rules verdict", "question", req.Question.ID, "valid", true, "value", value)
	return api.Verdict{Valid: true, Value: value, Confidence: 1, Reason: "matched"}
}
