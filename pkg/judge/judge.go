// Package judge decides whether a respondent's raw answer satisfies a
// question and extracts the normalized value.
//
// Two implementations are provided: [LLM] delegates to a language model
// through a provider.Provider, and [Rules] applies the same type policy
// deterministically without any network call. Both return an api.Verdict
// and never an error: every failure degrades to an invalid verdict with
// reason api.ReasonValidatorError so the dialogue can continue through
// the rephrase path.
package judge

import (
	"context"
	"slices"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/form"
)

// Request is one answer to validate.
type Request struct {
	Question  form.Question
	Variables map[string]string
	RawAnswer string

	// Options is the option list captured when the session started. A
	// mismatch with the question's current options is rejected.
	Options []string
}

// Judge validates answers. Implementations must be safe for concurrent use.
type Judge interface {
	Validate(ctx context.Context, req Request) api.Verdict
}

// Func adapts an ordinary function to the Judge interface.
type Func func(ctx context.Context, req Request) api.Verdict

// Validate calls f(ctx, req).
func (f Func) Validate(ctx context.Context, req Request) api.Verdict {
	return f(ctx, req)
}

// Reasons attached to invalid verdicts produced locally.
const (
	ReasonNoMatch       = "no_match"
	ReasonAmbiguous     = "ambiguous"
	ReasonOutOfRange    = "out_of_range"
	ReasonBadFormat     = "bad_format"
	ReasonStaleOptions  = "stale_options"
	ReasonLowConfidence = "low_confidence"
)

// optionsMatch reports whether the session snapshot still equals the
// question's options.
func optionsMatch(req Request) bool {
	return slices.Equal(req.Options, form.Options(req.Question.Kind))
}
