package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/debug"
	"github.com/rhuss/formchat/pkg/observability"
	"github.com/rhuss/formchat/pkg/prompt"
	"github.com/rhuss/formchat/pkg/provider"
)

// Defaults for the LLM judge.
const (
	DefaultTimeout    = 8 * time.Second
	DefaultMaxRetries = 1
)

// LLM validates answers with a language model.
type LLM struct {
	provider       provider.Provider
	model          string
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	minConfidence  float64
	temperature    float64
	logger         *slog.Logger
}

var _ Judge = (*LLM)(nil)

// Option configures an LLM judge.
type Option func(*LLM)

// WithTimeout bounds one Validate call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(j *LLM) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient backend failure is retried.
func WithMaxRetries(n int) Option {
	return func(j *LLM) {
		if n >= 0 {
			j.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the first retry delay.
func WithInitialBackoff(d time.Duration) Option {
	return func(j *LLM) {
		if d > 0 {
			j.initialBackoff = d
		}
	}
}

// WithMinConfidence rejects valid verdicts whose confidence is below c.
func WithMinConfidence(c float64) Option {
	return func(j *LLM) {
		j.minConfidence = c
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *LLM) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewLLM creates a judge that calls model through p.
func NewLLM(p provider.Provider, model string, opts ...Option) *LLM {
	j := &LLM{
		provider:       p,
		model:          model,
		timeout:        DefaultTimeout,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: 200 * time.Millisecond,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Validate implements Judge. It never returns an error: timeouts, backend
// failures, and unparseable output all yield a validator_error verdict.
func (j *LLM) Validate(ctx context.Context, req Request) api.Verdict {
	q := req.Question
	if !optionsMatch(req) {
		j.logger.Warn("question options changed since session start",
			"question", q.ID, "snapshot", req.Options)
		return api.InvalidVerdict(api.ReasonValidatorError)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	name := j.provider.Name()
	start := time.Now()
	resp, err := j.complete(ctx, &provider.Request{
		Model: j.model,
		Messages: []provider.Message{
			{Role: "system", Content: prompt.JudgeInstruction(q)},
			{Role: "user", Content: prompt.JudgeInput(q, req.Variables, req.RawAnswer)},
		},
		Temperature: &j.temperature,
		JSONOutput:  true,
	})
	observability.JudgeLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.JudgeRequestsTotal.WithLabelValues(name, "error").Inc()
		j.logger.Warn("judge backend call failed", "question", q.ID, "error", err)
		return api.InvalidVerdict(api.ReasonValidatorError)
	}
	observability.JudgeRequestsTotal.WithLabelValues(name, "success").Inc()
	observability.JudgeTokensTotal.WithLabelValues(name, "input").Add(float64(resp.Usage.PromptTokens))
	observability.JudgeTokensTotal.WithLabelValues(name, "output").Add(float64(resp.Usage.CompletionTokens))

	debug.Trace("judge", "model output", "question", q.ID, "content", resp.Content)

	pv, err := parseVerdict(resp.Content)
	if err != nil {
		j.logger.Warn("judge output is not a verdict", "question", q.ID,
			"output", debug.Truncate(resp.Content, 200))
		return api.InvalidVerdict(api.ReasonValidatorError)
	}
	return j.verdict(req, pv)
}

// verdict turns the model's claim into a verdict, re-checking the value
// against the type policy.
func (j *LLM) verdict(req Request, pv parsedVerdict) api.Verdict {
	confidence := 0.0
	if pv.confidence != nil {
		confidence = min(max(*pv.confidence, 0), 1)
	} else if pv.valid {
		confidence = 1
	}

	if !pv.valid {
		reason := pv.reason
		if reason == "" {
			reason = ReasonNoMatch
		}
		return api.Verdict{Valid: false, Confidence: confidence, Reason: reason}
	}

	value := pv.value
	if value == nil {
		value = req.RawAnswer
	}
	normalized, ok := Normalize(req.Question.Kind, value)
	if !ok {
		debug.Log("judge", "model value rejected by type policy", "question", req.Question.ID, "value", value)
		return api.Verdict{Valid: false, Confidence: 0, Reason: ReasonBadFormat}
	}
	if confidence < j.minConfidence {
		return api.Verdict{Valid: false, Confidence: confidence, Reason: ReasonLowConfidence}
	}
	return api.Verdict{Valid: true, Value: normalized, Confidence: confidence, Reason: pv.reason}
}

// complete calls the backend, retrying transient failures with exponential
// backoff until the context deadline.
func (j *LLM) complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = j.initialBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(j.maxRetries)), ctx)

	var resp *provider.Response
	op := func() error {
		r, err := j.provider.Complete(ctx, req)
		if err != nil {
			if provider.IsTransient(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		debug.Log("judge", "retrying backend call", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("judge timed out: %w", ctx.Err())
		}
		return nil, err
	}
	return resp, nil
}
