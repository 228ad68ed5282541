package prompt

import (
	"fmt"
	"strings"

	"github.com/rhuss/formchat/pkg/form"
)

const judgeBase = `You validate answers collected by a conversational form.
You receive a question, its expected answer format, and the respondent's raw answer.
Decide whether the answer satisfies the expected format and extract the normalized value.

Respond with a single JSON object and nothing else:
{"valid": true|false, "value": <normalized value or null>, "confidence": <number between 0 and 1>, "reason": "<short explanation>"}

Rules:
- Never invent an answer the respondent did not give.
- If the answer is ambiguous, off-topic, or gives more than one option, set "valid" to false.`

// JudgeInstruction returns the system instruction for validating an
// answer to q, including the type-specific policy.
func JudgeInstruction(q form.Question) string {
	return judgeBase + "\n- " + judgePolicy(q.Kind)
}

func judgePolicy(k form.Kind) string {
	switch k := k.(type) {
	case form.Text:
		return `Any non-empty reply that addresses the question is valid. "value" is the answer text with surrounding filler removed.`
	case form.MultipleChoice:
		return choicePolicy(k.Options)
	case form.Dropdown:
		return choicePolicy(k.Options)
	case form.YesNo:
		return `The answer must mean yes or no. Accept variants such as "yeah", "yep", "sure", "affirmative", "nope", "nah", "negative". "value" must be exactly "Yes" or "No".`
	case form.Rating:
		return fmt.Sprintf(`The answer must state a whole number from %d to %d. Number words count ("four" is 4). "value" must be that integer. Anything outside the range or not a whole number is invalid.`, k.Min, k.Max)
	case form.Date:
		return `The answer must identify one calendar date. "value" must be that date formatted as YYYY-MM-DD. If the year, month, or day cannot be determined, the answer is invalid.`
	default:
		panic(fmt.Sprintf("prompt: unhandled kind %T", k))
	}
}

func choicePolicy(options []string) string {
	quoted := make([]string, len(options))
	for i, o := range options {
		quoted[i] = fmt.Sprintf("%q", o)
	}
	return fmt.Sprintf(`The answer must match exactly one of these options: %s. Loose phrasing that clearly contains one option is fine, and positional references such as "the first one" map to the option at that position. "value" must be the matching option copied exactly.`, strings.Join(quoted, ", "))
}

// JudgeInput returns the user message sent to the judge for one answer.
func JudgeInput(q form.Question, vars map[string]string, rawAnswer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", Render(q.Prompt, vars))
	fmt.Fprintf(&b, "Expected format: %s\n", q.Kind.Type())
	if opts := form.Options(q.Kind); len(opts) > 0 {
		fmt.Fprintf(&b, "Options: %s\n", strings.Join(opts, " | "))
	}
	if q.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", Render(q.Background, vars))
	}
	fmt.Fprintf(&b, "Answer: %s", rawAnswer)
	return b.String()
}
