// Package prompt turns form questions and dynamic variable bindings into
// the text shown to respondents and the instructions sent to the judge.
// Every function is pure.
package prompt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rhuss/formchat/pkg/form"
)

// SummaryPlaceholder marks where the answer summary goes in a closing template.
const SummaryPlaceholder = "{summary}"

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render replaces every {name} with its bound value. Placeholders without
// a binding are left verbatim.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Opening renders the opening message of a form.
func Opening(def *form.Definition, vars map[string]string) string {
	return Render(def.Opening, vars)
}

// Question renders a question prompt followed by its format hint.
func Question(q form.Question, vars map[string]string) string {
	text := Render(q.Prompt, vars)
	if hint := FormatHint(q.Kind); hint != "" {
		text += " " + hint
	}
	return text
}

// FormatHint returns the short answer-format hint shown with a question.
func FormatHint(k form.Kind) string {
	switch k := k.(type) {
	case form.Text:
		return ""
	case form.MultipleChoice:
		return "Choose one of: " + strings.Join(k.Options, ", ") + "."
	case form.Dropdown:
		return "Choose one of: " + strings.Join(k.Options, ", ") + "."
	case form.YesNo:
		return "Answer Yes or No."
	case form.Rating:
		return fmt.Sprintf("Reply with a whole number from %d to %d.", k.Min, k.Max)
	case form.Date:
		return "Reply with a date in YYYY-MM-DD."
	default:
		panic(fmt.Sprintf("prompt: unhandled kind %T", k))
	}
}

// Explain spells out every accepted answer for a kind. It is used once a
// respondent has failed more than once.
func Explain(k form.Kind) string {
	switch k := k.(type) {
	case form.Text:
		return "Please reply with a short answer to the question."
	case form.MultipleChoice:
		return "Please pick exactly one of these options: " + numbered(k.Options) + ". You can also reply with the option's number."
	case form.Dropdown:
		return "Please pick exactly one of these options: " + numbered(k.Options) + ". You can also reply with the option's number."
	case form.YesNo:
		return "Please answer with just Yes or No."
	case form.Rating:
		return fmt.Sprintf("Please reply with a single whole number between %d and %d.", k.Min, k.Max)
	case form.Date:
		return "Please give the date as year-month-day in the form YYYY-MM-DD, for example 2024-03-15."
	default:
		panic(fmt.Sprintf("prompt: unhandled kind %T", k))
	}
}

// Rephrase renders the text shown after failedAttempts invalid answers.
// The first failure restates the question with an apology; later failures
// also list the valid options or format and the question's example.
func Rephrase(q form.Question, vars map[string]string, failedAttempts int) string {
	question := Render(q.Prompt, vars)
	if failedAttempts <= 1 {
		return "Sorry, I didn't quite get that. " + question
	}
	text := "Sorry, I still couldn't use that answer. " + question + " " + Explain(q.Kind)
	if q.Example != "" {
		text += fmt.Sprintf(" For example: %q.", q.Example)
	}
	return text
}

// Closing renders the closing message with a summary of the answers in
// form order. The summary replaces {summary} when the template has one and
// is appended otherwise.
func Closing(def *form.Definition, vars map[string]string, answers map[string]any) string {
	summary := Summary(def, vars, answers)
	if strings.Contains(def.Closing, SummaryPlaceholder) {
		bound := make(map[string]string, len(vars)+1)
		for k, v := range vars {
			bound[k] = v
		}
		bound["summary"] = summary
		return Render(def.Closing, bound)
	}
	text := strings.TrimRight(Render(def.Closing, vars), "\n")
	if summary == "" {
		return text
	}
	return text + "\n\n" + summary
}

// Summary lists each answered question as "question: value", with the
// prompt's trailing punctuation dropped.
func Summary(def *form.Definition, vars map[string]string, answers map[string]any) string {
	var lines []string
	for _, q := range def.Questions {
		v, ok := answers[q.ID]
		if !ok {
			continue
		}
		label := strings.TrimRight(Render(q.Prompt, vars), " ?.:!")
		lines = append(lines, "- "+label+": "+FormatValue(v))
	}
	return strings.Join(lines, "\n")
}

// FormatValue renders a normalized answer value for display.
func FormatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func numbered(options []string) string {
	parts := make([]string, len(options))
	for i, o := range options {
		parts[i] = fmt.Sprintf("%d) %s", i+1, o)
	}
	return strings.Join(parts, ", ")
}
