package form

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/rhuss/formchat/pkg/api"
)

// Validation phases.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"
)

// Problem is one validation finding with its location in the document.
// Warnings do not make a form malformed.
type Problem struct {
	Phase   string `json:"phase"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Warning bool   `json:"warning,omitempty"`
}

func (p Problem) String() string {
	if p.Path == "" {
		return fmt.Sprintf("[%s] %s", p.Phase, p.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", p.Phase, p.Path, p.Message)
}

// MalformedError reports every error-level problem found in a form.
type MalformedError struct {
	FormID   string
	Source   string
	Problems []Problem
}

func (e *MalformedError) Error() string {
	var b strings.Builder
	name := e.FormID
	if name == "" {
		name = e.Source
	}
	fmt.Fprintf(&b, "malformed form %q:", name)
	for _, p := range e.Problems {
		b.WriteString("\n  ")
		b.WriteString(p.String())
	}
	return b.String()
}

// Unwrap exposes the form error as an api malformed_form error.
func (e *MalformedError) Unwrap() error {
	msg := "form definition is invalid"
	if len(e.Problems) > 0 {
		msg = e.Problems[0].String()
	}
	return api.NewMalformedFormError(e.FormID, msg)
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// validateDomain applies the rules the schema cannot express.
func validateDomain(doc *Document) []Problem {
	var problems []Problem
	add := func(path, format string, args ...any) {
		problems = append(problems, Problem{Phase: PhaseDomain, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	warn := func(path, format string, args ...any) {
		problems = append(problems, Problem{Phase: PhaseDomain, Path: path, Message: fmt.Sprintf(format, args...), Warning: true})
	}

	declared := make(map[string]bool, len(doc.Variables))
	for _, v := range doc.Variables {
		declared[v] = true
	}
	checkPlaceholders := func(path, tmpl string) {
		for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
			name := m[1]
			if name == "summary" && path == "closing" {
				continue
			}
			if !declared[name] {
				warn(path, "placeholder {%s} is not a declared variable and will render verbatim", name)
			}
		}
	}
	checkPlaceholders("opening", doc.Opening)
	checkPlaceholders("closing", doc.Closing)

	seen := make(map[string]int, len(doc.Questions))
	for i, q := range doc.Questions {
		path := fmt.Sprintf("questions[%d]", i)
		if prev, dup := seen[q.ID]; dup {
			add(path+".id", "duplicate question id %q (first used by questions[%d])", q.ID, prev)
		} else {
			seen[q.ID] = i
		}
		checkPlaceholders(path+".prompt", q.Prompt)

		switch q.Type {
		case TypeMultipleChoice, TypeDropdown:
			if len(q.Options) == 0 {
				add(path+".options", "%s question requires at least one option", q.Type)
			}
			for j, opt := range q.Options {
				if strings.TrimSpace(opt) == "" {
					add(fmt.Sprintf("%s.options[%d]", path, j), "option must not be blank")
				} else if slices.IndexFunc(q.Options[:j], func(o string) bool { return strings.EqualFold(o, opt) }) >= 0 {
					add(fmt.Sprintf("%s.options[%d]", path, j), "duplicate option %q", opt)
				}
			}
		default:
			if len(q.Options) > 0 {
				add(path+".options", "options are only allowed on multiple_choice and dropdown questions")
			}
		}

		if q.Type == TypeRating {
			lo, hi := ratingBounds(q)
			if lo >= hi {
				add(path, "rating min (%d) must be less than max (%d)", lo, hi)
			}
		} else if q.Min != nil || q.Max != nil {
			add(path, "min and max are only allowed on rating questions")
		}
	}
	return problems
}

// Default rating scale when bounds are omitted.
const (
	DefaultRatingMin = 1
	DefaultRatingMax = 5
)

func ratingBounds(q QuestionDocument) (int, int) {
	lo, hi := DefaultRatingMin, DefaultRatingMax
	if q.Min != nil {
		lo = *q.Min
	}
	if q.Max != nil {
		hi = *q.Max
	}
	return lo, hi
}

// compile turns a validated document into a Definition.
func compile(doc *Document, defaultMaxAttempts int) *Definition {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = DefaultMaxAttempts
	}
	formMax := doc.MaxAttempts
	if formMax < 1 {
		formMax = defaultMaxAttempts
	}

	def := &Definition{
		ID:        doc.ID,
		Title:     doc.Title,
		Opening:   doc.Opening,
		Closing:   doc.Closing,
		Variables: slices.Clone(doc.Variables),
		Questions: make([]Question, 0, len(doc.Questions)),
	}
	for _, qd := range doc.Questions {
		q := Question{
			ID:          qd.ID,
			Prompt:      qd.Prompt,
			Required:    qd.Required,
			MaxAttempts: qd.MaxAttempts,
			Background:  qd.Background,
			Example:     qd.Example,
		}
		if q.MaxAttempts < 1 {
			q.MaxAttempts = formMax
		}
		switch qd.Type {
		case TypeText:
			q.Kind = Text{}
		case TypeMultipleChoice:
			q.Kind = MultipleChoice{Options: slices.Clone(qd.Options)}
		case TypeDropdown:
			q.Kind = Dropdown{Options: slices.Clone(qd.Options)}
		case TypeYesNo:
			q.Kind = YesNo{}
		case TypeRating:
			lo, hi := ratingBounds(qd)
			q.Kind = Rating{Min: lo, Max: hi}
		case TypeDate:
			q.Kind = Date{}
		}
		def.Questions = append(def.Questions, q)
	}
	return def
}

func errorsOnly(problems []Problem) []Problem {
	var out []Problem
	for _, p := range problems {
		if !p.Warning {
			out = append(out, p)
		}
	}
	return out
}
