package prompt

import (
	"strings"
	"testing"

	"github.com/rhuss/formchat/pkg/form"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{"bound", "Hi {name}, let's begin.", map[string]string{"name": "Sam"}, "Hi Sam, let's begin."},
		{"unbound left verbatim", "You are {age}.", map[string]string{"name": "Sam"}, "You are {age}."},
		{"nil vars", "Hi {name}", nil, "Hi {name}"},
		{"repeated", "{a}{a}{b}", map[string]string{"a": "x"}, "xx{b}"},
		{"not a placeholder", "{ spaced } {1bad}", map[string]string{"spaced": "no"}, "{ spaced } {1bad}"},
		{"value with braces", "{v}", map[string]string{"v": "{name}"}, "{name}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.tmpl, tt.vars); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestOpening(t *testing.T) {
	def := &form.Definition{Opening: "Hi {name}, let's begin."}
	if got := Opening(def, map[string]string{"name": "Sam"}); got != "Hi Sam, let's begin." {
		t.Errorf("Opening() = %q", got)
	}
	if got := Opening(def, nil); got != "Hi {name}, let's begin." {
		t.Errorf("Opening() without bindings = %q", got)
	}
}

func TestQuestion_FormatHints(t *testing.T) {
	tests := []struct {
		kind form.Kind
		want string
	}{
		{form.Text{}, "Tell me more?"},
		{form.MultipleChoice{Options: []string{"A", "B", "C"}}, "Tell me more? Choose one of: A, B, C."},
		{form.Dropdown{Options: []string{"X"}}, "Tell me more? Choose one of: X."},
		{form.YesNo{}, "Tell me more? Answer Yes or No."},
		{form.Rating{Min: 1, Max: 5}, "Tell me more? Reply with a whole number from 1 to 5."},
		{form.Date{}, "Tell me more? Reply with a date in YYYY-MM-DD."},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Type(), func(t *testing.T) {
			q := form.Question{ID: "q", Prompt: "Tell me more?", Kind: tt.kind}
			if got := Question(q, nil); got != tt.want {
				t.Errorf("Question() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRephrase(t *testing.T) {
	q := form.Question{
		ID:      "format",
		Prompt:  "Which format did {name} attend?",
		Kind:    form.MultipleChoice{Options: []string{"In person", "Online"}},
		Example: "Online",
	}
	vars := map[string]string{"name": "Sam"}

	first := Rephrase(q, vars, 1)
	if !strings.HasPrefix(first, "Sorry") || !strings.Contains(first, "Which format did Sam attend?") {
		t.Errorf("first rephrase = %q", first)
	}
	if strings.Contains(first, "In person") {
		t.Errorf("first rephrase should not enumerate options: %q", first)
	}

	second := Rephrase(q, vars, 2)
	for _, want := range []string{"Which format did Sam attend?", "1) In person", "2) Online", `For example: "Online".`} {
		if !strings.Contains(second, want) {
			t.Errorf("second rephrase %q missing %q", second, want)
		}
	}

	noExample := Rephrase(form.Question{Prompt: "When?", Kind: form.Date{}}, nil, 3)
	if strings.Contains(noExample, "For example: \"") {
		t.Errorf("rephrase without example = %q", noExample)
	}
	if !strings.Contains(noExample, "YYYY-MM-DD") {
		t.Errorf("date rephrase should state the format: %q", noExample)
	}
}

func TestClosing(t *testing.T) {
	questions := []form.Question{
		{ID: "enjoyed", Prompt: "Did you enjoy {course}?", Kind: form.YesNo{}},
		{ID: "rating", Prompt: "Rate it.", Kind: form.Rating{Min: 1, Max: 5}},
		{ID: "skipped", Prompt: "Skipped?", Kind: form.Text{}},
	}
	vars := map[string]string{"name": "Sam", "course": "Go 101"}
	answers := map[string]any{"rating": 4, "enjoyed": "Yes"}

	t.Run("placeholder", func(t *testing.T) {
		def := &form.Definition{Closing: "Thanks {name}!\n{summary}\nBye.", Questions: questions}
		want := "Thanks Sam!\n- Did you enjoy Go 101: Yes\n- Rate it: 4\nBye."
		if got := Closing(def, vars, answers); got != want {
			t.Errorf("Closing() = %q, want %q", got, want)
		}
	})

	t.Run("appended", func(t *testing.T) {
		def := &form.Definition{Closing: "Thanks {name}!", Questions: questions}
		want := "Thanks Sam!\n\n- Did you enjoy Go 101: Yes\n- Rate it: 4"
		if got := Closing(def, vars, answers); got != want {
			t.Errorf("Closing() = %q, want %q", got, want)
		}
	})

	t.Run("no answers", func(t *testing.T) {
		def := &form.Definition{Closing: "Thanks {name}!", Questions: questions}
		if got := Closing(def, vars, nil); got != "Thanks Sam!" {
			t.Errorf("Closing() = %q", got)
		}
	})
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		value  any
		want   string
	}{
		{"question mark", "Which team will you join?", "Data", "- Which team will you join: Data"},
		{"full stop", "Rate the course.", 5, "- Rate the course: 5"},
		{"colon", "Start date:", "2026-11-02", "- Start date: 2026-11-02"},
		{"bare", "Your name", "Grace", "- Your name: Grace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &form.Definition{Questions: []form.Question{{ID: "q", Prompt: tt.prompt, Kind: form.Text{}}}}
			if got := Summary(def, nil, map[string]any{"q": tt.value}); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJudgeInstruction(t *testing.T) {
	tests := []struct {
		kind form.Kind
		want string
	}{
		{form.YesNo{}, `"Yes" or "No"`},
		{form.Rating{Min: 0, Max: 10}, "from 0 to 10"},
		{form.Dropdown{Options: []string{"Red", "Blue"}}, `"Red", "Blue"`},
		{form.Date{}, "YYYY-MM-DD"},
		{form.Text{}, "non-empty"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Type(), func(t *testing.T) {
			got := JudgeInstruction(form.Question{Kind: tt.kind})
			if !strings.Contains(got, tt.want) {
				t.Errorf("instruction missing %q", tt.want)
			}
			if !strings.Contains(got, `"valid"`) {
				t.Error("instruction must describe the JSON verdict")
			}
		})
	}
}

func TestJudgeInput(t *testing.T) {
	q := form.Question{
		Prompt:     "Which colour, {name}?",
		Kind:       form.MultipleChoice{Options: []string{"Red", "Blue"}},
		Background: "Team colours for {name}.",
	}
	got := JudgeInput(q, map[string]string{"name": "Sam"}, "the blue one")
	want := "Question: Which colour, Sam?\nExpected format: multiple_choice\nOptions: Red | Blue\nBackground: Team colours for Sam.\nAnswer: the blue one"
	if got != want {
		t.Errorf("JudgeInput() = %q, want %q", got, want)
	}
}
