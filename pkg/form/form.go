package form

import "github.com/rhuss/formchat/pkg/api"

// DefaultMaxAttempts applies when neither the question nor the form sets one.
const DefaultMaxAttempts = 3

// Definition is an immutable, compiled form. It is safe to share across
// sessions.
type Definition struct {
	ID        string
	Title     string
	Opening   string
	Closing   string
	Variables []string
	Questions []Question
}

// Question is one typed question of a form.
type Question struct {
	ID          string
	Prompt      string
	Kind        Kind
	Required    bool
	MaxAttempts int
	Background  string
	Example     string
}

// Stage returns the transcript stage label of the question.
func (q Question) Stage() string {
	return api.QuestionStage(q.ID)
}

// Question returns the question with the given id.
func (d *Definition) Question(id string) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Summary describes the form for listings.
func (d *Definition) Summary() api.FormSummary {
	return api.FormSummary{
		ID:        d.ID,
		Title:     d.Title,
		Questions: len(d.Questions),
		Variables: d.Variables,
	}
}
