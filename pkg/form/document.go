package form

// Document is the authored YAML shape of a form. It is compiled into a
// Definition after validation.
type Document struct {
	ID          string             `yaml:"id"                     json:"id"                     jsonschema:"required,pattern=^[A-Za-z0-9][A-Za-z0-9_.-]*$"`
	Title       string             `yaml:"title,omitempty"        json:"title,omitempty"`
	Opening     string             `yaml:"opening"                json:"opening"                jsonschema:"required,minLength=1"`
	Closing     string             `yaml:"closing"                json:"closing"                jsonschema:"required,minLength=1"`
	Variables   []string           `yaml:"variables,omitempty"    json:"variables,omitempty"    jsonschema:"uniqueItems=true"`
	MaxAttempts int                `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty" jsonschema:"minimum=1"`
	Questions   []QuestionDocument `yaml:"questions"              json:"questions"              jsonschema:"required"`
}

// QuestionDocument is the authored YAML shape of one question.
type QuestionDocument struct {
	ID          string   `yaml:"id"                     json:"id"                     jsonschema:"required,pattern=^[A-Za-z0-9][A-Za-z0-9_.-]*$"`
	Prompt      string   `yaml:"prompt"                 json:"prompt"                 jsonschema:"required,minLength=1"`
	Type        string   `yaml:"type"                   json:"type"                   jsonschema:"required,enum=text,enum=multiple_choice,enum=dropdown,enum=yes_no,enum=rating,enum=date"`
	Options     []string `yaml:"options,omitempty"      json:"options,omitempty"`
	Min         *int     `yaml:"min,omitempty"          json:"min,omitempty"`
	Max         *int     `yaml:"max,omitempty"          json:"max,omitempty"`
	Required    bool     `yaml:"required,omitempty"     json:"required,omitempty"`
	MaxAttempts int      `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty" jsonschema:"minimum=1"`
	Background  string   `yaml:"background,omitempty"   json:"background,omitempty"`
	Example     string   `yaml:"example,omitempty"      json:"example,omitempty"`
}
