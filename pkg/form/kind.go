package form

import "fmt"

// Type names used in form documents.
const (
	TypeText           = "text"
	TypeMultipleChoice = "multiple_choice"
	TypeDropdown       = "dropdown"
	TypeYesNo          = "yes_no"
	TypeRating         = "rating"
	TypeDate           = "date"
)

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02"

// Kind is the closed set of question types. The unexported method keeps
// implementations inside this package.
type Kind interface {
	// Type returns the document type name.
	Type() string
	isKind()
}

// Text accepts any non-empty reply.
type Text struct{}

// MultipleChoice requires one of Options.
type MultipleChoice struct {
	Options []string
}

// Dropdown requires one of Options. It differs from MultipleChoice only
// in how a UI would present it.
type Dropdown struct {
	Options []string
}

// YesNo accepts yes or no and their lexical variants.
type YesNo struct{}

// Rating requires a whole number in [Min, Max].
type Rating struct {
	Min int
	Max int
}

// Date requires a calendar date in YYYY-MM-DD.
type Date struct{}

func (Text) Type() string           { return TypeText }
func (MultipleChoice) Type() string { return TypeMultipleChoice }
func (Dropdown) Type() string       { return TypeDropdown }
func (YesNo) Type() string          { return TypeYesNo }
func (Rating) Type() string         { return TypeRating }
func (Date) Type() string           { return TypeDate }

func (Text) isKind()           {}
func (MultipleChoice) isKind() {}
func (Dropdown) isKind()       {}
func (YesNo) isKind()          {}
func (Rating) isKind()         {}
func (Date) isKind()           {}

// Options returns the enumerated options of a choice kind, or nil.
func Options(k Kind) []string {
	switch k := k.(type) {
	case MultipleChoice:
		return k.Options
	case Dropdown:
		return k.Options
	case Text, YesNo, Rating, Date:
		return nil
	default:
		panic(fmt.Sprintf("form: unhandled kind %T", k))
	}
}

// YesNoOptions are the normalized values of a yes/no answer.
var YesNoOptions = []string{"Yes", "No"}
