package form

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Decode parses a form document with strict unknown-field rejection.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode form: %w", err)
	}
	return &doc, nil
}

// Check validates a decoded document and returns every problem found,
// warnings included.
func Check(doc *Document) []Problem {
	problems := validateSemantic(doc)
	return append(problems, validateDomain(doc)...)
}

// Load reads, validates, and compiles a form. Questions without an
// explicit max_attempts inherit the form's value, then defaultMaxAttempts.
func Load(r io.Reader, defaultMaxAttempts int) (*Definition, error) {
	return load(r, "", defaultMaxAttempts)
}

// LoadFile loads a form from a YAML file.
func LoadFile(path string, defaultMaxAttempts int) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open form: %w", err)
	}
	return load(bytes.NewReader(data), path, defaultMaxAttempts)
}

func load(r io.Reader, source string, defaultMaxAttempts int) (*Definition, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, &MalformedError{
			Source:   source,
			Problems: []Problem{{Phase: PhaseStructural, Message: err.Error()}},
		}
	}
	if errs := errorsOnly(Check(doc)); len(errs) > 0 {
		return nil, &MalformedError{FormID: doc.ID, Source: source, Problems: errs}
	}
	return compile(doc, defaultMaxAttempts), nil
}
