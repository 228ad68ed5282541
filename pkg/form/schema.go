package form

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaID = "https://github.com/rhuss/formchat/schemas/form-v1.json"

// GenerateJSONSchema produces a JSON Schema document for form YAML files
// from the Document struct.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.RequiredFromJSONSchemaTags = true

	s := r.Reflect(&Document{})
	s.ID = schemaID
	s.Title = "formchat form v1"
	s.Description = "Schema for formchat form definition YAML documents"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*sjsonschema.Schema, error) {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return nil, err
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(schemaID, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(schemaID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
})

// validateSemantic checks the decoded document against the JSON Schema.
func validateSemantic(doc *Document) []Problem {
	sch, err := compiledSchema()
	if err != nil {
		return []Problem{{Phase: PhaseSemantic, Message: err.Error()}}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return []Problem{{Phase: PhaseSemantic, Message: fmt.Sprintf("marshal for schema validation: %v", err)}}
	}
	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return []Problem{{Phase: PhaseSemantic, Message: fmt.Sprintf("unmarshal document: %v", err)}}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []Problem{{Phase: PhaseSemantic, Message: err.Error()}}
	}
	var problems []Problem
	for _, cause := range flattenValidationErrors(ve) {
		problems = append(problems, Problem{
			Phase:   PhaseSemantic,
			Path:    instancePath(cause.InstanceLocation),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return problems
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// instancePath renders a JSON pointer location as "questions[1].type".
func instancePath(loc []string) string {
	var out string
	for _, seg := range loc {
		if isIndex(seg) {
			out += "[" + seg + "]"
			continue
		}
		if out != "" {
			out += "."
		}
		out += seg
	}
	return out
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
