// Package form loads and validates form definitions.
//
// A form is authored as YAML and compiled into an immutable [Definition]:
// an ordered list of typed questions plus opening and closing templates
// and the names of the dynamic variables its templates reference.
//
// Loading runs three phases:
//   - structural: strict YAML decode, unknown fields rejected
//   - semantic: JSON Schema validation of the decoded document
//   - domain: rules the schema cannot express (unique question ids,
//     non-empty option lists for choice questions, rating bounds)
//
// A form that fails any phase is rejected with a [*MalformedError]; no
// session can be started against it.
//
// Question types are a closed set of [Kind] variants. Code that needs
// per-type behavior switches over the concrete types.
package form
