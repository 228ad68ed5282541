// Package provider defines the interface the judge uses to reach an LLM
// backend. Adapters (see openaicompat) handle the wire protocol; the judge
// only sees Request and Response.
package provider
