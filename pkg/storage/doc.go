// Package storage holds what the submission store adapters share.
//
// Adapters (memory, postgres, redis, sqlite) implement the
// transport.SubmissionStore interface defined in pkg/transport/handler.go.
// This package contains only sentinel errors and helpers, not the
// interface itself.
package storage
