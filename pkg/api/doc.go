// Package api defines the wire and data types shared by the formchat
// packages: transcript entries, judge verdicts, answer attempts, turns
// returned to the respondent, persisted submissions, and the structured
// error taxonomy.
//
// The package has no external dependencies and performs no I/O.
//
// Core types:
//   - [Verdict]: outcome of validating one answer
//   - [Attempt]: one raw answer plus its verdict and the prompt that was shown
//   - [Turn]: assistant output produced by starting or replying to a session
//   - [Submission]: the final (or partial) answer set handed to persistence
//   - [APIError]: structured error with type, code, param, and message
package api
