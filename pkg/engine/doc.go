// Package engine runs form conversations. The Engine implements
// transport.TurnHandler: every inbound event (start, reply, cancel) is
// applied to one session under that session's lock, producing the
// assistant turn to send back.
//
// The engine owns the stage machine (opening, one stage per question,
// closing), the attempt and rephrase policy, and the single hand-off of
// the finished answer set to a submission store. Answer validation is
// delegated to an injected judge.Judge; the store is optional.
package engine
