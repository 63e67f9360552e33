// Package pipeline runs a session's generation as an ordered list of steps:
// ensure the content item, ensure the quiz container, ensure the question
// set, then generate. Every step reports success, skipped or failed and the
// coordinator stops at the first result that is not a success, translating it
// into a session status.
//
// The coordinator is the only code that moves sessions out of active. It is
// used unchanged by the background task runner and by the synchronous run
// command.
package pipeline
