// Package events carries pipeline triggers and session lifecycle
// notifications between components without direct dependencies.
//
// Services and the admission queue emit events; the task package turns
// trigger events into background runs, and optional publishers forward
// lifecycle events to external consumers. Emitting never waits for the
// triggered work to finish.
package events
