// Package task runs pipeline work in the background. Event handlers turn
// trigger events into tasks, a bounded queue feeds a fixed pool of workers,
// and a sweeper periodically expires stuck claims and retries errored
// sessions. Tasks carry only identifiers: the database is the source of
// truth, so a lost task is recovered by the sweeper rather than persisted.
package task
