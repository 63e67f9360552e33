// Package store defines the persistence contracts of the pipeline: create-or-
// return upserts keyed by natural keys, row reads, and the atomic conditional
// updates every state machine uses to claim work. Implementations live under
// internal/platform.
package store
