// Package admission enforces the per-user cap on sessions that consume
// generation capacity.
//
// A session holds a slot while it is active or errored. Slots are counted in
// the user_admissions row and acquired in the same transaction as the
// session's queued to active claim, so concurrent fills can never admit more
// sessions than the cap. Settling or archiving a session releases its slot
// and promotes the user's oldest queued session (FIFO).
package admission
