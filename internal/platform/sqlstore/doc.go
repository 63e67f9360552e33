// Package sqlstore implements the store interfaces with hand-written SQL that
// runs on both PostgreSQL and SQLite. Every status change is a single
// conditional UPDATE ... RETURNING, which is what makes claims atomic without
// any in-process locking. Queries are written with $N placeholders and
// rebound by the Dialect.
package sqlstore
