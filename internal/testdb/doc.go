// Package testdb opens migrated databases for tests.
//
// New returns an isolated in-memory SQLite database with every store wired
// to it, so package tests exercise the same SQL and migrations as production
// without external services. NewPostgres does the same against the database
// named by SCRY_TEST_DB_URL and skips the test when it is unset.
//
// Each SQLite database is private to the test that opened it, so tests may
// call t.Parallel freely.
package testdb
