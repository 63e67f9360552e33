// Package postgres opens PostgreSQL connections through the pgx stdlib
// driver and supplies the dialect the shared SQL stores use against it,
// including the mapping of PostgreSQL error codes onto store errors.
package postgres
