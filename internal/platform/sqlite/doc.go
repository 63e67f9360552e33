// Package sqlite opens embedded SQLite databases through the pure-Go modernc
// driver for local runs and tests, and supplies the dialect that lets the
// shared SQL stores run against them.
package sqlite
