// Package stores provides the persistence layer for wash cycle history.
// It includes a SQLite-based store with WAL mode, embedded migrations,
// and queries for recording, listing, and counting cycles.
package stores
