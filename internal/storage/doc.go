// Package storage provides local key-value persistence behind a minimal
// KV interface, with a SQLite-backed implementation for durable state and
// an in-memory implementation for tests and ephemeral runs.
package storage
