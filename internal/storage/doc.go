// Package storage is the SQLite persistence layer for users, families,
// tasks and dispatch markers.
//
// Dispatch markers are the scheduler's idempotency guard: a marker row is
// inserted at most once per (task, trigger kind, occurrence date), enforced
// by the table's primary key.
package storage
