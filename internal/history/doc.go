// Package history keeps a SQLite ledger of finished batches and their items
// for the history listing. It is diagnostic only: batches are never resumed
// from it.
package history
