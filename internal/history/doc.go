// Package history keeps an append-only SQLite journal of terminal queue
// outcomes (completed, failed, cancelled, installed, install_failed,
// removed). The in-memory queue is not persisted; the journal only serves
// the `vrdl history` view.
package history
