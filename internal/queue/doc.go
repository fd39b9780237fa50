// Package queue holds the ordered collection of download items and is the
// single source of truth for their state.
//
// The Store keeps items in insertion order, rejects duplicate release names,
// and applies field-level patches atomically so readers never observe a
// partially-updated item. Every patch is normalized against the item's status:
// error text only survives on Error/InstallError, speed and ETA only while
// Downloading, and extract progress only while Extracting or Completed.
//
// The Store also tracks the subprocess handle attached to the active item.
// Only one item may hold a handle at a time, and an item with a handle cannot
// be removed until it is cancelled.
//
// Queue state is not persisted; it lives for the lifetime of the daemon.
package queue
