// Package events fans queue and device notifications out to subscribers.
//
// Queue mutations are coalesced: Coalescer turns any number of change
// signals into throttled queue-changed events carrying a fresh snapshot, so
// high-frequency transfer progress never floods consumers. Install and
// device events bypass coalescing and are published immediately.
package events
