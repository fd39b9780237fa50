// Package daemon coordinates the long-running vrdl process.
//
// It ties the workflow manager, event hub, history journal, catalog, and
// headset monitor into a single lifecycle guarded by a flock-based
// single-instance lock. The daemon exposes the queue command surface to the
// IPC and HTTP transports and aggregates runtime status for both.
//
// Keep orchestration logic in the workflow package: the daemon owns startup,
// shutdown, and the HTTP API.
package daemon
