// Package logs reads the daemon's run log for the `vrdl logs` command.
//
// Tail returns either the last N lines or everything written after a byte
// offset, and can block until new lines arrive. Callers keep the returned
// offset and pass it back to follow the file.
package logs
