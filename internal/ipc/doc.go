// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Request and response types reuse the HTTP DTOs from the api package so both
// transports render identical payloads. JSON-RPC carries errors as plain
// strings; the client restores queue error classes with api.RestoreError so
// callers can keep using errors.Is.
package ipc
