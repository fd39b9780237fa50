// Package api defines the transport-neutral payloads shared by the HTTP API,
// the IPC server, and the CLI, plus helpers that convert domain values into
// them and map command errors onto stable codes.
package api
