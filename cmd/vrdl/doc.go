// Package main implements the vrdl command-line interface.
//
// A single binary serves both roles: `vrdl daemon` runs the download
// daemon in the foreground, while every other command talks to a running
// daemon over its JSON-RPC socket. `start` and `stop` manage a detached
// daemon process, and `status` falls back to local checks when the daemon
// is offline.
package main
