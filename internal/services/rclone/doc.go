// Package rclone drives the transfer stage: it copies one release's archive
// volumes from the content host into its download directory with rclone and
// turns rclone's streaming stats into progress, speed, and ETA updates.
//
// Line parsing lives in ParseLine so it can be tested without spawning
// processes. The Driver owns the process lifecycle, drops percentage
// regressions within a run, and classifies the exit: authentication
// failures detected in output, cancellation, non-zero exits with a redacted
// diagnostic tail, and success.
package rclone
