// Package workflow is the orchestrator: it owns the single active slot and
// moves queue items through transfer, extraction, and the install handoff.
//
// All orchestration state lives on one control goroutine. Public commands
// and driver callbacks are posted to that goroutine, so item mutations are
// totally ordered. Every stage run carries a run id; messages from a run that
// is no longer active (cancelled, failed on auth, removed) are dropped, which
// is how trailing subprocess output is kept from touching the queue.
//
// Installs run beside the transfer slot and report back through the same
// control goroutine.
package workflow
