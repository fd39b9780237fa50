package workflow

import (
	"time"

	"vrdl/internal/logging"
	"vrdl/internal/queue"
)

const (
	stallCheckInterval = 30 * time.Second
	stallWarnAfter     = 10 * time.Minute
)

// checkStall warns once per stage when the active run has produced no
// progress for stallWarnAfter. The run is left alone; the user decides
// whether to cancel.
func (m *Manager) checkStall(st *loopState) {
	run := st.active
	if run == nil || run.stallWarned {
		return
	}
	idle := m.now().Sub(run.lastOutput)
	if idle < stallWarnAfter {
		return
	}
	run.stallWarned = true
	logging.WarnWithContext(m.runLogger(run), "stage stalled", "stage_stalled",
		logging.Duration("idle", idle),
		logging.String(logging.FieldErrorHint, "check network connectivity or cancel and retry"),
		logging.String(logging.FieldImpact, "release is not progressing"),
	)
}

// shutdown ends the active run as Cancelled and abandons installs in flight.
func (m *Manager) shutdown(st *loopState) {
	if run := st.active; run != nil {
		m.cancelActive(st, run, queue.DaemonStopReason)
	}
	m.abandonInstalls(st)
	m.publishStatus(st)
}
