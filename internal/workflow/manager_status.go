package workflow

import (
	"vrdl/internal/deps"
	"vrdl/internal/queue"
	"vrdl/internal/stage"
)

// StatusSummary exposes read-only workflow diagnostics.
type StatusSummary struct {
	Running          bool
	ActiveRelease    string
	ActiveStage      string
	InstallsInFlight int
	LastError        string
	QueueStats       map[queue.Status]int
	StageHealth      map[string]stage.Health
}

type statusSnapshot struct {
	activeRelease string
	activeStage   string
	installs      int
	lastErr       string
}

// publishStatus copies loop-owned state for Status readers.
func (m *Manager) publishStatus(st *loopState) {
	snap := statusSnapshot{installs: len(st.installs), lastErr: st.lastErr}
	if st.active != nil {
		snap.activeRelease = st.active.release
		snap.activeStage = st.active.stage
	}
	m.mu.Lock()
	m.status = snap
	m.mu.Unlock()
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	running := m.running
	snap := m.status
	m.mu.RUnlock()

	return StatusSummary{
		Running:          running,
		ActiveRelease:    snap.activeRelease,
		ActiveStage:      snap.activeStage,
		InstallsInFlight: snap.installs,
		LastError:        snap.lastErr,
		QueueStats:       m.store.Counts(),
		StageHealth:      m.stageHealth(),
	}
}

// stageHealth reports whether each stage has the tools and configuration it
// needs to run.
func (m *Manager) stageHealth() map[string]stage.Health {
	health := make(map[string]stage.Health, 3)
	for _, status := range deps.CheckBinaries(deps.Requirements(m.cfg)) {
		if status.Stage == stage.NameInstall && m.installer == nil {
			continue
		}
		health[status.Stage] = stage.Check(status.Stage, status.Available, status.Detail)
	}
	if cfg, ok := m.endpoint.Current(); !ok || !cfg.Complete() {
		if h, exists := health[stage.NameTransfer]; !exists || h.Ready {
			health[stage.NameTransfer] = stage.Check(stage.NameTransfer, false, "endpoint configuration missing")
		}
	}
	return health
}
