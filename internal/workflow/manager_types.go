package workflow

import (
	"context"
	"time"

	"vrdl/internal/logging"
	"vrdl/internal/procexec"
	"vrdl/internal/services/rclone"
	"vrdl/internal/stage"
)

// AddRequest describes a release to enqueue. When PackageName or
// DisplayName are empty they are completed from the catalog.
type AddRequest struct {
	ReleaseName string
	PackageName string
	DisplayName string
}

// loopState is owned by the control goroutine.
type loopState struct {
	ctx      context.Context
	active   *activeRun
	installs map[string]*installRun
	sampler  *logging.ProgressSampler
	drain    drainCounters
	lastErr  string
}

func newLoopState(ctx context.Context) *loopState {
	return &loopState{
		ctx:      ctx,
		installs: make(map[string]*installRun),
		sampler:  logging.NewProgressSampler(10),
	}
}

// activeFor returns the active run when id matches it.
func (st *loopState) activeFor(id string) *activeRun {
	if st.active == nil || st.active.id != id {
		return nil
	}
	return st.active
}

type drainCounters struct {
	completed int
	failed    int
}

func (d drainCounters) any() bool { return d.completed+d.failed > 0 }

// activeRun is the item occupying the single transfer/extract slot.
type activeRun struct {
	id           string
	release      string
	packageName  string
	stage        string
	downloadPath string
	ctx          context.Context
	cancel       context.CancelFunc
	handle       procexec.Handle
	started      time.Time
	stageStarted time.Time
	lastOutput   time.Time
	stallWarned  bool
}

type installRun struct {
	id      string
	serial  string
	cancel  context.CancelFunc
	started time.Time
}

// message is posted to the control goroutine by stage goroutines.
type message interface{ runID() string }

type startedMsg struct {
	id     string
	handle procexec.Handle
}

type transferProgressMsg struct {
	id       string
	progress rclone.Progress
}

type authFailureMsg struct {
	id  string
	err error
}

type transferDoneMsg struct {
	id      string
	outcome stage.Outcome
}

type extractProgressMsg struct {
	id      string
	percent int
}

type extractDoneMsg struct {
	id      string
	outcome stage.Outcome
}

type installDoneMsg struct {
	id      string
	release string
	err     error
}

func (m startedMsg) runID() string          { return m.id }
func (m transferProgressMsg) runID() string { return m.id }
func (m authFailureMsg) runID() string      { return m.id }
func (m transferDoneMsg) runID() string     { return m.id }
func (m extractProgressMsg) runID() string  { return m.id }
func (m extractDoneMsg) runID() string      { return m.id }
func (m installDoneMsg) runID() string      { return m.id }
