package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/notifications"
	"vrdl/internal/procexec"
	"vrdl/internal/queue"
	"vrdl/internal/services"
	"vrdl/internal/services/rclone"
	"vrdl/internal/services/sevenzip"
	"vrdl/internal/stage"
	"vrdl/internal/textutil"
)

// downloadPath is where a release's volumes and extracted files live.
func (m *Manager) downloadPath(release string) string {
	return filepath.Join(m.cfg.Paths.DownloadDir, textutil.DirName(release))
}

func (m *Manager) runLogger(run *activeRun) *slog.Logger {
	return logging.WithContext(run.ctx, m.logger)
}

func (m *Manager) stageContext(run *activeRun) {
	ctx := services.WithRelease(run.ctx, run.release)
	ctx = services.WithStage(ctx, run.stage)
	run.ctx = services.WithRunID(ctx, run.id)
}

// startNext fills the active slot with the first queued item, if the slot is
// free.
func (m *Manager) startNext(st *loopState) {
	if st.active != nil || st.ctx.Err() != nil {
		return
	}
	item, ok := m.store.FirstWithStatus(queue.StatusQueued)
	if !ok {
		m.queueDrained(st)
		return
	}

	now := m.now()
	runCtx, cancel := context.WithCancel(st.ctx)
	run := &activeRun{
		id:           uuid.NewString(),
		release:      item.ReleaseName,
		packageName:  item.PackageName,
		stage:        rclone.StageName,
		downloadPath: m.downloadPath(item.ReleaseName),
		ctx:          runCtx,
		cancel:       cancel,
		started:      now,
		stageStarted: now,
		lastOutput:   now,
	}
	m.stageContext(run)
	st.active = run
	st.sampler.Reset()

	m.store.Update(run.release, queue.Patch{
		Status:       queue.Ptr(queue.StatusDownloading),
		Progress:     queue.Ptr(0),
		DownloadPath: queue.Ptr(run.downloadPath),
	})

	endpointCfg, _ := m.endpoint.Current()
	m.runLogger(run).Info("transfer starting",
		logging.String("path", run.downloadPath),
		logging.String(logging.FieldEventType, "stage_start"),
	)

	id := run.id
	req := rclone.Request{ReleaseName: run.release, DownloadPath: run.downloadPath, Endpoint: endpointCfg}
	obs := rclone.Observer{
		OnStarted:     func(h procexec.Handle) { m.post(startedMsg{id: id, handle: h}) },
		OnProgress:    func(p rclone.Progress) { m.post(transferProgressMsg{id: id, progress: p}) },
		OnAuthFailure: func(err error) { m.post(authFailureMsg{id: id, err: err}) },
	}
	ctx := run.ctx
	m.runWG.Add(1)
	go func() {
		defer m.runWG.Done()
		outcome := m.transfer.Transfer(ctx, req, obs)
		m.post(transferDoneMsg{id: id, outcome: outcome})
	}()
}

func (m *Manager) startExtract(st *loopState, run *activeRun) {
	endpointCfg, ok := m.endpoint.Current()
	if !ok {
		m.failActive(st, run, fmt.Errorf("%w", services.ErrConfigurationMissing))
		return
	}

	run.id = uuid.NewString()
	run.stage = sevenzip.StageName
	run.stageStarted = m.now()
	run.lastOutput = run.stageStarted
	run.stallWarned = false
	run.handle = nil
	m.stageContext(run)

	m.store.Update(run.release, queue.Patch{
		Status:          queue.Ptr(queue.StatusExtracting),
		Progress:        queue.Ptr(100),
		ExtractProgress: queue.Ptr(0),
	})
	m.runLogger(run).Info("extraction starting", logging.String(logging.FieldEventType, "stage_start"))

	id := run.id
	req := sevenzip.Request{ReleaseName: run.release, DownloadPath: run.downloadPath, Password: endpointCfg.DecodedPassword()}
	obs := sevenzip.Observer{
		OnStarted:  func(h procexec.Handle) { m.post(startedMsg{id: id, handle: h}) },
		OnProgress: func(p int) { m.post(extractProgressMsg{id: id, percent: p}) },
	}
	ctx := run.ctx
	m.runWG.Add(1)
	go func() {
		defer m.runWG.Done()
		outcome := m.extract.Extract(ctx, req, obs)
		m.post(extractDoneMsg{id: id, outcome: outcome})
	}()
}

// handle applies a stage message. Messages for runs that are no longer
// active are dropped, as is everything once shutdown has begun.
func (m *Manager) handle(st *loopState, msg message) {
	if st.ctx.Err() != nil {
		return
	}
	switch msg := msg.(type) {
	case installDoneMsg:
		m.finishInstall(st, msg)
		return
	case startedMsg:
		run := st.activeFor(msg.id)
		if run == nil {
			msg.handle.Detach()
			msg.handle.Cancel()
			return
		}
		run.handle = msg.handle
		if err := m.store.AttachHandle(run.release, msg.handle); err != nil {
			logging.WarnWithContext(m.runLogger(run), "process handle not attached", "handle_attach_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "cancellation falls back to the run context"),
			)
		}
		return
	}

	run := st.activeFor(msg.runID())
	if run == nil {
		return
	}
	switch msg := msg.(type) {
	case transferProgressMsg:
		run.lastOutput = m.now()
		m.store.Update(run.release, queue.Patch{
			Progress: queue.Ptr(msg.progress.Percent),
			Speed:    queue.Ptr(msg.progress.Speed),
			ETA:      queue.Ptr(msg.progress.ETA),
		})
		if st.sampler.ShouldLog(msg.progress.Percent, run.stage) {
			m.runLogger(run).Info("transfer progress",
				logging.Int(logging.FieldProgressPercent, msg.progress.Percent),
				logging.String("speed", msg.progress.Speed),
				logging.String("eta", msg.progress.ETA),
				logging.String(logging.FieldEventType, "stage_progress"),
			)
		}
	case extractProgressMsg:
		run.lastOutput = m.now()
		m.store.Update(run.release, queue.Patch{ExtractProgress: queue.Ptr(msg.percent)})
		if st.sampler.ShouldLog(msg.percent, run.stage) {
			m.runLogger(run).Info("extraction progress",
				logging.Int(logging.FieldProgressPercent, msg.percent),
				logging.String(logging.FieldEventType, "stage_progress"),
			)
		}
	case authFailureMsg:
		m.observeStage(run, stage.Failed)
		m.failActive(st, run, msg.err)
	case transferDoneMsg:
		m.detach(run)
		m.observeStage(run, msg.outcome.Result)
		switch msg.outcome.Result {
		case stage.Succeeded:
			m.runLogger(run).Info("transfer finished",
				logging.Duration("elapsed", m.now().Sub(run.stageStarted)),
				logging.String(logging.FieldEventType, "stage_complete"),
			)
			m.startExtract(st, run)
		case stage.Cancelled:
			m.cancelActive(st, run, "process terminated")
		default:
			m.failActive(st, run, msg.outcome.Err)
		}
	case extractDoneMsg:
		m.detach(run)
		m.observeStage(run, msg.outcome.Result)
		switch msg.outcome.Result {
		case stage.Succeeded:
			m.completeActive(st, run)
		case stage.Cancelled:
			m.cancelActive(st, run, "process terminated")
		default:
			m.failActive(st, run, msg.outcome.Err)
		}
	}
}

func (m *Manager) detach(run *activeRun) {
	if run.handle != nil {
		m.store.DetachHandle(run.release)
	}
}

// release frees the active slot and starts the next queued item.
func (m *Manager) release(st *loopState, run *activeRun) {
	run.cancel()
	if st.active == run {
		st.active = nil
	}
	m.startNext(st)
}

func (m *Manager) completeActive(st *loopState, run *activeRun) {
	m.store.Update(run.release, queue.Patch{
		Status:          queue.Ptr(queue.StatusCompleted),
		Progress:        queue.Ptr(100),
		ExtractProgress: queue.Ptr(100),
	})
	m.runLogger(run).Info("release ready",
		logging.Duration("elapsed", m.now().Sub(run.started)),
		logging.String(logging.FieldEventType, "item_completed"),
	)
	st.drain.completed++
	m.recordOutcome(run, history.KindCompleted, "")
	m.notify(notifications.EventDownloadCompleted, notifications.Payload{"release": run.release})
	m.release(st, run)
}

func (m *Manager) failActive(st *loopState, run *activeRun, err error) {
	m.detach(run)
	msg := services.UserMessage(err)
	m.store.Update(run.release, queue.Patch{
		Status: queue.Ptr(queue.StatusError),
		Error:  queue.Ptr(msg),
	})
	logging.ErrorWithContext(m.runLogger(run), "stage failed", "stage_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, errorHint(err)),
		logging.String(logging.FieldImpact, "release marked as error; retry to re-queue"),
	)
	st.drain.failed++
	st.lastErr = msg
	m.recordOutcome(run, history.KindFailed, msg)
	m.notify(notifications.EventDownloadFailed, notifications.Payload{"release": run.release, "error": msg})
	m.release(st, run)
}

// cancelActive stops the active run and marks the item Cancelled.
func (m *Manager) cancelActive(st *loopState, run *activeRun, reason string) {
	switch run.stage {
	case sevenzip.StageName:
		m.extract.Cancel(run.release)
	default:
		m.transfer.Cancel(run.release)
	}
	run.cancel()
	m.detach(run)
	m.store.Update(run.release, queue.Patch{
		Status:   queue.Ptr(queue.StatusCancelled),
		Progress: queue.Ptr(0),
	})
	m.runLogger(run).Info("run cancelled",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "stage_cancelled"),
	)
	m.recordOutcome(run, history.KindCancelled, reason)
	m.release(st, run)
}

func (m *Manager) queueDrained(st *loopState) {
	if !st.drain.any() {
		return
	}
	counters := st.drain
	st.drain = drainCounters{}
	m.logger.Info("queue drained",
		logging.Int("completed", counters.completed),
		logging.Int("failed", counters.failed),
		logging.String(logging.FieldEventType, "queue_drained"),
	)
	m.notify(notifications.EventQueueDrained, notifications.Payload{
		"processed": counters.completed,
		"failed":    counters.failed,
	})
}

func errorHint(err error) string {
	switch services.Kind(err) {
	case services.ErrConfigurationMissing:
		return "set endpoint base_uri and password"
	case services.ErrProcessSpawn:
		return "check the tool paths in [tools]"
	case services.ErrAuth:
		return "refresh the endpoint password"
	case services.ErrArchivePassword:
		return "refresh the endpoint password and retry"
	case services.ErrArchive:
		return "delete the download and retry"
	default:
		return "inspect the error and retry"
	}
}
