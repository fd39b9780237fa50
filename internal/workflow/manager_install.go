package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/notifications"
	"vrdl/internal/queue"
	"vrdl/internal/services"
	"vrdl/internal/services/adb"
)

// InstallFromCompleted starts a device install for a Completed (or
// InstallError) item and returns once the item is Installing. The result is
// reported through the queue and the install-succeeded event.
func (m *Manager) InstallFromCompleted(ctx context.Context, releaseName, deviceID string) error {
	if m.installer == nil {
		return fmt.Errorf("install %q: %w", releaseName, services.Wrap(services.ErrConfigurationMissing, adb.StageName, "install", "no installer configured", nil))
	}
	return m.do(ctx, func(st *loopState) error {
		item, ok := m.store.Find(releaseName)
		if !ok {
			return fmt.Errorf("install %q: %w", releaseName, queue.ErrNotFound)
		}
		if !queue.IsInstallableStatus(item.Status) {
			return fmt.Errorf("install %q (%s): %w", releaseName, item.Status, queue.ErrInvalidTransition)
		}
		serial := deviceID
		if serial == "" {
			serial = m.cfg.Device.DefaultSerial
		}
		path := item.DownloadPath
		if path == "" {
			path = m.downloadPath(releaseName)
		}

		m.store.Update(releaseName, queue.Patch{Status: queue.Ptr(queue.StatusInstalling)})
		installCtx, cancel := context.WithCancel(st.ctx)
		run := &installRun{id: uuid.NewString(), serial: serial, cancel: cancel, started: m.now()}
		st.installs[releaseName] = run

		installCtx = services.WithRelease(installCtx, releaseName)
		installCtx = services.WithStage(installCtx, adb.StageName)
		installCtx = services.WithRunID(installCtx, run.id)
		logging.WithContext(installCtx, m.logger).Info("install starting",
			logging.String("device", serial),
			logging.String("path", path),
			logging.String(logging.FieldEventType, "stage_start"),
		)

		id := run.id
		m.runWG.Add(1)
		go func() {
			defer m.runWG.Done()
			err := m.installer.InstallPackage(installCtx, path, serial)
			m.post(installDoneMsg{id: id, release: releaseName, err: err})
		}()
		return nil
	})
}

func (m *Manager) finishInstall(st *loopState, msg installDoneMsg) {
	run, ok := st.installs[msg.release]
	if !ok || run.id != msg.id {
		return
	}
	delete(st.installs, msg.release)
	run.cancel()

	item, ok := m.store.Find(msg.release)
	if !ok || item.Status != queue.StatusInstalling {
		return
	}
	logger := m.logger.With(logging.Release(msg.release), logging.String(logging.FieldStage, adb.StageName))
	elapsed := m.now().Sub(run.started)
	entry := history.Entry{
		ReleaseName: msg.release,
		PackageName: item.PackageName,
		Stage:       adb.StageName,
		DeviceID:    run.serial,
		RunID:       run.id,
		Duration:    elapsed,
	}

	if msg.err == nil {
		m.store.Update(msg.release, queue.Patch{
			Status:          queue.Ptr(queue.StatusCompleted),
			Progress:        queue.Ptr(100),
			ExtractProgress: queue.Ptr(100),
		})
		logger.Info("install finished",
			logging.String("device", run.serial),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldEventType, "install_succeeded"),
		)
		if m.hub != nil {
			m.hub.PublishInstallSucceeded(msg.release, run.serial)
		}
		m.metrics.ObserveInstall("succeeded")
		entry.Kind = history.KindInstalled
		m.record(entry)
		m.notify(notifications.EventInstallCompleted, notifications.Payload{"release": msg.release, "device": run.serial})
		m.logInstalledVersion(run.serial, item.PackageName)
		return
	}

	err := msg.err
	if services.Kind(err) == nil {
		err = services.Wrap(services.ErrInstall, adb.StageName, "install", "device install failed", err)
	}
	text := services.UserMessage(err)
	m.store.Update(msg.release, queue.Patch{
		Status: queue.Ptr(queue.StatusInstallError),
		Error:  queue.Ptr(text),
	})
	logging.ErrorWithContext(logger, "install failed", "install_failed",
		logging.String("device", run.serial),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the device connection and retry the install"),
		logging.String(logging.FieldImpact, "release stays downloaded; install can be retried"),
	)
	st.lastErr = text
	m.metrics.ObserveInstall("failed")
	entry.Kind = history.KindInstallFailed
	entry.Message = text
	m.record(entry)
	m.notify(notifications.EventInstallFailed, notifications.Payload{"release": msg.release, "error": text, "device": run.serial})
}

// logInstalledVersion reports the version the device now has. Failures are
// informational only.
func (m *Manager) logInstalledVersion(serial, pkg string) {
	if pkg == "" {
		return
	}
	m.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		version, ok, err := m.installer.InstalledVersion(ctx, serial, pkg)
		switch {
		case err != nil:
			m.logger.Debug("installed version lookup failed", logging.String("package", pkg), logging.Error(err))
		case ok:
			m.logger.Info("installed version", logging.String("package", pkg), logging.String("version_code", version))
		}
	})
}

// abandonInstalls marks every install in flight as failed at shutdown.
func (m *Manager) abandonInstalls(st *loopState) {
	for release, run := range st.installs {
		run.cancel()
		delete(st.installs, release)
		if item, ok := m.store.Find(release); !ok || item.Status != queue.StatusInstalling {
			continue
		}
		m.store.Update(release, queue.Patch{
			Status: queue.Ptr(queue.StatusInstallError),
			Error:  queue.Ptr(queue.DaemonStopReason),
		})
		logging.WarnWithContext(m.logger, "install abandoned", "install_abandoned",
			logging.Release(release),
			logging.String(logging.FieldImpact, "install must be retried after restart"),
		)
	}
}
