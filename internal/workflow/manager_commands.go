package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/queue"
	"vrdl/internal/staging"
)

// AddToQueue enqueues a release. A release already in the queue is rejected
// with queue.ErrDuplicateKey.
func (m *Manager) AddToQueue(ctx context.Context, req AddRequest) (queue.Item, error) {
	req.ReleaseName = strings.TrimSpace(req.ReleaseName)
	if req.ReleaseName == "" {
		return queue.Item{}, errors.New("release name required")
	}
	if m.catalog != nil && (req.PackageName == "" || req.DisplayName == "") {
		if entry, ok := m.catalog.Find(req.ReleaseName); ok {
			if req.PackageName == "" {
				req.PackageName = entry.PackageName
			}
			if req.DisplayName == "" {
				req.DisplayName = entry.GameName
			}
		}
	}

	var added queue.Item
	err := m.do(ctx, func(st *loopState) error {
		item, err := m.store.Add(queue.Item{
			ReleaseName: req.ReleaseName,
			PackageName: req.PackageName,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			return err
		}
		added = item
		m.logger.Info("release queued",
			logging.Release(item.ReleaseName),
			logging.String("package", item.PackageName),
			logging.String(logging.FieldEventType, "item_queued"),
		)
		m.startNext(st)
		return nil
	})
	return added, err
}

// RemoveFromQueue removes an item, cancelling it first when it is active.
// Downloaded files are left on disk.
func (m *Manager) RemoveFromQueue(ctx context.Context, releaseName string) error {
	return m.do(ctx, func(st *loopState) error {
		item, ok := m.store.Find(releaseName)
		if !ok {
			return fmt.Errorf("remove %q: %w", releaseName, queue.ErrNotFound)
		}
		if item.Status == queue.StatusInstalling {
			return fmt.Errorf("remove %q: install in progress: %w", releaseName, queue.ErrItemBusy)
		}
		if run := st.active; run != nil && run.release == releaseName {
			m.cancelActive(st, run, "removed from queue")
		}
		if _, err := m.store.Remove(releaseName); err != nil {
			return err
		}
		m.logger.Info("release removed",
			logging.Release(releaseName),
			logging.String(logging.FieldEventType, "item_removed"),
		)
		m.record(history.Entry{ReleaseName: releaseName, PackageName: item.PackageName, Kind: history.KindRemoved})
		return nil
	})
}

// CancelUserRequest stops the active transfer or extraction of an item.
func (m *Manager) CancelUserRequest(ctx context.Context, releaseName string) error {
	return m.do(ctx, func(st *loopState) error {
		item, ok := m.store.Find(releaseName)
		if !ok {
			return fmt.Errorf("cancel %q: %w", releaseName, queue.ErrNotFound)
		}
		run := st.active
		if run == nil || run.release != releaseName {
			return fmt.Errorf("cancel %q (%s): %w", releaseName, item.Status, queue.ErrInvalidTransition)
		}
		m.cancelActive(st, run, queue.UserCancelReason)
		return nil
	})
}

// RetryDownload re-queues an item that ended in Error, Cancelled, or
// InstallError.
func (m *Manager) RetryDownload(ctx context.Context, releaseName string) error {
	return m.do(ctx, func(st *loopState) error {
		item, ok := m.store.Find(releaseName)
		if !ok {
			return fmt.Errorf("retry %q: %w", releaseName, queue.ErrNotFound)
		}
		if !queue.IsRetryableStatus(item.Status) {
			return fmt.Errorf("retry %q (%s): %w", releaseName, item.Status, queue.ErrInvalidTransition)
		}
		m.store.Update(releaseName, queue.Patch{
			Status:   queue.Ptr(queue.StatusQueued),
			Progress: queue.Ptr(0),
		})
		m.logger.Info("release re-queued",
			logging.Release(releaseName),
			logging.String("previous_status", string(item.Status)),
			logging.String(logging.FieldEventType, "item_retried"),
		)
		m.startNext(st)
		return nil
	})
}

// DeleteDownloadedFiles removes an idle item's download directory and then
// the item itself.
func (m *Manager) DeleteDownloadedFiles(ctx context.Context, releaseName string) error {
	return m.do(ctx, func(st *loopState) error {
		item, ok := m.store.Find(releaseName)
		if !ok {
			return fmt.Errorf("delete files %q: %w", releaseName, queue.ErrNotFound)
		}
		if (st.active != nil && st.active.release == releaseName) || item.Status == queue.StatusInstalling {
			return fmt.Errorf("delete files %q (%s): %w", releaseName, item.Status, queue.ErrItemBusy)
		}
		path := item.DownloadPath
		if path == "" {
			path = m.downloadPath(releaseName)
		}
		if err := staging.RemoveArtifacts(m.cfg.Paths.DownloadDir, path); err != nil {
			return fmt.Errorf("delete files %q: %w", releaseName, err)
		}
		if _, err := m.store.Remove(releaseName); err != nil {
			return err
		}
		m.logger.Info("release files deleted",
			logging.Release(releaseName),
			logging.String("path", path),
			logging.String(logging.FieldEventType, "item_files_deleted"),
		)
		m.record(history.Entry{
			ReleaseName: releaseName,
			PackageName: item.PackageName,
			Kind:        history.KindRemoved,
			Message:     "files deleted",
		})
		return nil
	})
}
