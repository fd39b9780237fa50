package workflow

import (
	"context"
	"time"

	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/notifications"
	"vrdl/internal/stage"
)

const sideEffectTimeout = 15 * time.Second

func (m *Manager) observeStage(run *activeRun, result stage.Result) {
	m.metrics.ObserveStage(run.stage, string(result), m.now().Sub(run.stageStarted))
}

// recordOutcome journals a terminal outcome of the active run.
func (m *Manager) recordOutcome(run *activeRun, kind history.Kind, message string) {
	m.record(history.Entry{
		ReleaseName: run.release,
		PackageName: run.packageName,
		Kind:        kind,
		Stage:       run.stage,
		Message:     message,
		RunID:       run.id,
		Duration:    m.now().Sub(run.started),
	})
}

func (m *Manager) record(entry history.Entry) {
	if m.history == nil {
		return
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = m.now()
	}
	m.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if _, err := m.history.Record(ctx, entry); err != nil {
			logging.WarnWithContext(m.logger, "history record failed", "history_record_failed",
				logging.Release(entry.ReleaseName),
				logging.String("kind", string(entry.Kind)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "outcome missing from history"),
			)
		}
	})
}

// notify publishes a push notification without blocking the control loop.
func (m *Manager) notify(event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	m.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := m.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(m.logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "notification not delivered"),
			)
		}
	})
}
