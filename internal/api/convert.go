package api

import (
	"sort"
	"time"

	"vrdl/internal/catalog"
	"vrdl/internal/deps"
	"vrdl/internal/events"
	"vrdl/internal/history"
	"vrdl/internal/queue"
	"vrdl/internal/workflow"
)

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}

// FromQueueItem converts a queue item to its API representation.
func FromQueueItem(item queue.Item) QueueItem {
	dto := QueueItem{
		ReleaseName:  item.ReleaseName,
		PackageName:  item.PackageName,
		DisplayName:  item.DisplayName,
		Status:       string(item.Status),
		Progress:     item.Progress,
		Speed:        item.Speed,
		ETA:          item.ETA,
		Error:        item.Error,
		DownloadPath: item.DownloadPath,
		AddedAt:      formatTime(item.AddedAt),
		UpdatedAt:    formatTime(item.UpdatedAt),
	}
	if item.ExtractProgress != nil {
		v := *item.ExtractProgress
		dto.ExtractProgress = &v
	}
	return dto
}

// FromQueueItems converts queue items, preserving order.
func FromQueueItems(items []queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics. Stage health is sorted by
// name so output is stable.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}
	health := make([]StageHealth, 0, len(summary.StageHealth))
	for _, h := range summary.StageHealth {
		health = append(health, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(health, func(i, j int) bool { return health[i].Name < health[j].Name })
	return WorkflowStatus{
		Running:          summary.Running,
		ActiveRelease:    summary.ActiveRelease,
		ActiveStage:      summary.ActiveStage,
		InstallsInFlight: summary.InstallsInFlight,
		QueueStats:       stats,
		LastError:        summary.LastError,
		StageHealth:      health,
	}
}

// FromEvent converts a hub event.
func FromEvent(evt events.Event) Event {
	dto := Event{
		Kind:     string(evt.Kind),
		Seq:      evt.Seq,
		Time:     formatTime(evt.Time),
		DeviceID: evt.DeviceID,
		Release:  evt.Release,
	}
	if evt.Kind == events.KindQueueChanged {
		dto.Queue = FromQueueItems(evt.Queue)
	}
	return dto
}

// FromHistoryEntries converts journal rows.
func FromHistoryEntries(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:          e.ID,
			ReleaseName: e.ReleaseName,
			PackageName: e.PackageName,
			Kind:        string(e.Kind),
			Stage:       e.Stage,
			Message:     e.Message,
			DeviceID:    e.DeviceID,
			DurationMS:  e.Duration.Milliseconds(),
			RecordedAt:  formatTime(e.RecordedAt),
		})
	}
	return out
}

// FromCatalogEntries converts catalog rows.
func FromCatalogEntries(entries []catalog.Entry) []CatalogEntry {
	out := make([]CatalogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, CatalogEntry(e))
	}
	return out
}

// FromDependencies converts tool availability checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return out
}

// ParseTime reads a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
