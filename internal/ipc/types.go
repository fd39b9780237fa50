package ipc

import "vrdl/internal/api"

// ServiceName is the JSON-RPC receiver name.
const ServiceName = "Vrdl"

// QueueItem mirrors the HTTP API queue DTO for IPC callers.
type QueueItem = api.QueueItem

// StageHealth describes readiness of a workflow stage.
type StageHealth = api.StageHealth

// DependencyStatus describes availability of an external tool.
type DependencyStatus = api.DependencyStatus

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the aggregated daemon status.
type StatusResponse = api.DaemonStatus

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries in queue order.
type QueueListResponse = api.QueueListResponse

// QueueAddRequest enqueues a release.
type QueueAddRequest = api.AddRequest

// QueueAddResponse reports whether the release was added.
type QueueAddResponse = api.AddResponse

// ReleaseRequest addresses a single queue item.
type ReleaseRequest struct {
	ReleaseName string `json:"releaseName"`
}

// QueueInstallRequest starts a device install.
type QueueInstallRequest struct {
	ReleaseName string `json:"releaseName"`
	DeviceID    string `json:"deviceId,omitempty"`
}

// AckResponse acknowledges a command that only starts work.
type AckResponse struct {
	Accepted bool `json:"accepted"`
}

// HistoryRequest filters journal entries.
type HistoryRequest struct {
	ReleaseName string   `json:"releaseName,omitempty"`
	Kinds       []string `json:"kinds,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// HistoryResponse contains journal entries, newest first.
type HistoryResponse = api.HistoryResponse

// CatalogSearchRequest searches the game list.
type CatalogSearchRequest struct {
	Term string `json:"term"`
}

// CatalogSearchResponse contains catalog matches.
type CatalogSearchResponse = api.CatalogSearchResponse

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// LogTailRequest reads the daemon log. A negative Offset returns the last
// Limit lines; WaitMillis blocks for new lines when none are available.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	WaitMillis int   `json:"waitMillis"`
}

// LogTailResponse carries log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
	Path   string   `json:"path"`
}
