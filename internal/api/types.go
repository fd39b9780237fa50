package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ReleaseName     string `json:"releaseName"`
	PackageName     string `json:"packageName,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	ExtractProgress *int   `json:"extractProgress,omitempty"`
	Speed           string `json:"speed,omitempty"`
	ETA             string `json:"eta,omitempty"`
	Error           string `json:"error,omitempty"`
	DownloadPath    string `json:"downloadPath,omitempty"`
	AddedAt         string `json:"addedAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// AddRequest enqueues a release. Package and display names are optional
// when the daemon has a catalog.
type AddRequest struct {
	ReleaseName string `json:"releaseName"`
	PackageName string `json:"packageName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// AddResponse reports whether the release was added. Added is false for
// duplicates.
type AddResponse struct {
	Added bool       `json:"added"`
	Item  *QueueItem `json:"item,omitempty"`
}

// InstallRequest starts a device install. An empty DeviceID selects the
// configured default serial.
type InstallRequest struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running          bool           `json:"running"`
	ActiveRelease    string         `json:"activeRelease,omitempty"`
	ActiveStage      string         `json:"activeStage,omitempty"`
	InstallsInFlight int            `json:"installsInFlight"`
	QueueStats       map[string]int `json:"queueStats"`
	LastError        string         `json:"lastError,omitempty"`
	StageHealth      []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	LockFilePath     string             `json:"lockFilePath"`
	SocketPath       string             `json:"socketPath"`
	HistoryPath      string             `json:"historyPath,omitempty"`
	LogPath          string             `json:"logPath,omitempty"`
	APIAddress       string             `json:"apiAddress,omitempty"`
	CatalogEntries   int                `json:"catalogEntries"`
	EndpointReady    bool               `json:"endpointReady"`
	DeviceMonitor    bool               `json:"deviceMonitor"`
	EventSubscribers int                `json:"eventSubscribers"`
	Workflow         WorkflowStatus     `json:"workflow"`
	Dependencies     []DependencyStatus `json:"dependencies"`
}

// Event is one entry of the event stream.
type Event struct {
	Kind     string      `json:"kind"`
	Seq      uint64      `json:"seq"`
	Time     string      `json:"time"`
	Queue    []QueueItem `json:"queue,omitempty"`
	DeviceID string      `json:"deviceId,omitempty"`
	Release  string      `json:"release,omitempty"`
}

// HistoryEntry is one journaled outcome.
type HistoryEntry struct {
	ID          int64  `json:"id"`
	ReleaseName string `json:"releaseName"`
	PackageName string `json:"packageName,omitempty"`
	Kind        string `json:"kind"`
	Stage       string `json:"stage,omitempty"`
	Message     string `json:"message,omitempty"`
	DeviceID    string `json:"deviceId,omitempty"`
	DurationMS  int64  `json:"durationMs"`
	RecordedAt  string `json:"recordedAt"`
}

// HistoryResponse wraps journal entries, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// CatalogEntry is one row of the game list.
type CatalogEntry struct {
	GameName    string  `json:"gameName"`
	ReleaseName string  `json:"releaseName"`
	PackageName string  `json:"packageName"`
	VersionCode string  `json:"versionCode"`
	LastUpdated string  `json:"lastUpdated"`
	SizeMB      float64 `json:"sizeMb"`
}

// CatalogSearchResponse wraps catalog matches.
type CatalogSearchResponse struct {
	Entries []CatalogEntry `json:"entries"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusLine is one labelled row of the CLI status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}
