package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a download item.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusExtracting   Status = "extracting"
	StatusCompleted    Status = "completed"
	StatusInstalling   Status = "installing"
	StatusInstallError Status = "install_error"
	StatusError        Status = "error"
	StatusCancelled    Status = "cancelled"
)

// UserCancelReason is logged when a user explicitly cancels an item.
const UserCancelReason = "Cancelled by user"

// DaemonStopReason is the install error recorded for installs abandoned at shutdown.
const DaemonStopReason = "daemon stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusDownloading,
	StatusExtracting,
	StatusCompleted,
	StatusInstalling,
	StatusInstallError,
	StatusError,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processingStatuses occupy the single active slot.
var processingStatuses = map[Status]struct{}{
	StatusDownloading: {},
	StatusExtracting:  {},
}

var retryableStatuses = map[Status]struct{}{
	StatusError:        {},
	StatusCancelled:    {},
	StatusInstallError: {},
}

// Item is one release the user has chosen to acquire.
type Item struct {
	ReleaseName     string
	PackageName     string
	DisplayName     string
	Status          Status
	Progress        int
	ExtractProgress *int
	Speed           string
	ETA             string
	Error           string
	DownloadPath    string
	AddedAt         time.Time
	UpdatedAt       time.Time
}

// Patch is a field-level update. Nil fields are left untouched.
type Patch struct {
	Status          *Status
	Progress        *int
	ExtractProgress *int
	Speed           *string
	ETA             *string
	Error           *string
	DownloadPath    *string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status occupies the active slot.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsRetryableStatus reports whether an item in status can be re-queued.
func IsRetryableStatus(status Status) bool {
	_, ok := retryableStatuses[status]
	return ok
}

// IsInstallableStatus reports whether an install may be requested from status.
func IsInstallableStatus(status Status) bool {
	return status == StatusCompleted || status == StatusInstallError
}

// IsProcessing returns true when the item occupies the active slot.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// ExtractPercent returns the extract progress, or zero when absent.
func (i Item) ExtractPercent() int {
	if i.ExtractProgress == nil {
		return 0
	}
	return *i.ExtractProgress
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	if i.ExtractProgress != nil {
		v := *i.ExtractProgress
		i.ExtractProgress = &v
	}
	return i
}

// Label returns a display name, falling back to the release name.
func (i Item) Label() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return i.ReleaseName
}

// Ptr returns a pointer to v. Patch literals use it for inline values.
func Ptr[T any](v T) *T {
	return &v
}
