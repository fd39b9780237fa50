package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vrdl/internal/config"
)

const userAgent = "vrdl/0.1.0"

// Event names a notification type.
type Event string

const (
	EventDownloadCompleted Event = "download_completed"
	EventDownloadFailed    Event = "download_failed"
	EventInstallCompleted  Event = "install_completed"
	EventInstallFailed     Event = "install_failed"
	EventQueueDrained      Event = "queue_drained"
	EventTest              Event = "test"
)

// Payload carries event fields. Known keys: release, package, error, device,
// processed, failed.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventDownloadCompleted:
		return n.settings.Downloads
	case EventInstallCompleted:
		return n.settings.Installs
	case EventQueueDrained:
		return n.settings.Queue
	case EventDownloadFailed, EventInstallFailed:
		return n.settings.Errors
	case EventTest:
		return true
	default:
		return false
	}
}

func format(event Event, data Payload) (payload, bool) {
	release := text(data, "release")
	switch event {
	case EventDownloadCompleted:
		return payload{
			title:   "vrdl - Download Complete",
			message: fmt.Sprintf("📦 Ready to install: %s", release),
			tags:    []string{"vrdl", "download", "completed"},
		}, true
	case EventDownloadFailed:
		return payload{
			title:    "vrdl - Download Failed",
			message:  fmt.Sprintf("❌ %s: %s", release, orUnknown(text(data, "error"))),
			tags:     []string{"vrdl", "download", "error"},
			priority: "high",
		}, true
	case EventInstallCompleted:
		message := fmt.Sprintf("🥽 Installed: %s", release)
		if device := text(data, "device"); device != "" {
			message += " on " + device
		}
		return payload{
			title:   "vrdl - Installed",
			message: message,
			tags:    []string{"vrdl", "install", "completed"},
		}, true
	case EventInstallFailed:
		return payload{
			title:    "vrdl - Install Failed",
			message:  fmt.Sprintf("❌ Install of %s failed: %s", release, orUnknown(text(data, "error"))),
			tags:     []string{"vrdl", "install", "error"},
			priority: "high",
		}, true
	case EventQueueDrained:
		processed, _ := data["processed"].(int)
		failed, _ := data["failed"].(int)
		title := "vrdl - Queue Complete"
		message := fmt.Sprintf("Queue drained: %d downloaded", processed)
		if failed > 0 {
			title = "vrdl - Queue Complete (with errors)"
			message = fmt.Sprintf("Queue drained: %d downloaded, %d failed", processed, failed)
		}
		return payload{title: title, message: message, tags: []string{"vrdl", "queue", "completed"}}, true
	case EventTest:
		return payload{
			title:    "vrdl - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"vrdl", "test"},
			priority: "low",
		}, true
	}
	return payload{}, false
}

func text(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
