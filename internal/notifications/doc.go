// Package notifications delivers queue milestones via ntfy.
//
// The ntfy implementation posts to the topic configured in config.toml and
// degrades to a no-op when no topic is set. Per-category toggles (downloads,
// installs, queue, errors) filter events before any HTTP work is done.
package notifications
