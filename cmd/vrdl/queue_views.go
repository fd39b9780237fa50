package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"vrdl/internal/api"
)

func renderQueueTable(items []api.QueueItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			queueItemTitle(item),
			formatStatusLabel(item.Status),
			queueItemProgress(item),
			queueItemRate(item),
			queueItemAge(item.UpdatedAt),
		})
	}
	return renderTable([]tableColumn{
		{Header: "Release", MaxWidth: 48},
		{Header: "Status"},
		{Header: "Progress", Align: alignRight},
		{Header: "Rate"},
		{Header: "Updated"},
	}, rows)
}

func queueItemTitle(item api.QueueItem) string {
	if name := strings.TrimSpace(item.DisplayName); name != "" && name != item.ReleaseName {
		return fmt.Sprintf("%s\n%s", item.ReleaseName, name)
	}
	return item.ReleaseName
}

func queueItemProgress(item api.QueueItem) string {
	switch item.Status {
	case "downloading":
		return fmt.Sprintf("%d%%", item.Progress)
	case "extracting":
		if item.ExtractProgress != nil {
			return fmt.Sprintf("%d%%", *item.ExtractProgress)
		}
		return "0%"
	case "error", "install_error":
		if msg := strings.TrimSpace(item.Error); msg != "" {
			return truncate(msg, 40)
		}
	}
	return ""
}

func queueItemRate(item api.QueueItem) string {
	if item.Status != "downloading" {
		return ""
	}
	parts := make([]string, 0, 2)
	if item.Speed != "" {
		parts = append(parts, item.Speed)
	}
	if item.ETA != "" {
		parts = append(parts, "ETA "+item.ETA)
	}
	return strings.Join(parts, ", ")
}

func queueItemAge(value string) string {
	ts, ok := api.ParseTime(value)
	if !ok {
		return ""
	}
	return humanize.Time(ts)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
