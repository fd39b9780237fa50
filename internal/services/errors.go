package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigurationMissing = errors.New("missing configuration")
	ErrProcessSpawn         = errors.New("process spawn failure")
	ErrTransfer             = errors.New("transfer failure")
	ErrAuth                 = errors.New("authentication failure")
	ErrArchivePassword      = errors.New("archive password rejected")
	ErrArchive              = errors.New("archive failure")
	ErrInstall              = errors.New("install failure")
	ErrCancelled            = errors.New("cancelled")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransfer
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the marker carried by err, or nil when err is unclassified.
func Kind(err error) error {
	for _, marker := range []error{
		ErrConfigurationMissing,
		ErrProcessSpawn,
		ErrAuth,
		ErrArchivePassword,
		ErrTransfer,
		ErrArchive,
		ErrInstall,
		ErrCancelled,
	} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// UserMessage renders err as the text stored on a queue item. Empty input
// yields a generic message so failed items never carry a blank error.
func UserMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown failure"
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
