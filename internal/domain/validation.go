package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// UUIDv4Regex validates lowercase UUIDv4 format
var UUIDv4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

const maxNameLen = 200

// ValidateUUID validates a UUID v4 format (lowercase with hyphens)
func ValidateUUID(uuid string) error {
	if !UUIDv4Regex.MatchString(uuid) {
		return &ValidationError{Field: "uuid", Message: "must be lowercase UUIDv4 format (e.g., 550e8400-e29b-41d4-a716-446655440000)"}
	}
	return nil
}

// ValidateKind validates an item kind
func ValidateKind(kind string) error {
	switch Kind(kind) {
	case KindFeature, KindBug, KindTask, KindPage:
		return nil
	default:
		return &ValidationError{Field: "kind", Message: "must be one of: feature, bug, task, page"}
	}
}

// ValidateStatus validates a board status
func ValidateStatus(status string) error {
	switch Status(status) {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return nil
	default:
		return &ValidationError{Field: "status", Message: "must be one of: not_started, in_progress, completed"}
	}
}

// ValidatePriority validates an item priority
func ValidatePriority(priority string) error {
	switch Priority(priority) {
	case PriorityMustHave, PriorityNiceToHave, PriorityNotPrioritized:
		return nil
	default:
		return &ValidationError{Field: "priority", Message: "must be one of: must-have, nice-to-have, not-prioritized"}
	}
}

// ValidateName validates an item or product name
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if len(trimmed) > maxNameLen {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("exceeds maximum length of %d bytes", maxNameLen)}
	}
	return nil
}

// ValidatePosition validates a bucket position
func ValidatePosition(position int) error {
	if position < 0 {
		return &ValidationError{Field: "position", Message: "must be zero or greater"}
	}
	return nil
}
