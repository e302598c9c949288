package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	friendlyIDPattern = regexp.MustCompile(`^(P|F|B|T|PG)-(\d{5,})$`)
	uuidPattern       = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Type represents the type of resource
type Type string

const (
	TypeProduct Type = "product"
	TypeFeature Type = "feature"
	TypeBug     Type = "bug"
	TypeTask    Type = "task"
	TypePage    Type = "page"
)

var prefixes = map[string]Type{
	"P":  TypeProduct,
	"F":  TypeFeature,
	"B":  TypeBug,
	"T":  TypeTask,
	"PG": TypePage,
}

// Format formats a friendly ID for t, e.g. Format(TypeBug, 7) is "B-00007".
func Format(t Type, seq int) string {
	for prefix, pt := range prefixes {
		if pt == t {
			return fmt.Sprintf("%s-%05d", prefix, seq)
		}
	}
	return ""
}

// Parse parses an ID string and returns the type and sequence number.
// Prefixes are case-insensitive.
func Parse(id string) (Type, int, error) {
	m := friendlyIDPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(id)))
	if m == nil {
		return "", 0, fmt.Errorf("invalid friendly ID format: %s", id)
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, fmt.Errorf("invalid friendly ID sequence: %s", id)
	}
	return prefixes[m[1]], seq, nil
}

// Canonical returns the upper-case form of a friendly ID.
func Canonical(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// IsUUID checks if a string is a valid UUID
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.ToLower(s))
}

// IsFriendlyID checks if a string is a valid friendly ID
func IsFriendlyID(s string) bool {
	_, _, err := Parse(s)
	return err == nil
}
