// Package cursor encodes the opaque cursors used to page through the event
// log, newest first.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor marks the last event of a page. The next page starts below
// BeforeID. Resource is the item the listing was scoped to, if any.
type Cursor struct {
	Resource string `json:"resource,omitempty"`
	BeforeID int64  `json:"before_id"`
}

// New returns a cursor continuing below lastID.
func New(resource string, lastID int64) (*Cursor, error) {
	if lastID <= 0 {
		return nil, fmt.Errorf("last ID must be positive, got %d", lastID)
	}
	return &Cursor{Resource: resource, BeforeID: lastID}, nil
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor from an opaque base64 string
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if c.BeforeID <= 0 {
		return nil, fmt.Errorf("cursor missing event ID")
	}
	return &c, nil
}

// Check reports an error when the cursor was issued for another listing.
func (c *Cursor) Check(resource string) error {
	if c.Resource != resource {
		return fmt.Errorf("cursor belongs to a different listing")
	}
	return nil
}
