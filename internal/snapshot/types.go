// Package snapshot exports a product's board as canonical JSON.
//
// Snapshots are deterministic: the same board state always encodes to the
// same bytes, so the sha256 revision recorded in the meta block identifies
// the state and lets an exported file be checked for edits.
package snapshot

import (
	"time"
)

// SchemaVersion is the version of the snapshot layout.
const SchemaVersion = 1

// Snapshot is the canonical state of one product and its items.
type Snapshot struct {
	Meta    Meta                 `json:"meta"`
	Product ProductEntry         `json:"product"`
	Items   map[string]ItemEntry `json:"items,omitempty"` // keyed by UUID
}

// Meta contains snapshot metadata. SnapshotRev and GeneratedAt are not part
// of the hashed content.
type Meta struct {
	SchemaVersion int    `json:"schema_version"`
	SnapshotRev   string `json:"snapshot_rev,omitempty"`
	GeneratedAt   string `json:"generated_at,omitempty"`
}

// ProductEntry represents the exported product.
type ProductEntry struct {
	UUID        string   `json:"uuid"`
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	OwnerActor  string   `json:"owner_actor,omitempty"`
	WebhookURLs []string `json:"webhook_urls,omitempty"`
	ETag        int64    `json:"etag"`
}

// ItemEntry represents one item of any kind.
type ItemEntry struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`
	Position    int    `json:"position"`
	Route       string `json:"route,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
	ETag        int64  `json:"etag"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CreatedBy   string `json:"created_by"`
	UpdatedBy   string `json:"updated_by"`
}

// FormatTimestamp formats a time.Time as ISO-8601 with Z suffix.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
