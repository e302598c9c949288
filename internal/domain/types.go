package domain

import (
	"encoding/json"
	"time"
)

// Kind discriminates the record kinds that share the board.
type Kind string

const (
	KindFeature Kind = "feature"
	KindBug     Kind = "bug"
	KindTask    Kind = "task"
	KindPage    Kind = "page"
)

// Kinds returns every board kind in display order.
func Kinds() []Kind {
	return []Kind{KindFeature, KindBug, KindTask, KindPage}
}

// Priority is the product priority of an item.
type Priority string

const (
	PriorityMustHave       Priority = "must-have"
	PriorityNiceToHave     Priority = "nice-to-have"
	PriorityNotPrioritized Priority = "not-prioritized"
)

// Priorities returns every priority in display order.
func Priorities() []Priority {
	return []Priority{PriorityMustHave, PriorityNiceToHave, PriorityNotPrioritized}
}

// Status is a board bucket identifier
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Column is a fixed status bucket of the board. Columns are never persisted.
type Column struct {
	ID    Status `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Color string `json:"color" yaml:"color"`
}

var columns = []Column{
	{ID: StatusNotStarted, Title: "Not Started", Color: "gray"},
	{ID: StatusInProgress, Title: "In Progress", Color: "blue"},
	{ID: StatusCompleted, Title: "Completed", Color: "green"},
}

// Columns returns the board columns in display order.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

// Product owns a board
type Product struct {
	UUID        string    `json:"uuid"`
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	OwnerActor  *string   `json:"owner_actor,omitempty"` // only this actor may write when set
	WebhookURLs *string   `json:"webhook_urls,omitempty"` // JSON array
	ETag        int64     `json:"etag"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetWebhookURLs parses the webhook URL JSON array.
func (p *Product) GetWebhookURLs() ([]string, error) {
	if p.WebhookURLs == nil || *p.WebhookURLs == "" {
		return []string{}, nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(*p.WebhookURLs), &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// ItemBase holds the fields every stored item kind shares.
type ItemBase struct {
	UUID        string    `json:"uuid"`
	ID          string    `json:"id"`
	ProductUUID string    `json:"product_uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Priority    *Priority `json:"priority,omitempty"`
	Position    int       `json:"position"`
	ETag        int64     `json:"etag"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   string    `json:"created_by"`
	UpdatedBy   string    `json:"updated_by"`
}

// Feature is a row of the features table.
type Feature struct {
	ItemBase
	ImplementationStatus Status  `json:"implementation_status"`
	ImagePath            *string `json:"image_path,omitempty"`
}

// Bug is a row of the bugs table.
type Bug struct {
	ItemBase
	Status    Status  `json:"status"`
	ImagePath *string `json:"image_path,omitempty"`
}

// Task is a row of the tasks table.
type Task struct {
	ItemBase
	Status Status `json:"status"`
}

// Page is a row of the flow_pages table.
type Page struct {
	ItemBase
	ImplementationStatus Status `json:"implementation_status"`
	Route                string `json:"route"`
}

// Records is the full set of stored items for one product.
type Records struct {
	Features []Feature
	Bugs     []Bug
	Tasks    []Task
	Pages    []Page
}

// BoardItem is the unified display shape of any item kind.
type BoardItem struct {
	UUID        string   `json:"uuid" yaml:"uuid"`
	ID          string   `json:"id" yaml:"id"`
	ProductUUID string   `json:"product_uuid" yaml:"product_uuid"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	Status      Status   `json:"status" yaml:"status"`
	Position    int      `json:"position" yaml:"position"`
	ETag        int64    `json:"etag" yaml:"etag"`
}

// EffectivePriority returns the priority used for filtering.
// Items without a priority count as not-prioritized.
func (i BoardItem) EffectivePriority() Priority {
	if i.Priority == "" {
		return PriorityNotPrioritized
	}
	return i.Priority
}

// EffectiveKind returns the kind used for type filtering.
// Items without an explicit kind count as features.
func (i BoardItem) EffectiveKind() Kind {
	if i.Kind == "" {
		return KindFeature
	}
	return i.Kind
}

// Location addresses a slot in a rendered column.
type Location struct {
	BucketID Status `json:"bucket_id"`
	Index    int    `json:"index"`
}

// DragIntent describes one completed drag gesture.
// A nil Destination means the gesture was dropped outside any bucket.
type DragIntent struct {
	DraggableID string    `json:"draggable_id"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
}

// ItemFields are the editable fields every kind shares.
type ItemFields struct {
	Name        *string
	Description *string
	Priority    *Priority
	Position    *int
}

// FeatureUpdate targets the features table.
type FeatureUpdate struct {
	ItemFields
	ImplementationStatus *Status
}

// BugUpdate targets the bugs table.
type BugUpdate struct {
	ItemFields
	Status *Status
}

// TaskUpdate targets the tasks table.
type TaskUpdate struct {
	ItemFields
	Status *Status
}

// PageUpdate targets the flow_pages table.
type PageUpdate struct {
	ItemFields
	ImplementationStatus *Status
}

// Event represents an event in the event log
type Event struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Actor        *string   `json:"actor,omitempty"`
	ResourceType string    `json:"resource_type"`
	ResourceUUID *string   `json:"resource_uuid,omitempty"`
	EventType    string    `json:"event_type"`
	ETag         *int64    `json:"etag,omitempty"`
	Payload      *string   `json:"payload,omitempty"` // JSON
}
