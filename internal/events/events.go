package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fluxr/fluxr/internal/cursor"
	"github.com/fluxr/fluxr/internal/domain"
)

// Event types written by the store.
const (
	ProductCreated = "product.created"
	ProductUpdated = "product.updated"
	ItemCreated    = "item.created"
	ItemUpdated    = "item.updated"
	ItemMoved      = "item.moved"
	ItemDeleted    = "item.deleted"
	ItemImageSet   = "item.image_set"
)

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log. A nil tx writes outside any transaction.
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (actor, resource_type, resource_uuid, event_type, etag, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	var executor execer = w.db
	if tx != nil {
		executor = tx
	}
	_, err := executor.Exec(query, event.Actor, event.ResourceType, event.ResourceUUID, event.EventType, event.ETag, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogItemEvent logs an event for a board item with a JSON payload.
func (w *Writer) LogItemEvent(tx *sql.Tx, actor string, kind domain.Kind, itemUUID, eventType string, etag *int64, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["kind"] = string(kind)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	payloadStr := string(data)

	return w.LogEvent(tx, &domain.Event{
		Actor:        &actor,
		ResourceType: string(kind),
		ResourceUUID: &itemUUID,
		EventType:    eventType,
		ETag:         etag,
		Payload:      &payloadStr,
	})
}

// List returns events, newest first. An empty resourceUUID lists all events.
func List(q querier, resourceUUID string, limit int) ([]domain.Event, error) {
	evs, _, err := Page(q, resourceUUID, limit, "")
	return evs, err
}

// Page returns one page of events, newest first, continuing after the
// encoded cursor when one is given. next is empty on the last page.
func Page(q querier, resourceUUID string, limit int, after string) (evs []domain.Event, next string, err error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, timestamp, actor, resource_type, resource_uuid, event_type, etag, payload
		FROM event_log WHERE 1 = 1`
	var args []interface{}
	if resourceUUID != "" {
		query += ` AND resource_uuid = ?`
		args = append(args, resourceUUID)
	}
	if after != "" {
		c, err := cursor.Decode(after)
		if err != nil {
			return nil, "", &domain.ValidationError{Field: "cursor", Message: err.Error()}
		}
		if err := c.Check(resourceUUID); err != nil {
			return nil, "", &domain.ValidationError{Field: "cursor", Message: err.Error()}
		}
		query += ` AND id < ?`
		args = append(args, c.BeforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev domain.Event
		var ts string
		if err := rows.Scan(&ev.ID, &ts, &ev.Actor, &ev.ResourceType, &ev.ResourceUUID, &ev.EventType, &ev.ETag, &ev.Payload); err != nil {
			return nil, "", fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339, ts)
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating events: %w", err)
	}

	if len(evs) > limit {
		evs = evs[:limit]
		c, err := cursor.New(resourceUUID, evs[limit-1].ID)
		if err != nil {
			return nil, "", err
		}
		if next, err = c.Encode(); err != nil {
			return nil, "", err
		}
	}
	return evs, next, nil
}
