package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
	"github.com/fluxr/fluxr/internal/paths"
)

// itemTable describes how one item kind is stored. Features and pages keep
// their bucket in implementation_status; bugs and tasks in status.
type itemTable struct {
	kind         domain.Kind
	name         string
	statusColumn string
	seq          db.SequenceSpec
	hasImage     bool
}

var (
	featureTable = itemTable{kind: domain.KindFeature, name: "features", statusColumn: "implementation_status", seq: db.FeatureSequence, hasImage: true}
	bugTable     = itemTable{kind: domain.KindBug, name: "bugs", statusColumn: "status", seq: db.BugSequence, hasImage: true}
	taskTable    = itemTable{kind: domain.KindTask, name: "tasks", statusColumn: "status", seq: db.TaskSequence}
	pageTable    = itemTable{kind: domain.KindPage, name: "flow_pages", statusColumn: "implementation_status", seq: db.PageSequence}
)

var columnTailQuery = func() string {
	parts := make([]string, 0, 4)
	for _, t := range itemTables {
		parts = append(parts, fmt.Sprintf("SELECT position FROM %s WHERE product_uuid = ? AND %s = ?", t.name, t.statusColumn))
	}
	return "SELECT COALESCE(MAX(position) + 1, 0) FROM (" + strings.Join(parts, " UNION ALL ") + ")"
}()

func tableFor(kind domain.Kind) (itemTable, error) {
	switch kind {
	case domain.KindFeature:
		return featureTable, nil
	case domain.KindBug:
		return bugTable, nil
	case domain.KindTask:
		return taskTable, nil
	case domain.KindPage:
		return pageTable, nil
	default:
		return itemTable{}, &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", kind)}
	}
}

// CreateParams contains parameters for creating a new item of any kind.
type CreateParams struct {
	ProductUUID string
	Name        string
	Description string
	Priority    *domain.Priority
	Status      domain.Status // defaults to not_started
	Route       string        // pages only
}

// CreateResult contains the result of item creation.
type CreateResult struct {
	UUID     string
	ID       string
	ETag     int64
	Position int
}

// DeleteResult reports what the caller still has to clean up.
type DeleteResult struct {
	ImagePath *string
}

const baseColumns = "uuid, id, product_uuid, name, description, priority, position, etag, created_at, updated_at, created_by, updated_by"

// baseScan collects scan destinations for baseColumns.
type baseScan struct {
	priority  sql.NullString
	createdAt string
	updatedAt string
}

func (bs *baseScan) dest(b *domain.ItemBase) []interface{} {
	return []interface{}{
		&b.UUID, &b.ID, &b.ProductUUID, &b.Name, &b.Description, &bs.priority,
		&b.Position, &b.ETag, &bs.createdAt, &bs.updatedAt, &b.CreatedBy, &b.UpdatedBy,
	}
}

func (bs *baseScan) finish(b *domain.ItemBase) {
	if bs.priority.Valid && bs.priority.String != "" {
		p := domain.Priority(bs.priority.String)
		b.Priority = &p
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, bs.createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, bs.updatedAt)
}

func validateCreate(p CreateParams) error {
	if err := domain.ValidateName(p.Name); err != nil {
		return err
	}
	if p.Status != "" {
		if err := domain.ValidateStatus(string(p.Status)); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := domain.ValidatePriority(string(*p.Priority)); err != nil {
			return err
		}
	}
	return nil
}

// createItem inserts a row at the end of its status bucket and logs item.created.
func (s *Store) createItem(ctx context.Context, actor string, t itemTable, p CreateParams) (*CreateResult, error) {
	if err := validateCreate(p); err != nil {
		return nil, err
	}
	status := p.Status
	if status == "" {
		status = domain.StatusNotStarted
	}

	var result *CreateResult
	err := s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := checkOwner(ctx, tx, p.ProductUUID, actor); err != nil {
			return err
		}

		// The column spans every kind, so append after all of them.
		var position int
		err := tx.QueryRowContext(ctx, columnTailQuery,
			p.ProductUUID, string(status), p.ProductUUID, string(status),
			p.ProductUUID, string(status), p.ProductUUID, string(status),
		).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to compute position: %w", err)
		}

		friendlyID, err := db.NextID(tx, t.seq)
		if err != nil {
			return err
		}
		itemUUID := uuid.New().String()

		var priority interface{}
		if p.Priority != nil {
			priority = string(*p.Priority)
		}

		columns := []string{"uuid", "id", "product_uuid", "name", "description", "priority", t.statusColumn, "position", "created_by", "updated_by"}
		args := []interface{}{itemUUID, friendlyID, p.ProductUUID, strings.TrimSpace(p.Name), p.Description, priority, string(status), position, actor, actor}
		if t.kind == domain.KindPage {
			columns = append(columns, "route")
			args = append(args, paths.NormalizeRoute(p.Route))
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(columns, ", "), placeholders)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to create %s: %w", t.kind, err)
		}

		etag := int64(1)
		payload := map[string]interface{}{
			"id":       friendlyID,
			"name":     p.Name,
			"status":   string(status),
			"position": position,
		}
		if p.Priority != nil {
			payload["priority"] = string(*p.Priority)
		}
		if err := ew.LogItemEvent(tx, actor, t.kind, itemUUID, events.ItemCreated, &etag, payload); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		result = &CreateResult{UUID: itemUUID, ID: friendlyID, ETag: etag, Position: position}
		return nil
	})

	return result, err
}

// itemFieldsMap converts shared fields to column assignments.
func itemFieldsMap(f domain.ItemFields) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	if f.Name != nil {
		if err := domain.ValidateName(*f.Name); err != nil {
			return nil, err
		}
		fields["name"] = strings.TrimSpace(*f.Name)
	}
	if f.Description != nil {
		fields["description"] = *f.Description
	}
	if f.Priority != nil {
		if *f.Priority == "" {
			fields["priority"] = nil
		} else {
			if err := domain.ValidatePriority(string(*f.Priority)); err != nil {
				return nil, err
			}
			fields["priority"] = string(*f.Priority)
		}
	}
	if f.Position != nil {
		if err := domain.ValidatePosition(*f.Position); err != nil {
			return nil, err
		}
		fields["position"] = *f.Position
	}
	return fields, nil
}

func addStatus(fields map[string]interface{}, column string, status *domain.Status) error {
	if status == nil {
		return nil
	}
	if err := domain.ValidateStatus(string(*status)); err != nil {
		return err
	}
	fields[column] = string(*status)
	return nil
}

// updateItem applies column assignments to one row, bumps its etag and logs
// item.moved (bucket or position change) or item.updated. A move renumbers
// the affected columns in the same transaction.
// Returns the new etag on success.
func (s *Store) updateItem(ctx context.Context, actor string, t itemTable, itemUUID string, fields map[string]interface{}, ifMatch int64) (int64, error) {
	if len(fields) == 0 {
		return 0, &domain.ValidationError{Field: "update", Message: "no fields to update"}
	}

	var newETag int64
	err := s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var currentETag int64
		var productUUID, oldStatus string
		var oldPosition int
		err := tx.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT etag, product_uuid, %s, position FROM %s WHERE uuid = ?", t.statusColumn, t.name,
		), itemUUID).Scan(&currentETag, &productUUID, &oldStatus, &oldPosition)
		if err != nil {
			if err == sql.ErrNoRows {
				return &domain.NotFoundError{Kind: string(t.kind), ID: itemUUID}
			}
			return fmt.Errorf("failed to get current etag: %w", err)
		}

		if err := checkOwner(ctx, tx, productUUID, actor); err != nil {
			return err
		}
		if err := checkETag(currentETag, ifMatch); err != nil {
			return err
		}

		statusValue, statusChanged := fields[t.statusColumn]
		_, positionChanged := fields["position"]
		if statusChanged || positionChanged {
			to := oldStatus
			if statusChanged {
				to = statusValue.(string)
			}
			index := -1
			if p, ok := fields["position"].(int); ok {
				index = p
			}
			placed, err := placeInColumn(ctx, tx, productUUID, itemUUID, oldStatus, to, index)
			if err != nil {
				return err
			}
			fields["position"] = placed
		}

		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var setClauses []string
		var args []interface{}
		for _, key := range keys {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
			args = append(args, fields[key])
		}
		setClauses = append(setClauses,
			"etag = etag + 1",
			"updated_by = ?",
			"updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')",
		)
		args = append(args, actor, itemUUID)

		query := fmt.Sprintf("UPDATE %s SET %s WHERE uuid = ?", t.name, strings.Join(setClauses, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update %s: %w", t.kind, err)
		}
		newETag = currentETag + 1

		eventType := events.ItemUpdated
		payload := make(map[string]interface{}, len(fields)+2)
		for k, v := range fields {
			payload[k] = v
		}
		if statusChanged || positionChanged {
			eventType = events.ItemMoved
			payload["from_status"] = oldStatus
			payload["from_position"] = oldPosition
		}
		if err := ew.LogItemEvent(tx, actor, t.kind, itemUUID, eventType, &newETag, payload); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})

	return newETag, err
}

// deleteItem hard-deletes an item and logs item.deleted. The caller must
// remove the image file named in the result.
func (s *Store) deleteItem(ctx context.Context, actor string, t itemTable, itemUUID string, ifMatch int64) (*DeleteResult, error) {
	var result *DeleteResult
	err := s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var currentETag int64
		var productUUID, friendlyID string
		var imagePath sql.NullString

		query := fmt.Sprintf("SELECT etag, product_uuid, id, NULL FROM %s WHERE uuid = ?", t.name)
		if t.hasImage {
			query = fmt.Sprintf("SELECT etag, product_uuid, id, image_path FROM %s WHERE uuid = ?", t.name)
		}
		err := tx.QueryRowContext(ctx, query, itemUUID).Scan(&currentETag, &productUUID, &friendlyID, &imagePath)
		if err != nil {
			if err == sql.ErrNoRows {
				return &domain.NotFoundError{Kind: string(t.kind), ID: itemUUID}
			}
			return fmt.Errorf("failed to get %s: %w", t.kind, err)
		}

		if err := checkOwner(ctx, tx, productUUID, actor); err != nil {
			return err
		}
		if err := checkETag(currentETag, ifMatch); err != nil {
			return err
		}

		// Log before deleting so the payload can still reference the row.
		payload := map[string]interface{}{"id": friendlyID}
		if imagePath.Valid {
			payload["image_path"] = imagePath.String
		}
		if err := ew.LogItemEvent(tx, actor, t.kind, itemUUID, events.ItemDeleted, nil, payload); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE uuid = ?", t.name), itemUUID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", t.kind, err)
		}

		result = &DeleteResult{}
		if imagePath.Valid && imagePath.String != "" {
			p := imagePath.String
			result.ImagePath = &p
		}
		return nil
	})

	return result, err
}

// setImage records the relative image path of a feature or bug and returns
// the previous path so the caller can remove the replaced file.
func (s *Store) setImage(ctx context.Context, actor string, t itemTable, itemUUID, relativePath string) (int64, *string, error) {
	if !t.hasImage {
		return 0, nil, &domain.ValidationError{Field: "image", Message: fmt.Sprintf("%s items do not carry images", t.kind)}
	}

	var newETag int64
	var previous *string
	err := s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var currentETag int64
		var productUUID string
		var old sql.NullString
		err := tx.QueryRowContext(ctx, fmt.Sprintf(
			"SELECT etag, product_uuid, image_path FROM %s WHERE uuid = ?", t.name,
		), itemUUID).Scan(&currentETag, &productUUID, &old)
		if err != nil {
			if err == sql.ErrNoRows {
				return &domain.NotFoundError{Kind: string(t.kind), ID: itemUUID}
			}
			return fmt.Errorf("failed to get %s: %w", t.kind, err)
		}
		if err := checkOwner(ctx, tx, productUUID, actor); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET image_path = ?,
				etag = etag + 1,
				updated_by = ?,
				updated_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ','now')
			WHERE uuid = ?
		`, t.name), relativePath, actor, itemUUID)
		if err != nil {
			return fmt.Errorf("failed to set image: %w", err)
		}
		newETag = currentETag + 1
		if old.Valid && old.String != "" && old.String != relativePath {
			p := old.String
			previous = &p
		}

		return ew.LogItemEvent(tx, actor, t.kind, itemUUID, events.ItemImageSet, &newETag, map[string]interface{}{
			"image_path": relativePath,
		})
	})

	return newETag, previous, err
}
