package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fluxr/fluxr/internal/domain"
)

// FeatureStore handles feature persistence operations.
type FeatureStore struct {
	store *Store
}

// BugStore handles bug persistence operations.
type BugStore struct {
	store *Store
}

// TaskStore handles task persistence operations.
type TaskStore struct {
	store *Store
}

// PageStore handles flow page persistence operations.
type PageStore struct {
	store *Store
}

// Create creates a new feature and logs an item.created event.
func (fs *FeatureStore) Create(ctx context.Context, actor string, params CreateParams) (*CreateResult, error) {
	return fs.store.createItem(ctx, actor, featureTable, params)
}

// Update applies a partial update to a feature.
func (fs *FeatureStore) Update(ctx context.Context, actor, uuid string, upd domain.FeatureUpdate, ifMatch int64) (int64, error) {
	fields, err := itemFieldsMap(upd.ItemFields)
	if err != nil {
		return 0, err
	}
	if err := addStatus(fields, featureTable.statusColumn, upd.ImplementationStatus); err != nil {
		return 0, err
	}
	return fs.store.updateItem(ctx, actor, featureTable, uuid, fields, ifMatch)
}

// Delete removes a feature.
func (fs *FeatureStore) Delete(ctx context.Context, actor, uuid string, ifMatch int64) (*DeleteResult, error) {
	return fs.store.deleteItem(ctx, actor, featureTable, uuid, ifMatch)
}

// SetImage records the stored image of a feature.
func (fs *FeatureStore) SetImage(ctx context.Context, actor, uuid, relativePath string) (int64, *string, error) {
	return fs.store.setImage(ctx, actor, featureTable, uuid, relativePath)
}

// Get retrieves a feature by UUID.
func (fs *FeatureStore) Get(ctx context.Context, uuid string) (*domain.Feature, error) {
	rows, err := fs.query(ctx, "uuid = ?", uuid)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.NotFoundError{Kind: string(domain.KindFeature), ID: uuid}
	}
	return &rows[0], nil
}

// List returns all features of a product ordered by bucket and position.
func (fs *FeatureStore) List(ctx context.Context, productUUID string) ([]domain.Feature, error) {
	return fs.query(ctx, "product_uuid = ?", productUUID)
}

func (fs *FeatureStore) query(ctx context.Context, where string, arg string) ([]domain.Feature, error) {
	query := fmt.Sprintf(
		"SELECT %s, implementation_status, image_path FROM features WHERE %s ORDER BY implementation_status, position, id",
		baseColumns, where,
	)
	rows, err := fs.store.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var out []domain.Feature
	for rows.Next() {
		var f domain.Feature
		var bs baseScan
		var imagePath sql.NullString
		dest := append(bs.dest(&f.ItemBase), &f.ImplementationStatus, &imagePath)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		bs.finish(&f.ItemBase)
		if imagePath.Valid {
			p := imagePath.String
			f.ImagePath = &p
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Create creates a new bug and logs an item.created event.
func (bs *BugStore) Create(ctx context.Context, actor string, params CreateParams) (*CreateResult, error) {
	return bs.store.createItem(ctx, actor, bugTable, params)
}

// Update applies a partial update to a bug.
func (bs *BugStore) Update(ctx context.Context, actor, uuid string, upd domain.BugUpdate, ifMatch int64) (int64, error) {
	fields, err := itemFieldsMap(upd.ItemFields)
	if err != nil {
		return 0, err
	}
	if err := addStatus(fields, bugTable.statusColumn, upd.Status); err != nil {
		return 0, err
	}
	return bs.store.updateItem(ctx, actor, bugTable, uuid, fields, ifMatch)
}

// Delete removes a bug.
func (bs *BugStore) Delete(ctx context.Context, actor, uuid string, ifMatch int64) (*DeleteResult, error) {
	return bs.store.deleteItem(ctx, actor, bugTable, uuid, ifMatch)
}

// SetImage records the stored screenshot of a bug.
func (bs *BugStore) SetImage(ctx context.Context, actor, uuid, relativePath string) (int64, *string, error) {
	return bs.store.setImage(ctx, actor, bugTable, uuid, relativePath)
}

// Get retrieves a bug by UUID.
func (bs *BugStore) Get(ctx context.Context, uuid string) (*domain.Bug, error) {
	rows, err := bs.query(ctx, "uuid = ?", uuid)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.NotFoundError{Kind: string(domain.KindBug), ID: uuid}
	}
	return &rows[0], nil
}

// List returns all bugs of a product ordered by bucket and position.
func (bs *BugStore) List(ctx context.Context, productUUID string) ([]domain.Bug, error) {
	return bs.query(ctx, "product_uuid = ?", productUUID)
}

func (bs *BugStore) query(ctx context.Context, where string, arg string) ([]domain.Bug, error) {
	query := fmt.Sprintf(
		"SELECT %s, status, image_path FROM bugs WHERE %s ORDER BY status, position, id",
		baseColumns, where,
	)
	rows, err := bs.store.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query bugs: %w", err)
	}
	defer rows.Close()

	var out []domain.Bug
	for rows.Next() {
		var b domain.Bug
		var scan baseScan
		var imagePath sql.NullString
		dest := append(scan.dest(&b.ItemBase), &b.Status, &imagePath)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan bug: %w", err)
		}
		scan.finish(&b.ItemBase)
		if imagePath.Valid {
			p := imagePath.String
			b.ImagePath = &p
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Create creates a new task and logs an item.created event.
func (ts *TaskStore) Create(ctx context.Context, actor string, params CreateParams) (*CreateResult, error) {
	return ts.store.createItem(ctx, actor, taskTable, params)
}

// Update applies a partial update to a task.
func (ts *TaskStore) Update(ctx context.Context, actor, uuid string, upd domain.TaskUpdate, ifMatch int64) (int64, error) {
	fields, err := itemFieldsMap(upd.ItemFields)
	if err != nil {
		return 0, err
	}
	if err := addStatus(fields, taskTable.statusColumn, upd.Status); err != nil {
		return 0, err
	}
	return ts.store.updateItem(ctx, actor, taskTable, uuid, fields, ifMatch)
}

// Delete removes a task.
func (ts *TaskStore) Delete(ctx context.Context, actor, uuid string, ifMatch int64) (*DeleteResult, error) {
	return ts.store.deleteItem(ctx, actor, taskTable, uuid, ifMatch)
}

// Get retrieves a task by UUID.
func (ts *TaskStore) Get(ctx context.Context, uuid string) (*domain.Task, error) {
	rows, err := ts.query(ctx, "uuid = ?", uuid)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.NotFoundError{Kind: string(domain.KindTask), ID: uuid}
	}
	return &rows[0], nil
}

// List returns all tasks of a product ordered by bucket and position.
func (ts *TaskStore) List(ctx context.Context, productUUID string) ([]domain.Task, error) {
	return ts.query(ctx, "product_uuid = ?", productUUID)
}

func (ts *TaskStore) query(ctx context.Context, where string, arg string) ([]domain.Task, error) {
	query := fmt.Sprintf(
		"SELECT %s, status FROM tasks WHERE %s ORDER BY status, position, id",
		baseColumns, where,
	)
	rows, err := ts.store.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		var task domain.Task
		var scan baseScan
		dest := append(scan.dest(&task.ItemBase), &task.Status)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		scan.finish(&task.ItemBase)
		out = append(out, task)
	}
	return out, rows.Err()
}

// Create creates a new flow page and logs an item.created event.
func (ps *PageStore) Create(ctx context.Context, actor string, params CreateParams) (*CreateResult, error) {
	return ps.store.createItem(ctx, actor, pageTable, params)
}

// Update applies a partial update to a flow page.
func (ps *PageStore) Update(ctx context.Context, actor, uuid string, upd domain.PageUpdate, ifMatch int64) (int64, error) {
	fields, err := itemFieldsMap(upd.ItemFields)
	if err != nil {
		return 0, err
	}
	if err := addStatus(fields, pageTable.statusColumn, upd.ImplementationStatus); err != nil {
		return 0, err
	}
	return ps.store.updateItem(ctx, actor, pageTable, uuid, fields, ifMatch)
}

// Delete removes a flow page.
func (ps *PageStore) Delete(ctx context.Context, actor, uuid string, ifMatch int64) (*DeleteResult, error) {
	return ps.store.deleteItem(ctx, actor, pageTable, uuid, ifMatch)
}

// Get retrieves a flow page by UUID.
func (ps *PageStore) Get(ctx context.Context, uuid string) (*domain.Page, error) {
	rows, err := ps.query(ctx, "uuid = ?", uuid)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.NotFoundError{Kind: string(domain.KindPage), ID: uuid}
	}
	return &rows[0], nil
}

// List returns all flow pages of a product ordered by bucket and position.
func (ps *PageStore) List(ctx context.Context, productUUID string) ([]domain.Page, error) {
	return ps.query(ctx, "product_uuid = ?", productUUID)
}

func (ps *PageStore) query(ctx context.Context, where string, arg string) ([]domain.Page, error) {
	query := fmt.Sprintf(
		"SELECT %s, implementation_status, route FROM flow_pages WHERE %s ORDER BY implementation_status, position, id",
		baseColumns, where,
	)
	rows, err := ps.store.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow pages: %w", err)
	}
	defer rows.Close()

	var out []domain.Page
	for rows.Next() {
		var p domain.Page
		var scan baseScan
		dest := append(scan.dest(&p.ItemBase), &p.ImplementationStatus, &p.Route)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan flow page: %w", err)
		}
		scan.finish(&p.ItemBase)
		out = append(out, p)
	}
	return out, rows.Err()
}
