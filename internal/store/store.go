// Package store provides a persistence layer that abstracts database operations,
// automatically handling etag management, ownership checks, and event logging.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
)

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db *db.DB

	Products *ProductStore
	Features *FeatureStore
	Bugs     *BugStore
	Tasks    *TaskStore
	Pages    *PageStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database}
	s.Products = &ProductStore{store: s}
	s.Features = &FeatureStore{store: s}
	s.Bugs = &BugStore{store: s}
	s.Tasks = &TaskStore{store: s}
	s.Pages = &PageStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back. Lock contention surfaces as a
// retryable domain.NetworkError.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	ew := events.NewWriter(s.db.DB)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(tx, ew)
	})
	if db.IsTransient(err) {
		return &domain.NetworkError{Op: "store", Err: err}
	}
	return err
}

// checkETag verifies etag matches if ifMatch > 0, returns ETagMismatchError on mismatch.
func checkETag(currentETag, ifMatch int64) error {
	return domain.CheckETag(ifMatch, currentETag)
}

// checkOwner enforces product ownership for writes. Products without an
// owner are writable by any actor.
func checkOwner(ctx context.Context, tx *sql.Tx, productUUID, actor string) error {
	var owner sql.NullString
	var slug string
	err := tx.QueryRowContext(ctx, "SELECT owner_actor, slug FROM products WHERE uuid = ?", productUUID).Scan(&owner, &slug)
	if err != nil {
		if err == sql.ErrNoRows {
			return &domain.NotFoundError{Kind: "product", ID: productUUID}
		}
		return fmt.Errorf("failed to get product owner: %w", err)
	}
	if owner.Valid && owner.String != "" && owner.String != actor {
		return &domain.PermissionError{Actor: actor, Resource: "product " + slug}
	}
	return nil
}

// LoadRecords reads every item kind of a product. The four tables are read
// concurrently.
func (s *Store) LoadRecords(ctx context.Context, productUUID string) (domain.Records, error) {
	var r domain.Records
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		r.Features, err = s.Features.List(gctx, productUUID)
		return err
	})
	g.Go(func() error {
		var err error
		r.Bugs, err = s.Bugs.List(gctx, productUUID)
		return err
	})
	g.Go(func() error {
		var err error
		r.Tasks, err = s.Tasks.List(gctx, productUUID)
		return err
	})
	g.Go(func() error {
		var err error
		r.Pages, err = s.Pages.List(gctx, productUUID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Records{}, err
	}
	return r, nil
}

// UpdateFeature writes a feature update on behalf of actor.
func (s *Store) UpdateFeature(ctx context.Context, actor, uuid string, upd domain.FeatureUpdate, ifMatch int64) (int64, error) {
	return s.Features.Update(ctx, actor, uuid, upd, ifMatch)
}

// UpdateBug writes a bug update on behalf of actor.
func (s *Store) UpdateBug(ctx context.Context, actor, uuid string, upd domain.BugUpdate, ifMatch int64) (int64, error) {
	return s.Bugs.Update(ctx, actor, uuid, upd, ifMatch)
}

// UpdateTask writes a task update on behalf of actor.
func (s *Store) UpdateTask(ctx context.Context, actor, uuid string, upd domain.TaskUpdate, ifMatch int64) (int64, error) {
	return s.Tasks.Update(ctx, actor, uuid, upd, ifMatch)
}

// UpdatePage writes a flow page update on behalf of actor.
func (s *Store) UpdatePage(ctx context.Context, actor, uuid string, upd domain.PageUpdate, ifMatch int64) (int64, error) {
	return s.Pages.Update(ctx, actor, uuid, upd, ifMatch)
}

// DeleteItem deletes an item of any kind.
func (s *Store) DeleteItem(ctx context.Context, actor string, kind domain.Kind, uuid string, ifMatch int64) (*DeleteResult, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.deleteItem(ctx, actor, t, uuid, ifMatch)
}
