package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
	"github.com/fluxr/fluxr/internal/paths"
)

// ProductStore handles product persistence operations.
type ProductStore struct {
	store *Store
}

// ProductCreateParams contains parameters for creating a product.
type ProductCreateParams struct {
	Slug        string
	Name        string
	OwnerActor  *string
	WebhookURLs []string
}

// ProductCreateResult contains the result of product creation.
type ProductCreateResult struct {
	UUID string
	ID   string
	Slug string
	ETag int64
}

// Create creates a new product and logs a product.created event.
func (ps *ProductStore) Create(ctx context.Context, actor string, params ProductCreateParams) (*ProductCreateResult, error) {
	slug, err := paths.NormalizeSlug(params.Slug)
	if err != nil {
		return nil, &domain.ValidationError{Field: "slug", Message: err.Error()}
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = slug
	}
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	var hooks interface{}
	if len(params.WebhookURLs) > 0 {
		data, err := json.Marshal(params.WebhookURLs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode webhook urls: %w", err)
		}
		hooks = string(data)
	}

	var result *ProductCreateResult
	err = ps.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		friendlyID, err := db.NextID(tx, db.ProductSequence)
		if err != nil {
			return err
		}
		productUUID := uuid.New().String()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (uuid, id, slug, name, owner_actor, webhook_urls)
			VALUES (?, ?, ?, ?, ?, ?)
		`, productUUID, friendlyID, slug, name, params.OwnerActor, hooks)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed: products.slug") {
				return &domain.ValidationError{Field: "slug", Message: fmt.Sprintf("product %q already exists", slug)}
			}
			return fmt.Errorf("failed to create product: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{"id": friendlyID, "slug": slug, "name": name})
		payloadStr := string(payload)
		etag := int64(1)
		if err := ew.LogEvent(tx, &domain.Event{
			Actor:        &actor,
			ResourceType: "product",
			ResourceUUID: &productUUID,
			EventType:    events.ProductCreated,
			ETag:         &etag,
			Payload:      &payloadStr,
		}); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}

		result = &ProductCreateResult{UUID: productUUID, ID: friendlyID, Slug: slug, ETag: etag}
		return nil
	})

	return result, err
}

// SetWebhooks replaces the webhook URL list of a product.
func (ps *ProductStore) SetWebhooks(ctx context.Context, actor, productUUID string, urls []string, ifMatch int64) (int64, error) {
	var hooks interface{}
	if len(urls) > 0 {
		data, err := json.Marshal(urls)
		if err != nil {
			return 0, fmt.Errorf("failed to encode webhook urls: %w", err)
		}
		hooks = string(data)
	}

	var newETag int64
	err := ps.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := checkOwner(ctx, tx, productUUID, actor); err != nil {
			return err
		}
		var current int64
		if err := tx.QueryRowContext(ctx, "SELECT etag FROM products WHERE uuid = ?", productUUID).Scan(&current); err != nil {
			return fmt.Errorf("failed to get product etag: %w", err)
		}
		if err := checkETag(current, ifMatch); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET webhook_urls = ?, etag = etag + 1, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')
			WHERE uuid = ?
		`, hooks, productUUID)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		newETag = current + 1

		payload, _ := json.Marshal(map[string]interface{}{"webhook_urls": len(urls)})
		payloadStr := string(payload)
		return ew.LogEvent(tx, &domain.Event{
			Actor:        &actor,
			ResourceType: "product",
			ResourceUUID: &productUUID,
			EventType:    events.ProductUpdated,
			ETag:         &newETag,
			Payload:      &payloadStr,
		})
	})
	return newETag, err
}

const productColumns = "uuid, id, slug, name, owner_actor, webhook_urls, etag, created_at, updated_at"

func scanProduct(row interface{ Scan(...interface{}) error }) (*domain.Product, error) {
	var p domain.Product
	var owner, hooks sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&p.UUID, &p.ID, &p.Slug, &p.Name, &owner, &hooks, &p.ETag, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		p.OwnerActor = &owner.String
	}
	if hooks.Valid {
		p.WebhookURLs = &hooks.String
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// Get retrieves a product by UUID.
func (ps *ProductStore) Get(ctx context.Context, productUUID string) (*domain.Product, error) {
	row := ps.store.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE uuid = ?", productUUID)
	p, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &domain.NotFoundError{Kind: "product", ID: productUUID}
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// List returns every product ordered by slug.
func (ps *ProductStore) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := ps.store.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
