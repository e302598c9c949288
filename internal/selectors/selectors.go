package selectors

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/id"
	"github.com/fluxr/fluxr/internal/paths"
)

// Type represents the kind of resource being selected
type Type string

const (
	TypeFeature Type = "feature"
	TypeBug     Type = "bug"
	TypeTask    Type = "task"
	TypePage    Type = "page"
	TypeAuto    Type = "auto" // Auto-detect based on selector
)

// Selector represents a parsed typed selector
type Selector struct {
	Type  Type
	Token string // The part after the prefix (e.g., "B-00012" from "bug:B-00012")
}

var typedPrefixes = []struct {
	prefix string
	typ    Type
}{
	{"feature:", TypeFeature},
	{"bug:", TypeBug},
	{"task:", TypeTask},
	{"page:", TypePage},
}

// Parse parses a selector string and returns the type and token
// Supports: feature:<token>, bug:<token>, task:<token>, page:<token>,
// or plain <token> (auto-detect)
func Parse(selector string) Selector {
	for _, p := range typedPrefixes {
		if strings.HasPrefix(selector, p.prefix) {
			return Selector{Type: p.typ, Token: strings.TrimPrefix(selector, p.prefix)}
		}
	}
	return Selector{Type: TypeAuto, Token: selector}
}

// Item is a resolved board item reference.
type Item struct {
	Kind        domain.Kind
	UUID        string
	ID          string
	ProductUUID string
}

var itemTables = []struct {
	kind  domain.Kind
	table string
	typ   id.Type
}{
	{domain.KindFeature, "features", id.TypeFeature},
	{domain.KindBug, "bugs", id.TypeBug},
	{domain.KindTask, "tasks", id.TypeTask},
	{domain.KindPage, "flow_pages", id.TypePage},
}

// ResolveItem resolves an item selector to its kind and UUID. Friendly IDs
// pick the table from their prefix; UUIDs are looked up in every table.
func ResolveItem(database *db.DB, selector string) (Item, error) {
	parsed := Parse(selector)
	token := strings.TrimSpace(parsed.Token)
	if token == "" {
		return Item{}, fmt.Errorf("empty item selector")
	}

	if typ, _, err := id.Parse(token); err == nil {
		if typ == id.TypeProduct {
			return Item{}, fmt.Errorf("expected item selector, got product %s", token)
		}
		friendly := id.Canonical(token)
		for _, t := range itemTables {
			if t.typ != typ {
				continue
			}
			if parsed.Type != TypeAuto && Type(t.kind) != parsed.Type {
				return Item{}, fmt.Errorf("expected %s selector, got %s", parsed.Type, friendly)
			}
			item, found, err := lookup(database, t.kind, t.table, "id", friendly)
			if err != nil {
				return Item{}, err
			}
			if !found {
				return Item{}, &domain.NotFoundError{Kind: string(t.kind), ID: friendly}
			}
			return item, nil
		}
	}

	if !id.IsUUID(token) {
		return Item{}, fmt.Errorf("invalid item selector: %s (expected F-00001, B-00001, T-00001, PG-00001 or UUID)", token)
	}
	uuid := strings.ToLower(token)
	for _, t := range itemTables {
		if parsed.Type != TypeAuto && Type(t.kind) != parsed.Type {
			continue
		}
		item, found, err := lookup(database, t.kind, t.table, "uuid", uuid)
		if err != nil {
			return Item{}, err
		}
		if found {
			return item, nil
		}
	}
	return Item{}, &domain.NotFoundError{Kind: "item", ID: token}
}

func lookup(database *db.DB, kind domain.Kind, table, column, value string) (Item, bool, error) {
	item := Item{Kind: kind}
	query := fmt.Sprintf("SELECT uuid, id, product_uuid FROM %s WHERE %s = ?", table, column)
	err := database.QueryRow(query, value).Scan(&item.UUID, &item.ID, &item.ProductUUID)
	if err == sql.ErrNoRows {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("database error: %w", err)
	}
	return item, true, nil
}

// ResolveProduct resolves a product selector to its UUID.
// Accepts a P- friendly ID, a UUID, or a slug.
// Returns (uuid, friendlyID, error)
func ResolveProduct(database *db.DB, selector string) (string, string, error) {
	token := strings.TrimSpace(selector)
	if token == "" {
		return "", "", fmt.Errorf("empty product selector")
	}

	var query, arg string
	switch {
	case id.IsUUID(token):
		query, arg = "SELECT uuid, id FROM products WHERE uuid = ?", strings.ToLower(token)
	case id.IsFriendlyID(token):
		typ, _, _ := id.Parse(token)
		if typ != id.TypeProduct {
			return "", "", fmt.Errorf("expected product selector, got %s %s", typ, token)
		}
		query, arg = "SELECT uuid, id FROM products WHERE id = ?", id.Canonical(token)
	default:
		slug, err := paths.NormalizeSlug(token)
		if err != nil {
			return "", "", fmt.Errorf("invalid product slug %q: %w", token, err)
		}
		query, arg = "SELECT uuid, id FROM products WHERE slug = ?", slug
	}

	var uuid, friendlyID string
	err := database.QueryRow(query, arg).Scan(&uuid, &friendlyID)
	if err == sql.ErrNoRows {
		return "", "", &domain.NotFoundError{Kind: "product", ID: token}
	}
	if err != nil {
		return "", "", fmt.Errorf("database error: %w", err)
	}
	return uuid, friendlyID, nil
}
