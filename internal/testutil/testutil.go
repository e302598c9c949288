// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/store"
)

// TestActor is the actor used by fixtures.
const TestActor = "tester"

// TempDB creates a migrated SQLite database for testing
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// TempStore returns a store over a fresh database.
func TempStore(t *testing.T) *store.Store {
	t.Helper()
	database, _ := TempDB(t)
	return store.New(database)
}

// SeedProduct creates an unowned product and returns its UUID.
func SeedProduct(t *testing.T, s *store.Store, slug string) string {
	t.Helper()
	res, err := s.Products.Create(context.Background(), TestActor, store.ProductCreateParams{Slug: slug})
	if err != nil {
		t.Fatalf("Failed to create product %s: %v", slug, err)
	}
	return res.UUID
}

// SeedItem creates an item of the given kind and returns its creation result.
func SeedItem(t *testing.T, s *store.Store, kind domain.Kind, productUUID, name string, status domain.Status) *store.CreateResult {
	t.Helper()
	ctx := context.Background()
	params := store.CreateParams{ProductUUID: productUUID, Name: name, Status: status}

	var res *store.CreateResult
	var err error
	switch kind {
	case domain.KindFeature:
		res, err = s.Features.Create(ctx, TestActor, params)
	case domain.KindBug:
		res, err = s.Bugs.Create(ctx, TestActor, params)
	case domain.KindTask:
		res, err = s.Tasks.Create(ctx, TestActor, params)
	case domain.KindPage:
		res, err = s.Pages.Create(ctx, TestActor, params)
	default:
		t.Fatalf("unknown kind %q", kind)
	}
	if err != nil {
		t.Fatalf("Failed to create %s %s: %v", kind, name, err)
	}
	return res
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}
