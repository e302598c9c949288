package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
)

const testActor = "tester"

// setupTestDB creates a temporary test database with migrations applied.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// setupTestProduct creates a product and returns its UUID.
func setupTestProduct(t *testing.T, s *Store, owner *string) string {
	t.Helper()
	result, err := s.Products.Create(context.Background(), testActor, ProductCreateParams{
		Slug:       "Demo App",
		OwnerActor: owner,
	})
	if err != nil {
		t.Fatalf("failed to create test product: %v", err)
	}
	return result.UUID
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.Status) *domain.Status { return &s }

func TestProductStore_Create(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()

	result, err := s.Products.Create(ctx, testActor, ProductCreateParams{
		Slug:        "Demo App",
		WebhookURLs: []string{"http://localhost:9/hook"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.Slug != "demo-app" {
		t.Errorf("expected slug 'demo-app', got %q", result.Slug)
	}
	if result.ID != "P-00001" {
		t.Errorf("expected ID P-00001, got %q", result.ID)
	}

	p, err := s.Products.Get(ctx, result.UUID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	urls, err := p.GetWebhookURLs()
	if err != nil || len(urls) != 1 {
		t.Fatalf("expected one webhook url, got %v (%v)", urls, err)
	}

	_, err = s.Products.Create(ctx, testActor, ProductCreateParams{Slug: "demo-app"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for duplicate slug, got %v", err)
	}

	var eventCount int
	database.QueryRow("SELECT COUNT(*) FROM event_log WHERE resource_uuid = ? AND event_type = 'product.created'", result.UUID).Scan(&eventCount)
	if eventCount != 1 {
		t.Errorf("expected 1 product.created event, got %d", eventCount)
	}
}

func TestProductStore_SetWebhooks(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	etag, err := s.Products.SetWebhooks(ctx, testActor, productUUID, []string{"https://example.com/a", "https://example.com/b"}, 1)
	if err != nil {
		t.Fatalf("SetWebhooks: %v", err)
	}
	if etag != 2 {
		t.Errorf("expected etag 2, got %d", etag)
	}
	p, err := s.Products.Get(ctx, productUUID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	urls, err := p.GetWebhookURLs()
	if err != nil || len(urls) != 2 || urls[1] != "https://example.com/b" {
		t.Errorf("stored urls = %v, %v", urls, err)
	}

	var mismatch *domain.ETagMismatchError
	if _, err := s.Products.SetWebhooks(ctx, testActor, productUUID, nil, 1); !errors.As(err, &mismatch) {
		t.Errorf("expected ETagMismatchError, got %v", err)
	}
	if _, err := s.Products.SetWebhooks(ctx, testActor, productUUID, nil, 0); err != nil {
		t.Fatalf("clear webhooks: %v", err)
	}
	p, _ = s.Products.Get(ctx, productUUID)
	if urls, _ := p.GetWebhookURLs(); len(urls) != 0 {
		t.Errorf("expected no webhooks, got %v", urls)
	}

	var updated int
	database.QueryRow("SELECT COUNT(*) FROM event_log WHERE resource_uuid = ? AND event_type = 'product.updated'", productUUID).Scan(&updated)
	if updated != 2 {
		t.Errorf("expected 2 product.updated events, got %d", updated)
	}
}

func TestFeatureStore_Create(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	must := domain.PriorityMustHave
	first, err := s.Features.Create(ctx, testActor, CreateParams{
		ProductUUID: productUUID,
		Name:        "  Login  ",
		Description: "OAuth login",
		Priority:    &must,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID != "F-00001" || first.ETag != 1 || first.Position != 0 {
		t.Errorf("unexpected create result: %+v", first)
	}

	second, err := s.Features.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "Signup"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if second.Position != 1 {
		t.Errorf("expected second feature appended at position 1, got %d", second.Position)
	}

	f, err := s.Features.Get(ctx, first.UUID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if f.Name != "Login" {
		t.Errorf("expected trimmed name 'Login', got %q", f.Name)
	}
	if f.ImplementationStatus != domain.StatusNotStarted {
		t.Errorf("expected default status not_started, got %q", f.ImplementationStatus)
	}
	if f.Priority == nil || *f.Priority != domain.PriorityMustHave {
		t.Errorf("expected must-have priority, got %v", f.Priority)
	}
	if f.CreatedBy != testActor {
		t.Errorf("expected created_by %q, got %q", testActor, f.CreatedBy)
	}

	var eventCount int
	database.QueryRow("SELECT COUNT(*) FROM event_log WHERE resource_uuid = ? AND event_type = 'item.created'", first.UUID).Scan(&eventCount)
	if eventCount != 1 {
		t.Errorf("expected 1 item.created event, got %d", eventCount)
	}
}

func TestCreate_Validation(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	bad := domain.Priority("urgent")
	tests := []struct {
		name   string
		params CreateParams
	}{
		{"empty name", CreateParams{ProductUUID: productUUID, Name: "   "}},
		{"bad status", CreateParams{ProductUUID: productUUID, Name: "x", Status: "blocked"}},
		{"bad priority", CreateParams{ProductUUID: productUUID, Name: "x", Priority: &bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Bugs.Create(ctx, testActor, tt.params)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	_, err := s.Tasks.Create(ctx, testActor, CreateParams{ProductUUID: "missing", Name: "x"})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for missing product, got %v", err)
	}
}

func TestUpdate_MoveAndETag(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	created, err := s.Bugs.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "Crash"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	pos := 0
	newETag, err := s.UpdateBug(ctx, testActor, created.UUID, domain.BugUpdate{
		ItemFields: domain.ItemFields{Position: &pos},
		Status:     statusPtr(domain.StatusInProgress),
	}, created.ETag)
	if err != nil {
		t.Fatalf("UpdateBug failed: %v", err)
	}
	if newETag != 2 {
		t.Errorf("expected etag 2, got %d", newETag)
	}

	b, _ := s.Bugs.Get(ctx, created.UUID)
	if b.Status != domain.StatusInProgress {
		t.Errorf("expected status in_progress, got %q", b.Status)
	}

	var moved int
	database.QueryRow("SELECT COUNT(*) FROM event_log WHERE resource_uuid = ? AND event_type = 'item.moved'", created.UUID).Scan(&moved)
	if moved != 1 {
		t.Errorf("expected 1 item.moved event, got %d", moved)
	}

	// Stale etag
	name := "Crash on launch"
	_, err = s.UpdateBug(ctx, testActor, created.UUID, domain.BugUpdate{ItemFields: domain.ItemFields{Name: &name}}, 1)
	var mismatch *domain.ETagMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ETagMismatchError, got %v", err)
	}
	if mismatch.Actual != 2 {
		t.Errorf("expected actual etag 2, got %d", mismatch.Actual)
	}

	_, err = s.UpdateBug(ctx, testActor, "00000000-0000-0000-0000-000000000000", domain.BugUpdate{ItemFields: domain.ItemFields{Name: &name}}, 0)
	if !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	_, err = s.UpdateBug(ctx, testActor, created.UUID, domain.BugUpdate{}, 0)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty update, got %v", err)
	}
}

func TestUpdate_PerKindStatusColumns(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	done := statusPtr(domain.StatusCompleted)

	f, _ := s.Features.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "f"})
	task, _ := s.Tasks.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "t"})
	page, _ := s.Pages.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "p", Route: "/home"})

	if _, err := s.UpdateFeature(ctx, testActor, f.UUID, domain.FeatureUpdate{ImplementationStatus: done}, 0); err != nil {
		t.Fatalf("UpdateFeature failed: %v", err)
	}
	if _, err := s.UpdateTask(ctx, testActor, task.UUID, domain.TaskUpdate{Status: done}, 0); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if _, err := s.UpdatePage(ctx, testActor, page.UUID, domain.PageUpdate{ImplementationStatus: done}, 0); err != nil {
		t.Fatalf("UpdatePage failed: %v", err)
	}

	records, err := s.LoadRecords(ctx, productUUID)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(records.Features) != 1 || records.Features[0].ImplementationStatus != domain.StatusCompleted {
		t.Errorf("feature not completed: %+v", records.Features)
	}
	if len(records.Tasks) != 1 || records.Tasks[0].Status != domain.StatusCompleted {
		t.Errorf("task not completed: %+v", records.Tasks)
	}
	if len(records.Pages) != 1 || records.Pages[0].ImplementationStatus != domain.StatusCompleted {
		t.Errorf("page not completed: %+v", records.Pages)
	}
	if records.Pages[0].Route != "/home" {
		t.Errorf("expected route /home, got %q", records.Pages[0].Route)
	}
	if len(records.Bugs) != 0 {
		t.Errorf("expected no bugs, got %d", len(records.Bugs))
	}
}

func TestOwnerEnforcement(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, strPtr(testActor))

	created, err := s.Features.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "owned"})
	if err != nil {
		t.Fatalf("owner create failed: %v", err)
	}

	_, err = s.Features.Create(ctx, "intruder", CreateParams{ProductUUID: productUUID, Name: "nope"})
	var pe *domain.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError on create, got %v", err)
	}

	_, err = s.UpdateFeature(ctx, "intruder", created.UUID, domain.FeatureUpdate{ImplementationStatus: statusPtr(domain.StatusCompleted)}, 0)
	if !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError on update, got %v", err)
	}
	if pe.Actor != "intruder" {
		t.Errorf("expected actor intruder, got %q", pe.Actor)
	}

	if _, err := s.DeleteItem(ctx, "intruder", domain.KindFeature, created.UUID, 0); !errors.As(err, &pe) {
		t.Fatalf("expected PermissionError on delete, got %v", err)
	}
}

func TestDeleteItem(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	created, _ := s.Bugs.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "gone"})
	if _, _, err := s.Bugs.SetImage(ctx, testActor, created.UUID, "bug/"+created.UUID+"/shot.png"); err != nil {
		t.Fatalf("SetImage failed: %v", err)
	}

	result, err := s.DeleteItem(ctx, testActor, domain.KindBug, created.UUID, 0)
	if err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if result.ImagePath == nil || *result.ImagePath != "bug/"+created.UUID+"/shot.png" {
		t.Errorf("expected image path in result, got %v", result.ImagePath)
	}

	if _, err := s.Bugs.Get(ctx, created.UUID); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError after delete, got %v", err)
	}
	if _, err := s.DeleteItem(ctx, testActor, domain.KindBug, created.UUID, 0); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError on second delete, got %v", err)
	}

	var deleted int
	database.QueryRow("SELECT COUNT(*) FROM event_log WHERE resource_uuid = ? AND event_type = 'item.deleted'", created.UUID).Scan(&deleted)
	if deleted != 1 {
		t.Errorf("expected 1 item.deleted event, got %d", deleted)
	}
}

func TestSetImage_ReturnsPrevious(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	f, _ := s.Features.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "pic"})
	if _, prev, err := s.Features.SetImage(ctx, testActor, f.UUID, "feature/a.png"); err != nil || prev != nil {
		t.Fatalf("first SetImage: prev=%v err=%v", prev, err)
	}
	_, prev, err := s.Features.SetImage(ctx, testActor, f.UUID, "feature/b.png")
	if err != nil {
		t.Fatalf("second SetImage failed: %v", err)
	}
	if prev == nil || *prev != "feature/a.png" {
		t.Errorf("expected previous path feature/a.png, got %v", prev)
	}

	task, _ := s.Tasks.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "no pic"})
	if _, _, err := s.setImage(ctx, testActor, taskTable, task.UUID, "task/x.png"); err == nil {
		t.Fatal("expected error setting image on a task")
	}
}

func TestUpdate_RenumbersColumnAcrossKinds(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	bug, _ := s.Bugs.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "Crash", Status: domain.StatusInProgress})
	task, _ := s.Tasks.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "Docs", Status: domain.StatusInProgress})
	feature, _ := s.Features.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "Login"})
	page, _ := s.Pages.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "Home"})

	one := 1
	if _, err := s.UpdateFeature(ctx, testActor, feature.UUID, domain.FeatureUpdate{
		ItemFields:           domain.ItemFields{Position: &one},
		ImplementationStatus: statusPtr(domain.StatusInProgress),
	}, feature.ETag); err != nil {
		t.Fatalf("UpdateFeature failed: %v", err)
	}

	positions := func() map[string]int {
		out := map[string]int{}
		for _, q := range []string{
			"SELECT id, position FROM features", "SELECT id, position FROM bugs",
			"SELECT id, position FROM tasks", "SELECT id, position FROM flow_pages",
		} {
			rows, err := database.Query(q)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			for rows.Next() {
				var id string
				var pos int
				rows.Scan(&id, &pos)
				out[id] = pos
			}
			rows.Close()
		}
		return out
	}
	want := map[string]int{bug.ID: 0, feature.ID: 1, task.ID: 2, page.ID: 0}
	if diff := cmp.Diff(want, positions()); diff != "" {
		t.Errorf("positions after move (-want +got):\n%s", diff)
	}

	tk, _ := s.Tasks.Get(ctx, task.UUID)
	if tk.ETag != 1 {
		t.Errorf("renumbered task etag = %d, want 1", tk.ETag)
	}

	// A status change without a position appends to the new column.
	if _, err := s.UpdateBug(ctx, testActor, bug.UUID, domain.BugUpdate{Status: statusPtr(domain.StatusNotStarted)}, 0); err != nil {
		t.Fatalf("UpdateBug failed: %v", err)
	}
	want = map[string]int{feature.ID: 0, task.ID: 1, page.ID: 0, bug.ID: 1}
	if diff := cmp.Diff(want, positions()); diff != "" {
		t.Errorf("positions after status change (-want +got):\n%s", diff)
	}
}

func TestLoadRecords_Ordering(t *testing.T) {
	s := New(setupTestDB(t))
	ctx := context.Background()
	productUUID := setupTestProduct(t, s, nil)

	a, _ := s.Tasks.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "a"})
	b, _ := s.Tasks.Create(ctx, testActor, CreateParams{ProductUUID: productUUID, Name: "b"})

	zero := 0
	two := 2
	s.UpdateTask(ctx, testActor, a.UUID, domain.TaskUpdate{ItemFields: domain.ItemFields{Position: &two}}, 0)
	s.UpdateTask(ctx, testActor, b.UUID, domain.TaskUpdate{ItemFields: domain.ItemFields{Position: &zero}}, 0)

	records, err := s.LoadRecords(ctx, productUUID)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(records.Tasks) != 2 || records.Tasks[0].UUID != b.UUID {
		t.Errorf("expected b first after reorder, got %+v", records.Tasks)
	}
}
