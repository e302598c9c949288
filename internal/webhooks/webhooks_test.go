package webhooks_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"

	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/store"
	"github.com/fluxr/fluxr/internal/testutil"
	"github.com/fluxr/fluxr/internal/webhooks"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNormalizeWebhookURLs(t *testing.T) {
	urls := []string{
		"http://example.com/hook/{item_id}",
		"ftp://invalid.example.com/hook",
		"  http://example.com/hook/{item_id}/  ",
		"http://example.com/{product_id}/",
		"",
	}
	payload := webhooks.Payload{ItemID: "F-00001", ProductID: "P-00001"}

	got := webhooks.NormalizeWebhookURLs(urls, payload, quietLogger())
	expected := []string{
		"http://example.com/hook/F-00001",
		"http://example.com/P-00001",
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected urls\nexpected: %v\nactual:   %v", expected, got)
	}
}

func TestDispatchPostsPayload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	var mu sync.Mutex
	var received []webhooks.Payload
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhooks.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		mu.Lock()
		received = append(received, p)
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	database, _ := testutil.TempDB(t)
	s := store.New(database)
	ctx := context.Background()
	product, err := s.Products.Create(ctx, testutil.TestActor, store.ProductCreateParams{
		Slug:        "demo",
		WebhookURLs: []string{srv.URL + "/items/{item_id}", srv.URL + "/products/{product_id}"},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	created := testutil.SeedItem(t, s, domain.KindBug, product.UUID, "Crash", domain.StatusInProgress)

	d := webhooks.NewDispatcher(database, quietLogger())
	d.ItemChanged(ctx, "item.moved", domain.BoardItem{
		UUID:        created.UUID,
		ID:          created.ID,
		ProductUUID: product.UUID,
		Kind:        domain.KindBug,
		Status:      domain.StatusInProgress,
		Position:    0,
		ETag:        2,
	})
	d.Wait()
	srv.CloseClientConnections()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
	for _, p := range received {
		if p.Event != "item.moved" || p.ItemID != created.ID || p.ProductID != product.ID || p.Kind != domain.KindBug || p.ETag != 2 {
			t.Errorf("unexpected payload %+v", p)
		}
	}
	seen := map[string]bool{}
	for _, p := range paths {
		seen[p] = true
	}
	if !seen["/items/"+created.ID] || !seen["/products/"+product.ID] {
		t.Errorf("unexpected paths %v", paths)
	}
}

func TestDispatchUnknownProductIsLogged(t *testing.T) {
	database, _ := testutil.TempDB(t)
	d := webhooks.NewDispatcher(database, quietLogger())
	// Must not panic or block.
	d.Dispatch(context.Background(), "item.updated", domain.BoardItem{ProductUUID: "missing"})
}
