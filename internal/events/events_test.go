package events_test

import (
	"context"
	"testing"

	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
	"github.com/fluxr/fluxr/internal/testutil"
)

func TestListNewestFirst(t *testing.T) {
	s := testutil.TempStore(t)
	product := testutil.SeedProduct(t, s, "demo")
	task := testutil.SeedItem(t, s, domain.KindTask, product, "Write docs", domain.StatusNotStarted)

	name := "Write better docs"
	if _, err := s.UpdateTask(context.Background(), testutil.TestActor, task.UUID, domain.TaskUpdate{ItemFields: domain.ItemFields{Name: &name}}, 0); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	evs, err := events.List(s.DB(), task.UUID, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].EventType != events.ItemUpdated || evs[1].EventType != events.ItemCreated {
		t.Errorf("unexpected order: %s, %s", evs[0].EventType, evs[1].EventType)
	}
	if evs[0].Actor == nil || *evs[0].Actor != testutil.TestActor {
		t.Errorf("actor = %v, want %s", evs[0].Actor, testutil.TestActor)
	}

	all, err := events.List(s.DB(), "", 0)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 || all[2].EventType != events.ProductCreated {
		t.Errorf("unexpected full log: %+v", all)
	}
}

func TestPage(t *testing.T) {
	s := testutil.TempStore(t)
	product := testutil.SeedProduct(t, s, "demo")
	for _, name := range []string{"One", "Two", "Three", "Four"} {
		testutil.SeedItem(t, s, domain.KindFeature, product, name, domain.StatusNotStarted)
	}

	var (
		seen  []int64
		after string
		pages int
	)
	for {
		evs, next, err := events.Page(s.DB(), "", 2, after)
		if err != nil {
			t.Fatalf("Page: %v", err)
		}
		pages++
		for _, ev := range evs {
			seen = append(seen, ev.ID)
		}
		if next == "" {
			break
		}
		after = next
	}

	if pages != 3 || len(seen) != 5 {
		t.Fatalf("got %d pages with %d events, want 3 pages with 5", pages, len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] >= seen[i-1] {
			t.Fatalf("events not strictly newest first: %v", seen)
		}
	}

	if _, _, err := events.Page(s.DB(), "", 2, "garbage!"); err == nil {
		t.Error("expected error for malformed cursor")
	}
}
