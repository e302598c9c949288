package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fluxr/fluxr/internal/domain"
)

// RecordLoader loads the stored items of a product.
type RecordLoader interface {
	LoadRecords(ctx context.Context, productUUID string) (domain.Records, error)
}

// Export builds the snapshot of p and stamps its revision.
func Export(ctx context.Context, src RecordLoader, p *domain.Product, generatedAt time.Time) (*Snapshot, error) {
	records, err := src.LoadRecords(ctx, p.UUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	snap, err := Build(p, records)
	if err != nil {
		return nil, err
	}
	if !generatedAt.IsZero() {
		snap.Meta.GeneratedAt = FormatTimestamp(generatedAt)
	}
	return snap, nil
}

// Build assembles a snapshot from a product and its records.
func Build(p *domain.Product, r domain.Records) (*Snapshot, error) {
	urls, err := p.GetWebhookURLs()
	if err != nil {
		return nil, fmt.Errorf("invalid webhook urls on %s: %w", p.ID, err)
	}
	snap := &Snapshot{
		Meta: Meta{SchemaVersion: SchemaVersion},
		Product: ProductEntry{
			UUID:        p.UUID,
			ID:          p.ID,
			Slug:        p.Slug,
			Name:        p.Name,
			WebhookURLs: urls,
			ETag:        p.ETag,
		},
		Items: make(map[string]ItemEntry),
	}
	if p.OwnerActor != nil {
		snap.Product.OwnerActor = *p.OwnerActor
	}

	for _, f := range r.Features {
		e := entry(domain.KindFeature, f.ItemBase, f.ImplementationStatus)
		e.ImagePath = deref(f.ImagePath)
		snap.Items[f.UUID] = e
	}
	for _, b := range r.Bugs {
		e := entry(domain.KindBug, b.ItemBase, b.Status)
		e.ImagePath = deref(b.ImagePath)
		snap.Items[b.UUID] = e
	}
	for _, t := range r.Tasks {
		snap.Items[t.UUID] = entry(domain.KindTask, t.ItemBase, t.Status)
	}
	for _, pg := range r.Pages {
		e := entry(domain.KindPage, pg.ItemBase, pg.ImplementationStatus)
		e.Route = pg.Route
		snap.Items[pg.UUID] = e
	}

	if err := Stamp(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Stamp sets snap.Meta.SnapshotRev from the snapshot's content.
func Stamp(snap *Snapshot) error {
	data, err := CanonicalJSON(snap)
	if err != nil {
		return err
	}
	snap.Meta.SnapshotRev = ComputeSnapshotRev(data)
	return nil
}

// Verify decodes an exported snapshot and checks that its content still
// matches the recorded revision.
func Verify(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	if snap.Meta.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema_version %d", snap.Meta.SchemaVersion)
	}
	if snap.Meta.SnapshotRev == "" {
		return nil, fmt.Errorf("snapshot has no snapshot_rev")
	}

	canonical, err := CanonicalJSON(&snap)
	if err != nil {
		return nil, err
	}
	if rev := ComputeSnapshotRev(canonical); rev != snap.Meta.SnapshotRev {
		return nil, fmt.Errorf("snapshot_rev mismatch: recorded %s, content %s", snap.Meta.SnapshotRev, rev)
	}
	return &snap, nil
}

func entry(kind domain.Kind, b domain.ItemBase, status domain.Status) ItemEntry {
	e := ItemEntry{
		ID:          b.ID,
		Kind:        string(kind),
		Name:        b.Name,
		Description: b.Description,
		Status:      string(status),
		Position:    b.Position,
		ETag:        b.ETag,
		CreatedAt:   FormatTimestamp(b.CreatedAt),
		UpdatedAt:   FormatTimestamp(b.UpdatedAt),
		CreatedBy:   b.CreatedBy,
		UpdatedBy:   b.UpdatedBy,
	}
	if b.Priority != nil {
		e.Priority = string(*b.Priority)
	}
	return e
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
