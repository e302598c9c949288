// Package board implements the kanban board: the unified item view, the
// column partitioning and filtering, and the drag controller that persists
// moves through a SyncStrategy with optimistic rollback.
package board

import (
	"github.com/fluxr/fluxr/internal/domain"
)

// Normalize projects the four record kinds onto BoardItem. Features come
// first, then bugs, tasks and pages, each in input order. Records are not
// modified; a missing priority stays empty on the item.
func Normalize(r domain.Records) []domain.BoardItem {
	items := make([]domain.BoardItem, 0, len(r.Features)+len(r.Bugs)+len(r.Tasks)+len(r.Pages))
	for _, f := range r.Features {
		items = append(items, fromBase(domain.KindFeature, f.ItemBase, f.ImplementationStatus))
	}
	for _, b := range r.Bugs {
		items = append(items, fromBase(domain.KindBug, b.ItemBase, b.Status))
	}
	for _, t := range r.Tasks {
		items = append(items, fromBase(domain.KindTask, t.ItemBase, t.Status))
	}
	for _, p := range r.Pages {
		items = append(items, fromBase(domain.KindPage, p.ItemBase, p.ImplementationStatus))
	}
	return items
}

func fromBase(kind domain.Kind, b domain.ItemBase, status domain.Status) domain.BoardItem {
	item := domain.BoardItem{
		UUID:        b.UUID,
		ID:          b.ID,
		ProductUUID: b.ProductUUID,
		Kind:        kind,
		Name:        b.Name,
		Description: b.Description,
		Status:      status,
		Position:    b.Position,
		ETag:        b.ETag,
	}
	if b.Priority != nil {
		item.Priority = *b.Priority
	}
	return item
}
