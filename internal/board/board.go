package board

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fluxr/fluxr/internal/domain"
)

// Board holds the current items of one product and its active filter.
// It is safe for concurrent use.
type Board struct {
	mu          sync.RWMutex
	productUUID string
	items       []domain.BoardItem
	filter      *Filter
}

// New creates a board over items.
func New(productUUID string, items []domain.BoardItem) *Board {
	b := &Board{productUUID: productUUID, filter: NewFilter()}
	b.Replace(items)
	return b
}

// Load reads the product's records from src and builds a board.
func Load(ctx context.Context, src RecordSource, productUUID string) (*Board, error) {
	records, err := src.LoadRecords(ctx, productUUID)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	return New(productUUID, Normalize(records)), nil
}

// ProductUUID returns the product the board belongs to.
func (b *Board) ProductUUID() string {
	return b.productUUID
}

// Items returns a copy of the current items.
func (b *Board) Items() []domain.BoardItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.BoardItem, len(b.items))
	copy(out, b.items)
	return out
}

// Replace swaps in a new item list.
func (b *Board) Replace(items []domain.BoardItem) {
	cp := make([]domain.BoardItem, len(items))
	copy(cp, items)
	b.mu.Lock()
	b.items = cp
	b.mu.Unlock()
}

// Find looks an item up by UUID or friendly ID.
func (b *Board) Find(ref string) (domain.BoardItem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, item := range b.items {
		if item.UUID == ref || strings.EqualFold(item.ID, ref) {
			return item, true
		}
	}
	return domain.BoardItem{}, false
}

// Filter returns a copy of the active filter.
func (b *Board) Filter() *Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.Clone()
}

// SetFilter replaces the active filter.
func (b *Board) SetFilter(f *Filter) {
	b.mu.Lock()
	b.filter = f.Clone()
	b.mu.Unlock()
}

// Columns partitions the items under the active filter.
func (b *Board) Columns() map[domain.Status][]domain.BoardItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Partition(b.items, b.filter)
}

// Locate returns where the item is rendered under the active filter.
// Items hidden by the filter are not located.
func (b *Board) Locate(uuid string) (domain.Location, bool) {
	cols := b.Columns()
	for status, bucket := range cols {
		for i, item := range bucket {
			if item.UUID == uuid {
				return domain.Location{BucketID: status, Index: i}, true
			}
		}
	}
	return domain.Location{}, false
}

// applyMove returns a copy of items with the item moved to dest.Index of the
// column rendered under f. The slot is mapped onto the whole column so items
// hidden by f keep their order around it. Both affected columns are then
// renumbered densely, the way the store renumbers them. The returned index is
// the item's new position in the whole column.
func applyMove(items []domain.BoardItem, uuid string, dest domain.Location, f *Filter) ([]domain.BoardItem, int) {
	out := make([]domain.BoardItem, len(items))
	copy(out, items)

	byUUID := make(map[string]int, len(out))
	for i, item := range out {
		byUUID[item.UUID] = i
	}
	moved, ok := byUUID[uuid]
	if !ok {
		return out, dest.Index
	}
	source := out[moved].Status

	all := Partition(out, nil)
	shown := without(Partition(out, f)[dest.BucketID], uuid)
	column := without(all[dest.BucketID], uuid)

	index := clampIndex(dest.Index, len(shown))
	at := len(column)
	switch {
	case index < len(shown):
		at = indexOf(column, shown[index].UUID)
	case len(shown) > 0:
		at = indexOf(column, shown[len(shown)-1].UUID) + 1
	}

	target := out[moved]
	target.Status = dest.BucketID
	column = append(column, domain.BoardItem{})
	copy(column[at+1:], column[at:])
	column[at] = target

	if source != dest.BucketID {
		for i, item := range without(all[source], uuid) {
			out[byUUID[item.UUID]].Position = i
		}
	}
	for i, item := range column {
		idx := byUUID[item.UUID]
		out[idx].Status = dest.BucketID
		out[idx].Position = i
	}
	return out, at
}

// clampIndex limits i to [0, n].
func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func indexOf(bucket []domain.BoardItem, uuid string) int {
	for i, item := range bucket {
		if item.UUID == uuid {
			return i
		}
	}
	return -1
}

func without(bucket []domain.BoardItem, uuid string) []domain.BoardItem {
	out := make([]domain.BoardItem, 0, len(bucket))
	for _, item := range bucket {
		if item.UUID != uuid {
			out = append(out, item)
		}
	}
	return out
}
