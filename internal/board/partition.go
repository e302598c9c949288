package board

import (
	"sort"

	"github.com/fluxr/fluxr/internal/domain"
)

var kindRank = map[domain.Kind]int{
	domain.KindFeature: 0,
	domain.KindBug:     1,
	domain.KindTask:    2,
	domain.KindPage:    3,
}

// Partition groups the items passing f into the board columns. Every column
// is present in the result. Items whose status is not a column are dropped.
// Each column is ordered by position, then kind, then friendly ID.
func Partition(items []domain.BoardItem, f *Filter) map[domain.Status][]domain.BoardItem {
	cols := domain.Columns()
	out := make(map[domain.Status][]domain.BoardItem, len(cols))
	for _, c := range cols {
		out[c.ID] = []domain.BoardItem{}
	}

	for _, item := range items {
		bucket, ok := out[item.Status]
		if !ok || !f.Matches(item) {
			continue
		}
		out[item.Status] = append(bucket, item)
	}

	for id := range out {
		sortBucket(out[id])
	}
	return out
}

func sortBucket(bucket []domain.BoardItem) {
	sort.SliceStable(bucket, func(i, j int) bool {
		a, b := bucket[i], bucket[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if ra, rb := kindRank[a.EffectiveKind()], kindRank[b.EffectiveKind()]; ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
}

// isColumn reports whether s names a board column.
func isColumn(s domain.Status) bool {
	for _, c := range domain.Columns() {
		if c.ID == s {
			return true
		}
	}
	return false
}
