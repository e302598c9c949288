package board

import (
	"sort"
	"strings"

	"github.com/fluxr/fluxr/internal/domain"
)

// Filter is the active type and priority facet selection of a board.
// An empty facet does not filter. The zero value is an empty filter.
// A Filter is not safe for concurrent use.
type Filter struct {
	types      map[domain.Kind]struct{}
	priorities map[domain.Priority]struct{}
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// ToggleType adds k to the type facet if absent and removes it if present.
func (f *Filter) ToggleType(k domain.Kind) {
	if f.types == nil {
		f.types = make(map[domain.Kind]struct{})
	}
	if _, ok := f.types[k]; ok {
		delete(f.types, k)
		return
	}
	f.types[k] = struct{}{}
}

// TogglePriority adds p to the priority facet if absent and removes it if present.
func (f *Filter) TogglePriority(p domain.Priority) {
	if f.priorities == nil {
		f.priorities = make(map[domain.Priority]struct{})
	}
	if _, ok := f.priorities[p]; ok {
		delete(f.priorities, p)
		return
	}
	f.priorities[p] = struct{}{}
}

// Clear empties both facets.
func (f *Filter) Clear() {
	f.types = nil
	f.priorities = nil
}

// ActiveCount is the number of selected facet values.
func (f *Filter) ActiveCount() int {
	if f == nil {
		return 0
	}
	return len(f.types) + len(f.priorities)
}

// Matches reports whether item passes both facets.
func (f *Filter) Matches(item domain.BoardItem) bool {
	if f == nil {
		return true
	}
	if len(f.types) > 0 {
		if _, ok := f.types[item.EffectiveKind()]; !ok {
			return false
		}
	}
	if len(f.priorities) > 0 {
		if _, ok := f.priorities[item.EffectivePriority()]; !ok {
			return false
		}
	}
	return true
}

// Types returns the selected kinds in board order.
func (f *Filter) Types() []domain.Kind {
	var out []domain.Kind
	if f == nil {
		return out
	}
	for _, k := range domain.Kinds() {
		if _, ok := f.types[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Priorities returns the selected priorities in display order.
func (f *Filter) Priorities() []domain.Priority {
	var out []domain.Priority
	if f == nil {
		return out
	}
	for _, p := range domain.Priorities() {
		if _, ok := f.priorities[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns an independent copy of f.
func (f *Filter) Clone() *Filter {
	c := NewFilter()
	if f == nil {
		return c
	}
	for k := range f.types {
		c.ToggleType(k)
	}
	for p := range f.priorities {
		c.TogglePriority(p)
	}
	return c
}

// String renders the filter as "type=a,b priority=c", or "none".
func (f *Filter) String() string {
	var parts []string
	if types := f.Types(); len(types) > 0 {
		names := make([]string, len(types))
		for i, k := range types {
			names[i] = string(k)
		}
		parts = append(parts, "type="+strings.Join(names, ","))
	}
	if prios := f.Priorities(); len(prios) > 0 {
		names := make([]string, len(prios))
		for i, p := range prios {
			names[i] = string(p)
		}
		parts = append(parts, "priority="+strings.Join(names, ","))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// ParseFilter builds a filter from lists of kinds and priorities. Each entry
// may itself be a comma separated list. Repeated values are selected once.
func ParseFilter(types, priorities []string) (*Filter, error) {
	f := NewFilter()
	for _, v := range splitValues(types) {
		if err := domain.ValidateKind(v); err != nil {
			return nil, err
		}
		if f.types == nil {
			f.types = make(map[domain.Kind]struct{})
		}
		f.types[domain.Kind(v)] = struct{}{}
	}
	for _, v := range splitValues(priorities) {
		if err := domain.ValidatePriority(v); err != nil {
			return nil, err
		}
		if f.priorities == nil {
			f.priorities = make(map[domain.Priority]struct{})
		}
		f.priorities[domain.Priority(v)] = struct{}{}
	}
	return f, nil
}

func splitValues(in []string) []string {
	var out []string
	for _, raw := range in {
		for _, v := range strings.Split(raw, ",") {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
