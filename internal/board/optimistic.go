package board

import (
	"sync"

	"github.com/fluxr/fluxr/internal/domain"
)

// MutationState tracks an optimistic change until the store confirms or rejects it.
type MutationState int

const (
	Pending MutationState = iota
	Committed
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mutation is one optimistic change to a single item. Committed holds the
// last value known to be in the store; Proposed the value shown while the
// write is in flight.
type Mutation struct {
	ItemUUID  string
	State     MutationState
	Committed domain.BoardItem
	Proposed  domain.BoardItem
}

// Effective is the value the board should show for the item.
func (m Mutation) Effective() domain.BoardItem {
	if m.State == Pending {
		return m.Proposed
	}
	return m.Committed
}

// Reduce returns a copy of items with m's effective value in place of the
// item it targets. Items not targeted are left untouched.
func Reduce(items []domain.BoardItem, m Mutation) []domain.BoardItem {
	out := make([]domain.BoardItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].UUID == m.ItemUUID {
			out[i] = m.Effective()
		}
	}
	return out
}

// Ledger records the latest mutation per item.
type Ledger struct {
	mu        sync.Mutex
	mutations map[string]Mutation
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{mutations: make(map[string]Mutation)}
}

// Begin records a pending mutation from committed to proposed.
func (l *Ledger) Begin(committed, proposed domain.BoardItem) Mutation {
	m := Mutation{ItemUUID: committed.UUID, State: Pending, Committed: committed, Proposed: proposed}
	l.mu.Lock()
	l.mutations[m.ItemUUID] = m
	l.mu.Unlock()
	return m
}

// Commit marks the pending mutation of uuid as confirmed with the stored value.
func (l *Ledger) Commit(uuid string, confirmed domain.BoardItem) Mutation {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.mutations[uuid]
	m.ItemUUID = uuid
	m.State = Committed
	m.Committed = confirmed
	m.Proposed = confirmed
	l.mutations[uuid] = m
	return m
}

// Rollback marks the pending mutation of uuid as rejected. The committed
// snapshot becomes effective again.
func (l *Ledger) Rollback(uuid string) Mutation {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.mutations[uuid]
	m.State = RolledBack
	l.mutations[uuid] = m
	return m
}

// Get returns the latest mutation of uuid.
func (l *Ledger) Get(uuid string) (Mutation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.mutations[uuid]
	return m, ok
}

// Pending returns the number of mutations still awaiting the store.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.mutations {
		if m.State == Pending {
			n++
		}
	}
	return n
}
