package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fluxr/fluxr/internal/domain"
)

// State is the drag controller state.
type State int

const (
	Idle State = iota
	Dragging
	Resolving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Resolving:
		return "resolving"
	default:
		return "unknown"
	}
}

var (
	// ErrDragInProgress is returned when a gesture starts while another is active.
	ErrDragInProgress = errors.New("another drag is in progress")
	// ErrNotDragging is returned by Drop when nothing was grabbed.
	ErrNotDragging = errors.New("no item is being dragged")
	// ErrNotGrabbed is returned by Drop for an item other than the grabbed one.
	ErrNotGrabbed = errors.New("dropped item is not the grabbed item")
)

// Persister writes a move to the store. *Adapter implements it.
type Persister interface {
	Persist(ctx context.Context, kind domain.Kind, uuid string, status domain.Status, position int, ifMatch int64) (int64, error)
}

// Notifier is told about committed changes. Implementations must not block.
type Notifier interface {
	ItemChanged(ctx context.Context, event string, item domain.BoardItem)
}

// Outcome is the result of one drop. Message is the single line to show the
// user and is empty when there is nothing to report.
type Outcome struct {
	Moved   bool
	Item    domain.BoardItem
	Message string
	Err     error
}

// Controller runs drag gestures against a board. At most one gesture is
// active at a time.
type Controller struct {
	board    *Board
	persist  Persister
	strategy SyncStrategy
	ledger   *Ledger
	notifier Notifier
	log      logrus.FieldLogger

	mu      sync.Mutex
	state   State
	grabbed string
	epoch   uint64 // gestures started so far
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNotifier registers n for committed moves.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(l logrus.FieldLogger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// NewController creates a controller for b.
func NewController(b *Board, p Persister, s SyncStrategy, opts ...ControllerOption) *Controller {
	c := &Controller{
		board:    b,
		persist:  p,
		strategy: s,
		ledger:   NewLedger(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ledger exposes the mutation ledger.
func (c *Controller) Ledger() *Ledger {
	return c.ledger
}

// Grab starts a gesture on the item with the given draggable ID.
func (c *Controller) Grab(draggableID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrDragInProgress
	}
	c.state = Dragging
	c.grabbed = draggableID
	c.epoch++
	return nil
}

// Epoch returns a token that changes whenever a gesture starts.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Refresh replaces the board with items read after epoch was taken. It does
// nothing, and returns false, when a gesture is active or has started since.
func (c *Controller) Refresh(epoch uint64, items []domain.BoardItem) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || c.epoch != epoch {
		return false
	}
	c.board.Replace(items)
	return true
}

// Cancel aborts the current gesture without touching the board.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Dragging {
		c.state = Idle
		c.grabbed = ""
	}
}

// Move grabs intent.DraggableID and drops it. The error is ErrDragInProgress
// when another gesture is active; every other failure is in the Outcome.
func (c *Controller) Move(ctx context.Context, intent domain.DragIntent) (Outcome, error) {
	if err := c.Grab(intent.DraggableID); err != nil {
		return Outcome{}, err
	}
	return c.Drop(ctx, intent), nil
}

// Drop resolves the grabbed gesture. Drops without a destination, drops back
// onto the item's own slot and drops of items no longer on the board do
// nothing.
// Otherwise the move is shown at once, written through the persister and
// either reconciled or reverted.
func (c *Controller) Drop(ctx context.Context, intent domain.DragIntent) Outcome {
	c.mu.Lock()
	switch c.state {
	case Resolving:
		c.mu.Unlock()
		return Outcome{Err: ErrDragInProgress, Message: UserMessage(ErrDragInProgress)}
	case Idle:
		c.mu.Unlock()
		return Outcome{Err: ErrNotDragging}
	}
	if !c.isGrabbed(intent.DraggableID) {
		c.mu.Unlock()
		return Outcome{Err: ErrNotGrabbed}
	}
	c.state = Resolving
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = Idle
		c.grabbed = ""
		c.mu.Unlock()
	}()

	return c.resolve(ctx, intent)
}

// isGrabbed reports whether ref names the grabbed item, by UUID or friendly
// ID. Callers hold c.mu.
func (c *Controller) isGrabbed(ref string) bool {
	if ref == c.grabbed {
		return true
	}
	grabbed, ok := c.board.Find(c.grabbed)
	if !ok {
		return false
	}
	dropped, ok := c.board.Find(ref)
	return ok && dropped.UUID == grabbed.UUID
}

func (c *Controller) resolve(ctx context.Context, intent domain.DragIntent) Outcome {
	dest := intent.Destination
	if dest == nil {
		return Outcome{}
	}
	if dest.BucketID == intent.Source.BucketID && dest.Index == intent.Source.Index {
		return Outcome{}
	}
	if !isColumn(dest.BucketID) {
		err := &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown column %q", dest.BucketID)}
		return Outcome{Err: err, Message: UserMessage(err)}
	}

	item, ok := c.board.Find(intent.DraggableID)
	if !ok {
		c.log.WithField("item", intent.DraggableID).Debug("dropped item is no longer on the board")
		return Outcome{}
	}

	logger := c.log.WithFields(logrus.Fields{
		"item":   item.ID,
		"kind":   item.EffectiveKind(),
		"from":   item.Status,
		"to":     dest.BucketID,
		"index":  dest.Index,
		"policy": c.strategy.Name(),
	})

	filter := c.board.Filter()
	snapshot := c.board.Items()
	if item.Status == dest.BucketID {
		// Past-the-end indexes clamp onto the item's own slot.
		shown := Partition(snapshot, filter)[dest.BucketID]
		if cur := indexOf(shown, item.UUID); cur >= 0 && clampIndex(dest.Index, len(shown)-1) == cur {
			logger.Debug("dropped back onto its own slot")
			return Outcome{}
		}
	}
	optimistic, index := applyMove(snapshot, item.UUID, *dest, filter)

	proposed := item
	for _, it := range optimistic {
		if it.UUID == item.UUID {
			proposed = it
			break
		}
	}
	c.ledger.Begin(item, proposed)
	c.board.Replace(optimistic)

	etag, err := c.persist.Persist(ctx, item.EffectiveKind(), item.UUID, dest.BucketID, index, item.ETag)
	if err != nil {
		c.ledger.Rollback(item.UUID)
		c.board.Replace(snapshot)
		msg := UserMessage(err)
		if msg == "" {
			logger.WithError(err).Debug("move dropped")
		} else {
			logger.WithError(err).Warn("move rolled back")
		}
		return Outcome{Item: item, Message: msg, Err: err}
	}

	confirmed := proposed
	confirmed.ETag = etag
	m := c.ledger.Commit(item.UUID, confirmed)

	reconciled, err := c.strategy.Reconcile(ctx, c.board.ProductUUID(), optimistic, m)
	if err != nil {
		logger.WithError(err).Warn("reconcile failed, keeping local state")
		reconciled = Reduce(optimistic, m)
	}
	c.board.Replace(reconciled)
	if fresh, ok := c.board.Find(item.UUID); ok {
		confirmed = fresh
	}

	logger.WithField("etag", etag).Info("item moved")
	if c.notifier != nil {
		c.notifier.ItemChanged(ctx, "item.moved", confirmed)
	}
	return Outcome{Moved: true, Item: confirmed}
}

// UserMessage turns an error into the line shown to the user. Items that
// vanished are not reported.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		stale      *domain.StaleReferenceError
		permission *domain.PermissionError
		validation *domain.ValidationError
		netErr     *domain.NetworkError
	)
	switch {
	case errors.As(err, &stale):
		if stale.Reason == domain.StaleVanished {
			return ""
		}
		return fmt.Sprintf("%s; reload the board and try again", stale.Error())
	case errors.As(err, &permission):
		return permission.Error()
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &netErr):
		return "could not save the move, check your connection and try again"
	case errors.Is(err, ErrDragInProgress):
		return "wait for the current move to finish"
	default:
		return "could not save the move: " + err.Error()
	}
}
