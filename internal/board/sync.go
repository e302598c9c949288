package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluxr/fluxr/internal/domain"
)

// ItemWriter is the store surface used to persist moves. Each kind has its
// own update path since the backing tables name the status column differently.
type ItemWriter interface {
	UpdateFeature(ctx context.Context, actor, uuid string, upd domain.FeatureUpdate, ifMatch int64) (int64, error)
	UpdateBug(ctx context.Context, actor, uuid string, upd domain.BugUpdate, ifMatch int64) (int64, error)
	UpdateTask(ctx context.Context, actor, uuid string, upd domain.TaskUpdate, ifMatch int64) (int64, error)
	UpdatePage(ctx context.Context, actor, uuid string, upd domain.PageUpdate, ifMatch int64) (int64, error)
}

// RecordSource loads every stored record of a product.
type RecordSource interface {
	LoadRecords(ctx context.Context, productUUID string) (domain.Records, error)
}

const defaultBackoff = 100 * time.Millisecond

// Adapter persists a move through the kind-specific update path.
type Adapter struct {
	writer  ItemWriter
	actor   string
	retries int
	backoff time.Duration
	log     logrus.FieldLogger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRetries sets how many times a NetworkError is retried.
func WithRetries(n int) AdapterOption {
	return func(a *Adapter) {
		if n >= 0 {
			a.retries = n
		}
	}
}

// WithBackoff sets the base delay between retries. Attempt n waits n*d.
func WithBackoff(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.backoff = d }
}

// WithLogger sets the adapter logger.
func WithLogger(l logrus.FieldLogger) AdapterOption {
	return func(a *Adapter) { a.log = l }
}

// NewAdapter creates an adapter writing as actor.
func NewAdapter(w ItemWriter, actor string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		writer:  w,
		actor:   actor,
		retries: 2,
		backoff: defaultBackoff,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Persist writes status and position for one item and returns its new etag.
// Errors are classified into the board taxonomy; only NetworkError is retried.
func (a *Adapter) Persist(ctx context.Context, kind domain.Kind, uuid string, status domain.Status, position int, ifMatch int64) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * a.backoff
			a.log.WithFields(logrus.Fields{
				"kind":    kind,
				"item":    uuid,
				"attempt": attempt,
				"wait":    wait,
			}).Warn("retrying board write")
			select {
			case <-ctx.Done():
				return 0, &domain.NetworkError{Op: fmt.Sprintf("update %s", kind), Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		etag, err := a.write(ctx, kind, uuid, status, position, ifMatch)
		if err == nil {
			return etag, nil
		}
		lastErr = classify(kind, uuid, err)
		var netErr *domain.NetworkError
		if !errors.As(lastErr, &netErr) {
			return 0, lastErr
		}
	}
	return 0, lastErr
}

type actorKey struct{}

// ContextWithActor returns a context whose writes are made as actor,
// overriding the adapter's default.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func (a *Adapter) actorFor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return a.actor
}

func (a *Adapter) write(ctx context.Context, kind domain.Kind, uuid string, status domain.Status, position int, ifMatch int64) (int64, error) {
	fields := domain.ItemFields{Position: &position}
	actor := a.actorFor(ctx)
	switch kind {
	case domain.KindFeature, "":
		return a.writer.UpdateFeature(ctx, actor, uuid, domain.FeatureUpdate{ItemFields: fields, ImplementationStatus: &status}, ifMatch)
	case domain.KindBug:
		return a.writer.UpdateBug(ctx, actor, uuid, domain.BugUpdate{ItemFields: fields, Status: &status}, ifMatch)
	case domain.KindTask:
		return a.writer.UpdateTask(ctx, actor, uuid, domain.TaskUpdate{ItemFields: fields, Status: &status}, ifMatch)
	case domain.KindPage:
		return a.writer.UpdatePage(ctx, actor, uuid, domain.PageUpdate{ItemFields: fields, ImplementationStatus: &status}, ifMatch)
	default:
		return 0, &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", kind)}
	}
}

// classify maps store errors onto the board error taxonomy.
func classify(kind domain.Kind, uuid string, err error) error {
	var (
		notFound   *domain.NotFoundError
		mismatch   *domain.ETagMismatchError
		permission *domain.PermissionError
		validation *domain.ValidationError
		netErr     *domain.NetworkError
	)
	switch {
	case errors.As(err, &notFound):
		return &domain.StaleReferenceError{Kind: kind, ID: uuid, Reason: domain.StaleVanished, Err: err}
	case errors.As(err, &mismatch):
		return &domain.StaleReferenceError{Kind: kind, ID: uuid, Reason: domain.StaleVersion, Err: err}
	case errors.As(err, &permission), errors.As(err, &validation), errors.As(err, &netErr):
		return err
	case errors.Is(err, context.Canceled):
		return err
	default:
		return &domain.NetworkError{Op: fmt.Sprintf("update %s", kind), Err: err}
	}
}

// SyncStrategy reconciles the local item list after a confirmed write.
// One strategy is used for every kind.
type SyncStrategy interface {
	Name() string
	Reconcile(ctx context.Context, productUUID string, local []domain.BoardItem, m Mutation) ([]domain.BoardItem, error)
}

// Strategy names accepted by NewStrategy.
const (
	StrategyResync = "resync"
	StrategyPatch  = "patch"
)

// NewStrategy returns the strategy named by name. Resync needs a source.
func NewStrategy(name string, src RecordSource) (SyncStrategy, error) {
	switch name {
	case StrategyResync, "":
		if src == nil {
			return nil, errors.New("resync strategy requires a record source")
		}
		return &ResyncStrategy{Source: src}, nil
	case StrategyPatch:
		return PatchStrategy{}, nil
	default:
		return nil, &domain.ValidationError{Field: "sync_strategy", Message: fmt.Sprintf("unknown strategy %q (want resync or patch)", name)}
	}
}

// ResyncStrategy takes server truth: it reloads all records of the product.
type ResyncStrategy struct {
	Source RecordSource
}

func (s *ResyncStrategy) Name() string { return StrategyResync }

func (s *ResyncStrategy) Reconcile(ctx context.Context, productUUID string, _ []domain.BoardItem, _ Mutation) ([]domain.BoardItem, error) {
	records, err := s.Source.LoadRecords(ctx, productUUID)
	if err != nil {
		return nil, fmt.Errorf("resync board: %w", err)
	}
	return Normalize(records), nil
}

// PatchStrategy keeps the optimistic list and applies the confirmed value.
type PatchStrategy struct{}

func (PatchStrategy) Name() string { return StrategyPatch }

func (PatchStrategy) Reconcile(_ context.Context, _ string, local []domain.BoardItem, m Mutation) ([]domain.BoardItem, error) {
	return Reduce(local, m), nil
}
