// Package service wires the store, board cache, webhooks and image storage
// into the operations shared by the fluxr CLI and the fluxrd daemon.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fluxr/fluxr/internal/attach"
	"github.com/fluxr/fluxr/internal/board"
	"github.com/fluxr/fluxr/internal/cache"
	"github.com/fluxr/fluxr/internal/config"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
	"github.com/fluxr/fluxr/internal/parse"
	"github.com/fluxr/fluxr/internal/render"
	"github.com/fluxr/fluxr/internal/selectors"
	"github.com/fluxr/fluxr/internal/store"
	"github.com/fluxr/fluxr/internal/webhooks"
)

// Service is safe for concurrent use.
type Service struct {
	Store *store.Store
	Cache *cache.Cache
	Hooks *webhooks.Dispatcher

	cfg     *config.Config
	log     logrus.FieldLogger
	backoff time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRedis enables the board cache on client.
func WithRedis(client *redis.Client) Option {
	return func(s *Service) {
		s.Cache = cache.New(s.Store, client, s.cfg.CacheTTL)
	}
}

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithRetryBackoff sets the base delay between retried board writes.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) { s.backoff = d }
}

// New creates a service over st. Without WithRedis the cache is disabled
// and every board read goes to the store.
func New(cfg *config.Config, st *store.Store, opts ...Option) *Service {
	s := &Service{
		Store: st,
		cfg:   cfg,
		log:   logrus.StandardLogger(),
	}
	s.Cache = cache.New(st, nil, 0)
	for _, opt := range opts {
		opt(s)
	}
	s.Hooks = webhooks.NewDispatcher(st.DB(), s.log)
	return s
}

// evict drops the product's cached board after a write.
func (s *Service) evict(ctx context.Context, productUUID string) {
	if err := s.Cache.Invalidate(ctx, productUUID); err != nil {
		s.log.WithError(err).WithField("product", productUUID).Warn("board cache eviction deferred")
	}
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Close waits for in-flight webhook deliveries.
func (s *Service) Close() {
	s.Hooks.Wait()
}

// OpenBoard loads a product's board and a drag controller writing as actor.
// Requests may override the actor with board.ContextWithActor.
func (s *Service) OpenBoard(ctx context.Context, productUUID, actor string) (*board.Board, *board.Controller, error) {
	b, err := board.Load(ctx, s.Cache, productUUID)
	if err != nil {
		return nil, nil, err
	}
	strategy, err := board.NewStrategy(s.cfg.SyncStrategy, s.Cache.FreshSource())
	if err != nil {
		return nil, nil, err
	}

	logger := s.log.WithField("product", productUUID)
	adapterOpts := []board.AdapterOption{
		board.WithRetries(s.cfg.SyncRetries),
		board.WithLogger(logger),
	}
	if s.backoff > 0 {
		adapterOpts = append(adapterOpts, board.WithBackoff(s.backoff))
	}
	adapter := board.NewAdapter(s.Cache.Writer(productUUID, s.Store), actor, adapterOpts...)
	ctrl := board.NewController(b, adapter, strategy,
		board.WithNotifier(s.Hooks),
		board.WithControllerLogger(logger),
	)
	return b, ctrl, nil
}

// View renders b under its active filter.
func View(label string, b *board.Board) render.BoardView {
	f := b.Filter()
	return render.BoardView{
		Product:      label,
		Filter:       f.String(),
		ActiveFilter: f.ActiveCount(),
		Columns:      render.Columns(b.Columns()),
	}
}

// MoveRequest moves one item to a column. A negative index appends.
type MoveRequest struct {
	Item   selectors.Item
	To     domain.Status
	Index  int
	DryRun bool
}

// MoveResult is the board before and after a move.
type MoveResult struct {
	Outcome board.Outcome
	Before  render.BoardView
	After   render.BoardView
}

// Move runs a single drag gesture on a freshly loaded board.
// A dry run resolves the gesture locally without writing.
func (s *Service) Move(ctx context.Context, actor, label string, req MoveRequest) (*MoveResult, error) {
	if err := domain.ValidateStatus(string(req.To)); err != nil {
		return nil, err
	}

	var (
		b    *board.Board
		ctrl *board.Controller
		err  error
	)
	if req.DryRun {
		b, err = board.Load(ctx, s.Cache, req.Item.ProductUUID)
		if err == nil {
			ctrl = board.NewController(b, dryRun{}, board.PatchStrategy{}, board.WithControllerLogger(s.log))
		}
	} else {
		b, ctrl, err = s.OpenBoard(ctx, req.Item.ProductUUID, actor)
	}
	if err != nil {
		return nil, err
	}

	src, ok := b.Locate(req.Item.UUID)
	if !ok {
		return nil, &domain.NotFoundError{Kind: string(req.Item.Kind), ID: req.Item.ID}
	}
	index := req.Index
	if index < 0 {
		index = len(b.Columns()[req.To])
	}

	result := &MoveResult{Before: View(label, b)}
	outcome, err := ctrl.Move(ctx, domain.DragIntent{
		DraggableID: req.Item.UUID,
		Source:      src,
		Destination: &domain.Location{BucketID: req.To, Index: index},
	})
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome
	result.After = View(label, b)
	return result, nil
}

type dryRun struct{}

func (dryRun) Persist(_ context.Context, _ domain.Kind, _ string, _ domain.Status, _ int, ifMatch int64) (int64, error) {
	return ifMatch, nil
}

// GetItem loads one item in board shape.
func (s *Service) GetItem(ctx context.Context, kind domain.Kind, uuid string) (domain.BoardItem, error) {
	var r domain.Records
	switch kind {
	case domain.KindFeature:
		f, err := s.Store.Features.Get(ctx, uuid)
		if err != nil {
			return domain.BoardItem{}, err
		}
		r.Features = append(r.Features, *f)
	case domain.KindBug:
		b, err := s.Store.Bugs.Get(ctx, uuid)
		if err != nil {
			return domain.BoardItem{}, err
		}
		r.Bugs = append(r.Bugs, *b)
	case domain.KindTask:
		t, err := s.Store.Tasks.Get(ctx, uuid)
		if err != nil {
			return domain.BoardItem{}, err
		}
		r.Tasks = append(r.Tasks, *t)
	case domain.KindPage:
		p, err := s.Store.Pages.Get(ctx, uuid)
		if err != nil {
			return domain.BoardItem{}, err
		}
		r.Pages = append(r.Pages, *p)
	default:
		return domain.BoardItem{}, domain.ValidateKind(string(kind))
	}
	return board.Normalize(r)[0], nil
}

// CreateItem adds an item at the end of its column.
func (s *Service) CreateItem(ctx context.Context, actor string, kind domain.Kind, params store.CreateParams) (domain.BoardItem, error) {
	var (
		res *store.CreateResult
		err error
	)
	switch kind {
	case domain.KindFeature:
		res, err = s.Store.Features.Create(ctx, actor, params)
	case domain.KindBug:
		res, err = s.Store.Bugs.Create(ctx, actor, params)
	case domain.KindTask:
		res, err = s.Store.Tasks.Create(ctx, actor, params)
	case domain.KindPage:
		res, err = s.Store.Pages.Create(ctx, actor, params)
	default:
		err = domain.ValidateKind(string(kind))
	}
	if err != nil {
		return domain.BoardItem{}, err
	}
	s.evict(ctx, params.ProductUUID)

	item, err := s.GetItem(ctx, kind, res.UUID)
	if err != nil {
		return domain.BoardItem{}, err
	}
	s.Hooks.ItemChanged(ctx, events.ItemCreated, item)
	return item, nil
}

// EditItem applies a parsed document to an item.
func (s *Service) EditItem(ctx context.Context, actor string, ref selectors.Item, doc *parse.Document) (domain.BoardItem, error) {
	if doc.Empty() {
		return domain.BoardItem{}, &domain.ValidationError{Field: "fields", Message: "nothing to update"}
	}
	fields, status, err := doc.Fields()
	if err != nil {
		return domain.BoardItem{}, err
	}

	switch ref.Kind {
	case domain.KindFeature:
		_, err = s.Store.UpdateFeature(ctx, actor, ref.UUID, domain.FeatureUpdate{ItemFields: fields, ImplementationStatus: status}, doc.IfMatch)
	case domain.KindBug:
		_, err = s.Store.UpdateBug(ctx, actor, ref.UUID, domain.BugUpdate{ItemFields: fields, Status: status}, doc.IfMatch)
	case domain.KindTask:
		_, err = s.Store.UpdateTask(ctx, actor, ref.UUID, domain.TaskUpdate{ItemFields: fields, Status: status}, doc.IfMatch)
	case domain.KindPage:
		_, err = s.Store.UpdatePage(ctx, actor, ref.UUID, domain.PageUpdate{ItemFields: fields, ImplementationStatus: status}, doc.IfMatch)
	default:
		err = domain.ValidateKind(string(ref.Kind))
	}
	if err != nil {
		return domain.BoardItem{}, err
	}
	s.evict(ctx, ref.ProductUUID)

	item, err := s.GetItem(ctx, ref.Kind, ref.UUID)
	if err != nil {
		return domain.BoardItem{}, err
	}
	s.Hooks.ItemChanged(ctx, events.ItemUpdated, item)
	return item, nil
}

// DeleteItem removes an item and its uploaded image.
func (s *Service) DeleteItem(ctx context.Context, actor string, ref selectors.Item, ifMatch int64) error {
	item, err := s.GetItem(ctx, ref.Kind, ref.UUID)
	if err != nil {
		return err
	}
	res, err := s.Store.DeleteItem(ctx, actor, ref.Kind, ref.UUID, ifMatch)
	if err != nil {
		return err
	}
	if res.ImagePath != nil {
		if err := attach.DeleteFile(s.cfg.ImageDir, *res.ImagePath); err != nil {
			s.log.WithError(err).WithField("item", ref.ID).Warn("failed to remove image")
		}
	}
	s.evict(ctx, ref.ProductUUID)
	s.Hooks.ItemChanged(ctx, events.ItemDeleted, item)
	return nil
}

// SetImage stores src as the item's image, replacing any previous one.
func (s *Service) SetImage(ctx context.Context, actor string, ref selectors.Item, src string) (*attach.Image, error) {
	img, err := attach.Save(s.cfg.ImageDir, ref.Kind, ref.UUID, src, int64(s.cfg.ImagesMaxMB))
	if err != nil {
		return nil, err
	}

	var previous *string
	switch ref.Kind {
	case domain.KindFeature:
		_, previous, err = s.Store.Features.SetImage(ctx, actor, ref.UUID, img.RelativePath)
	case domain.KindBug:
		_, previous, err = s.Store.Bugs.SetImage(ctx, actor, ref.UUID, img.RelativePath)
	default:
		err = &domain.ValidationError{Field: "image", Message: fmt.Sprintf("%s items do not carry images", ref.Kind)}
	}
	if err != nil {
		_ = attach.DeleteFile(s.cfg.ImageDir, img.RelativePath)
		return nil, err
	}
	if previous != nil && *previous != img.RelativePath {
		if err := attach.DeleteFile(s.cfg.ImageDir, *previous); err != nil {
			s.log.WithError(err).WithField("item", ref.ID).Warn("failed to remove previous image")
		}
	}
	s.evict(ctx, ref.ProductUUID)

	if item, err := s.GetItem(ctx, ref.Kind, ref.UUID); err == nil {
		s.Hooks.ItemChanged(ctx, events.ItemImageSet, item)
	}
	return img, nil
}
