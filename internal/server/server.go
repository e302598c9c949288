// Package server exposes products, items and board drags over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/fluxr/fluxr/internal/board"
	"github.com/fluxr/fluxr/internal/domain"
	"github.com/fluxr/fluxr/internal/events"
	"github.com/fluxr/fluxr/internal/parse"
	"github.com/fluxr/fluxr/internal/render"
	"github.com/fluxr/fluxr/internal/selectors"
	"github.com/fluxr/fluxr/internal/service"
	"github.com/fluxr/fluxr/internal/store"
)

// ActorHeader names the acting actor of a request.
const ActorHeader = "X-Fluxr-Actor"

// NextCursorHeader carries the cursor of the next event page.
const NextCursorHeader = "X-Next-Cursor"

// Server is the fluxrd HTTP API.
type Server struct {
	svc          *service.Service
	token        string
	defaultActor string
	log          logrus.FieldLogger
	echo         *echo.Echo

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the in-memory board of one product.
type session struct {
	board *board.Board
	ctrl  *board.Controller
}

// New creates a server. An empty token disables authentication.
func New(svc *service.Service, token, defaultActor string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		svc:          svc,
		token:        token,
		defaultActor: defaultActor,
		log:          log.WithField("component", "server"),
		sessions:     make(map[string]*session),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	s.register(e)
	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("fluxrd listening")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) register(e *echo.Echo) {
	e.GET("/healthz", s.healthz)

	v1 := e.Group("/v1", s.authenticate)
	v1.GET("/products", s.listProducts)
	v1.POST("/products", s.createProduct)
	v1.GET("/products/:product/board", s.getBoard)
	v1.POST("/products/:product/board/drag", s.drag)
	v1.POST("/products/:product/items", s.createItem)
	v1.GET("/items/:id", s.getItem)
	v1.PATCH("/items/:id", s.patchItem)
	v1.DELETE("/items/:id", s.deleteItem)
	v1.GET("/events", s.listEvents)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			s.log.WithFields(logrus.Fields{
				"method":   c.Request().Method,
				"path":     c.Path(),
				"status":   c.Response().Status,
				"duration": time.Since(start),
			}).Debug("request")
			return nil
		}
	}
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.token == "" {
			return next(c)
		}
		raw := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid bearer token")
		}
		return next(c)
	}
}

func (s *Server) actor(c echo.Context) string {
	if actor := strings.TrimSpace(c.Request().Header.Get(ActorHeader)); actor != "" {
		return actor
	}
	return s.defaultActor
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		httpErr  *echo.HTTPError
		valErr   *domain.ValidationError
		permErr  *domain.PermissionError
		etagErr  *domain.ETagMismatchError
		staleErr *domain.StaleReferenceError
		netErr   *domain.NetworkError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, board.ErrDragInProgress):
		return http.StatusConflict
	case errors.As(err, &staleErr):
		if staleErr.Reason == domain.StaleVanished {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case errors.As(err, &etagErr):
		return http.StatusConflict
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &netErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	msg := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg = fmt.Sprint(httpErr.Message)
	}
	if code >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}

func (s *Server) healthz(c echo.Context) error {
	if err := s.svc.Store.DB().PingContext(c.Request().Context()); err != nil {
		return &domain.NetworkError{Op: "ping database", Err: err}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listProducts(c echo.Context) error {
	products, err := s.svc.Store.Products.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, products)
}

type createProductRequest struct {
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	OwnerActor  *string  `json:"owner_actor"`
	WebhookURLs []string `json:"webhook_urls"`
}

func (s *Server) createProduct(c echo.Context) error {
	var req createProductRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	res, err := s.svc.Store.Products.Create(ctx, s.actor(c), store.ProductCreateParams{
		Slug:        req.Slug,
		Name:        req.Name,
		OwnerActor:  req.OwnerActor,
		WebhookURLs: req.WebhookURLs,
	})
	if err != nil {
		return err
	}
	product, err := s.svc.Store.Products.Get(ctx, res.UUID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, product)
}

// session returns the product's in-memory board, loading it on first use.
// Idle boards are refreshed so writes made elsewhere show up.
func (s *Server) session(ctx context.Context, productUUID string) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[productUUID]
	s.mu.Unlock()

	if ok {
		if sess.ctrl.State() == board.Idle {
			epoch := sess.ctrl.Epoch()
			records, err := s.svc.Cache.LoadRecords(ctx, productUUID)
			if err != nil {
				return nil, err
			}
			sess.ctrl.Refresh(epoch, board.Normalize(records))
		}
		return sess, nil
	}

	b, ctrl, err := s.svc.OpenBoard(ctx, productUUID, s.defaultActor)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[productUUID]; ok {
		return existing, nil
	}
	sess = &session{board: b, ctrl: ctrl}
	s.sessions[productUUID] = sess
	return sess, nil
}

func (s *Server) resolveProduct(c echo.Context) (uuid, friendlyID string, err error) {
	return selectors.ResolveProduct(s.svc.Store.DB(), c.Param("product"))
}

func boardView(label string, b *board.Board, f *board.Filter) render.BoardView {
	return render.BoardView{
		Product:      label,
		Filter:       f.String(),
		ActiveFilter: f.ActiveCount(),
		Columns:      render.Columns(board.Partition(b.Items(), f)),
	}
}

func (s *Server) getBoard(c echo.Context) error {
	productUUID, productID, err := s.resolveProduct(c)
	if err != nil {
		return err
	}
	f, err := board.ParseFilter(c.QueryParams()["type"], c.QueryParams()["priority"])
	if err != nil {
		return err
	}
	sess, err := s.session(c.Request().Context(), productUUID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, boardView(productID, sess.board, f))
}

type dragResponse struct {
	Moved   bool              `json:"moved"`
	Item    *domain.BoardItem `json:"item,omitempty"`
	Message string            `json:"message,omitempty"`
	Board   render.BoardView  `json:"board"`
}

func (s *Server) drag(c echo.Context) error {
	productUUID, productID, err := s.resolveProduct(c)
	if err != nil {
		return err
	}
	var intent domain.DragIntent
	if err := c.Bind(&intent); err != nil {
		return err
	}
	if intent.DraggableID == "" {
		return &domain.ValidationError{Field: "draggable_id", Message: "is required"}
	}

	ctx := c.Request().Context()
	sess, err := s.session(ctx, productUUID)
	if err != nil {
		return err
	}

	outcome, err := sess.ctrl.Move(board.ContextWithActor(ctx, s.actor(c)), intent)
	if err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: board.UserMessage(err)})
	}

	resp := dragResponse{
		Moved:   outcome.Moved,
		Message: outcome.Message,
		Board:   boardView(productID, sess.board, sess.board.Filter()),
	}
	if outcome.Item.UUID != "" {
		item := outcome.Item
		resp.Item = &item
	}

	code := http.StatusOK
	if outcome.Err != nil && outcome.Message != "" {
		code = statusFor(outcome.Err)
	}
	return c.JSON(code, resp)
}

type createItemRequest struct {
	Kind        domain.Kind      `json:"kind"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Priority    *domain.Priority `json:"priority"`
	Status      domain.Status    `json:"status"`
	Route       string           `json:"route"`
}

func (s *Server) createItem(c echo.Context) error {
	productUUID, _, err := s.resolveProduct(c)
	if err != nil {
		return err
	}
	var req createItemRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := domain.ValidateKind(string(req.Kind)); err != nil {
		return err
	}
	item, err := s.svc.CreateItem(c.Request().Context(), s.actor(c), req.Kind, store.CreateParams{
		ProductUUID: productUUID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		Route:       req.Route,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) resolveItem(c echo.Context) (selectors.Item, error) {
	return selectors.ResolveItem(s.svc.Store.DB(), c.Param("id"))
}

func (s *Server) getItem(c echo.Context) error {
	ref, err := s.resolveItem(c)
	if err != nil {
		return err
	}
	item, err := s.svc.GetItem(c.Request().Context(), ref.Kind, ref.UUID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) patchItem(c echo.Context) error {
	ref, err := s.resolveItem(c)
	if err != nil {
		return err
	}
	var doc parse.Document
	if err := c.Bind(&doc); err != nil {
		return err
	}
	item, err := s.svc.EditItem(c.Request().Context(), s.actor(c), ref, &doc)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) deleteItem(c echo.Context) error {
	ref, err := s.resolveItem(c)
	if err != nil {
		return err
	}
	var ifMatch int64
	if raw := c.QueryParam("if_match"); raw != "" {
		ifMatch, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return &domain.ValidationError{Field: "if_match", Message: "must be an integer"}
		}
	}
	if err := s.svc.DeleteItem(c.Request().Context(), s.actor(c), ref, ifMatch); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listEvents(c echo.Context) error {
	var resourceUUID string
	if ref := c.QueryParam("item"); ref != "" {
		item, err := selectors.ResolveItem(s.svc.Store.DB(), ref)
		if err != nil {
			return err
		}
		resourceUUID = item.UUID
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return &domain.ValidationError{Field: "limit", Message: "must be a positive integer"}
		}
		limit = n
	}
	list, next, err := events.Page(s.svc.Store.DB(), resourceUUID, limit, c.QueryParam("cursor"))
	if err != nil {
		return err
	}
	if next != "" {
		c.Response().Header().Set(NextCursorHeader, next)
	}
	if list == nil {
		list = []domain.Event{}
	}
	return c.JSON(http.StatusOK, list)
}
