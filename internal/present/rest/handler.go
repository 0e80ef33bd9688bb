package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/present/rest/middleware"
	"github.com/arxiv/relations/internal/present/rest/presenter"
	"github.com/arxiv/relations/internal/usecase"
)

// Realtime streams relation events for the e-prints last sent on input.
type Realtime interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- relations.Event)
}

type Handler struct {
	lineage  *usecase.LineageUsecase
	query    *usecase.QueryUsecase
	realtime Realtime
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewHandler builds the HTTP handler. realtime and gatherer may be nil, in
// which case /realtime answers 503 and /metrics is not registered.
func NewHandler(
	lineage *usecase.LineageUsecase,
	query *usecase.QueryUsecase,
	realtime Realtime,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		lineage:  lineage,
		query:    query,
		realtime: realtime,
		gatherer: gatherer,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, auth *middleware.AuthMiddleware) {
	e.GET("/status", h.handleStatus)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	e.GET("/realtime", h.handleRealtime)

	e.GET("/relations/:id", h.handleGetRelation)
	e.GET("/relations/:id/lineage", h.handleLineage)
	e.GET("/relations/:id/active", h.handleIsActive)

	e.GET("/:eprint", h.handleListActive)
	e.GET("/:eprint/log", h.handleLog)
	e.POST("/:eprint/relations", h.handleCreate, auth.RequireAPIKey)
	e.POST("/:eprint/relations/:id", h.handleSupersede, auth.RequireAPIKey)
	e.POST("/:eprint/relations/:id/delete", h.handleSuppress, auth.RequireAPIKey)
}

func (h *Handler) handleStatus(c echo.Context) error {
	return presenter.OK(c, relations.Status{IAm: "ok"})
}

func (h *Handler) handleCreate(c echo.Context) error {
	ctx := c.Request().Context()

	ePrint, err := ePrintParam(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	var in relations.RelationInput
	if err := c.Bind(&in); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	rel, err := h.lineage.Create(ctx, usecase.CreateInput{
		EPrint: ePrint,
		Resource: domain.Resource{
			ResourceType: in.GetResourceType(),
			Identifier:   in.GetResourceID(),
		},
		Description: in.Description,
		Creator:     creator(ctx, in),
	})
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.Created(c, rel.ToWire())
}

func (h *Handler) handleSupersede(c echo.Context) error {
	ctx := c.Request().Context()

	ePrint, err := ePrintParam(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	var in relations.RelationInput
	if err := c.Bind(&in); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	rel, err := h.lineage.Supersede(ctx, usecase.SupersedeInput{
		EPrint: ePrint,
		Resource: domain.Resource{
			ResourceType: in.GetResourceType(),
			Identifier:   in.GetResourceID(),
		},
		Description:   in.Description,
		Creator:       creator(ctx, in),
		PredecessorID: c.Param("id"),
	})
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.Created(c, rel.ToWire())
}

func (h *Handler) handleSuppress(c echo.Context) error {
	ctx := c.Request().Context()

	ePrint, err := ePrintParam(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	var in relations.RelationInput
	if err := c.Bind(&in); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	rel, err := h.lineage.Suppress(ctx, usecase.SuppressInput{
		EPrint:        ePrint,
		Description:   in.Description,
		Creator:       creator(ctx, in),
		PredecessorID: c.Param("id"),
	})
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.Created(c, rel.ToWire())
}

func (h *Handler) handleListActive(c echo.Context) error {
	ctx := c.Request().Context()

	ePrint, err := ePrintParam(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	rels, err := h.query.ListForEPrint(ctx, ePrint, true)
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.OK(c, presenter.Relations(rels))
}

func (h *Handler) handleLog(c echo.Context) error {
	ctx := c.Request().Context()

	ePrint, err := ePrintParam(c)
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	entries, err := h.query.History(ctx, ePrint)
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.OK(c, presenter.LineageEntries(entries))
}

// handleGetRelation serves a single relation with a strong ETag. Relations
// never change, so a matching If-None-Match is always answered with 304.
func (h *Handler) handleGetRelation(c echo.Context) error {
	ctx := c.Request().Context()

	rel, err := h.query.GetByID(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}

	body, err := json.Marshal(rel.ToWire())
	if err != nil {
		return presenter.InternalError(c, err)
	}

	etag := relations.ETag(body)
	header := c.Response().Header()
	header.Set("ETag", etag)
	header.Set("Cache-Control", "public, max-age=86400, immutable")
	if etagMatches(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}

	return c.JSONBlob(http.StatusOK, body)
}

func (h *Handler) handleLineage(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.query.Lineage(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.OK(c, presenter.LineageEntries(entries))
}

func (h *Handler) handleIsActive(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	active, err := h.lineage.IsActive(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}

	return presenter.OK(c, relations.Activity{Identifier: id, Active: active})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.realtime == nil {
		return presenter.Unavailable(c, errors.New("realtime events are not enabled"))
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket", zap.String("module", "socket"), zap.Error(err))
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan relations.Event)
	go h.realtime.Realtime(ctx, input, output)

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			var req relations.Subscription
			err := ws.ReadJSON(&req)
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					if closeErr.Code != websocket.CloseNormalClosure && closeErr.Code != websocket.CloseGoingAway {
						h.logger.Debug("websocket closed", zap.String("module", "socket"), zap.Error(err))
					}
				} else {
					h.logger.Debug("error reading message", zap.String("module", "socket"), zap.Error(err))
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.EPrints:
					h.logger.Debug("socket subscribe", zap.String("module", "socket"), zap.Strings("eprints", req.EPrints))
				case <-ctx.Done():
					return
				}
			case "h": // heartbeat
			default:
				h.logger.Info("unknown request type", zap.String("module", "socket"), zap.String("type", req.Type))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			if err := ws.WriteJSON(event); err != nil {
				h.logger.Warn("error writing message", zap.String("module", "socket"), zap.Error(err))
				return nil
			}
		}
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	if status := presenter.StatusOf(err); status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return presenter.Error(c, err)
}

// etagMatches reports whether an If-None-Match header value selects etag.
// The header may list several tags, use weak validators, or be "*".
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// ePrintParam reads the :eprint path parameter. Old style identifiers carry
// a slash and arrive percent encoded.
func ePrintParam(c echo.Context) (domain.EPrint, error) {
	raw, err := url.PathUnescape(c.Param("eprint"))
	if err != nil {
		return domain.EPrint{}, domain.ValidationError{Field: "ePrint", Message: "malformed escape"}
	}
	return domain.ParseEPrint(raw)
}

// creator prefers the body's creator and falls back to the authenticated
// requester.
func creator(ctx context.Context, in relations.RelationInput) *string {
	if in.Creator != nil && *in.Creator != "" {
		return in.Creator
	}
	if requester, ok := domain.RequesterFrom(ctx); ok {
		return &requester
	}
	return nil
}
