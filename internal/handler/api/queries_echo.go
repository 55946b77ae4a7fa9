package api

import (
	"context"
	"strconv"

	"MarketPull/internal/domain/models"
	dsvc "MarketPull/internal/domain/service"
	xhttp "MarketPull/pkg/http"
	xlogger "MarketPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// QueryService is the part of the query registry exposed over HTTP.
type QueryService interface {
	Create(ctx context.Context, source models.Source, name string, params models.SearchParams, mention string) (*models.TrackedQuery, error)
	AddParams(ctx context.Context, threadID string, params models.SearchParams) (*models.TrackedQuery, error)
	RemoveParams(ctx context.Context, threadID string, indices ...int) (*models.TrackedQuery, error)
	Delete(ctx context.Context, threadID string) error
	List(source models.Source) []*models.TrackedQuery
}

// QueriesEchoHandler manages tracked queries.
type QueriesEchoHandler struct {
	logger     *xlogger.Logger
	queries    QueryService
	suggesters map[models.Source]dsvc.CategorySuggester
}

type QueriesOption func(*QueriesEchoHandler)

// WithCategorySuggester fills the category of new src queries that leave it unset.
func WithCategorySuggester(src models.Source, s dsvc.CategorySuggester) QueriesOption {
	return func(h *QueriesEchoHandler) {
		h.suggesters[src] = s
	}
}

func NewQueriesEchoHandler(logger *xlogger.Logger, queries QueryService, opts ...QueriesOption) *QueriesEchoHandler {
	h := &QueriesEchoHandler{logger: logger, queries: queries, suggesters: map[models.Source]dsvc.CategorySuggester{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *QueriesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/queries")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/:thread/params", h.AddParams)
	g.DELETE("/:thread/params/:index", h.RemoveParams)
	g.DELETE("/:thread", h.Delete)
}

func (h *QueriesEchoHandler) List(c echo.Context) error {
	req := &models.ListQueriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.queries.List(models.Source(req.Source))
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *QueriesEchoHandler) Create(c echo.Context) error {
	req := &models.CreateQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Params.Category == 0 && !req.SkipCategory {
		req.Params.Category = h.suggestCategory(c.Request().Context(), models.Source(req.Source), req.Params)
	}
	q, err := h.queries.Create(c.Request().Context(), models.Source(req.Source), req.Name, req.Params, req.Mention)
	if err != nil {
		h.logger.Error("create query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.CreatedResponse(c, q)
}

// suggestCategory returns 0 when no suggester is set or it fails; the query
// is then created without a category.
func (h *QueriesEchoHandler) suggestCategory(ctx context.Context, src models.Source, params models.SearchParams) int {
	s, ok := h.suggesters[src]
	if !ok {
		return 0
	}
	id, name, err := s.SuggestCategory(ctx, params)
	if err != nil {
		h.logger.Warn("category suggestion failed", xlogger.String("query", params.Query), xlogger.Error(err))
		return 0
	}
	if id != 0 {
		h.logger.Info("category suggested", xlogger.String("query", params.Query), xlogger.Int("category", id), xlogger.String("name", name))
	}
	return id
}

func (h *QueriesEchoHandler) AddParams(c echo.Context) error {
	req := &models.AddParamsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q, err := h.queries.AddParams(c.Request().Context(), c.Param("thread"), req.Params)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, q)
}

func (h *QueriesEchoHandler) RemoveParams(c echo.Context) error {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid param set index %q", c.Param("index")))
	}
	q, err := h.queries.RemoveParams(c.Request().Context(), c.Param("thread"), idx)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, q)
}

func (h *QueriesEchoHandler) Delete(c echo.Context) error {
	if err := h.queries.Delete(c.Request().Context(), c.Param("thread")); err != nil {
		h.logger.Error("delete query failed", xlogger.String("thread_id", c.Param("thread")), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.NoContentResponse(c)
}
