package api

import (
	"context"

	"MarketPull/internal/domain/models"
	xhttp "MarketPull/pkg/http"
	xlogger "MarketPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// TargetService schedules and cancels auction targets.
type TargetService interface {
	Target(ctx context.Context, req models.TargetRequest) (*models.AuctionTarget, error)
	Untarget(ctx context.Context, listingID string) (*models.AuctionTarget, error)
	Get(listingID string) (*models.AuctionTarget, bool)
	List() []*models.AuctionTarget
}

type TargetsEchoHandler struct {
	logger  *xlogger.Logger
	targets TargetService
}

func NewTargetsEchoHandler(logger *xlogger.Logger, targets TargetService) *TargetsEchoHandler {
	return &TargetsEchoHandler{logger: logger, targets: targets}
}

func (h *TargetsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/targets")
	g.GET("", h.List)
	g.GET("/:listing", h.Get)
	g.POST("", h.Target)
	g.DELETE("/:listing", h.Untarget)
}

func (h *TargetsEchoHandler) List(c echo.Context) error {
	rows := h.targets.List()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *TargetsEchoHandler) Get(c echo.Context) error {
	t, ok := h.targets.Get(c.Param("listing"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no target for listing "+c.Param("listing")))
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *TargetsEchoHandler) Target(c echo.Context) error {
	req := &models.TargetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.targets.Target(c.Request().Context(), *req)
	if err != nil {
		if !models.IsUserError(err) {
			h.logger.Error("target failed", xlogger.String("listing_id", req.ListingID), xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.CreatedResponse(c, t)
}

func (h *TargetsEchoHandler) Untarget(c echo.Context) error {
	t, err := h.targets.Untarget(c.Request().Context(), c.Param("listing"))
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, t)
}
