package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vibeops/internal/feed"
)

type pageBuilder interface {
	BuildPage(ctx context.Context, viewerID string, n int) (feed.Page, error)
}

// FeedHandler serves the authenticated viewer's ranked feed.
type FeedHandler struct {
	engine pageBuilder
}

func NewFeedHandler(engine pageBuilder) *FeedHandler {
	return &FeedHandler{engine: engine}
}

func (h *FeedHandler) Register(g *echo.Group) {
	g.GET("", h.page)
}

//	@Summary	Feed page for the authenticated viewer
//	@Tags		feed
//	@Security	BearerAuth
//	@Produce	json
//	@Param		page	query		int	false	"0-based page number"
//	@Success	200		{object}	feed.Page
//	@Failure	404		{object}	HTTPError
//	@Router		/api/feed [get]
func (h *FeedHandler) page(c echo.Context) error {
	viewerID := actor(c)
	if viewerID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	n, err := intQuery(c, "page", 0)
	if err != nil {
		return err
	}
	page, err := h.engine.BuildPage(c.Request().Context(), viewerID, n)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}
