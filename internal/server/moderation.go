package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vibeops/internal/search"
)

type contentIndex interface {
	Search(q search.Query) (search.Result, error)
	Reindex(ctx context.Context, src search.Lister, full bool) (int, error)
}

// ModerationHandler exposes caption search to moderators.
type ModerationHandler struct {
	index contentIndex
	src   search.Lister
}

func NewModerationHandler(index contentIndex, src search.Lister) *ModerationHandler {
	return &ModerationHandler{index: index, src: src}
}

func (h *ModerationHandler) Register(g *echo.Group) {
	g.GET("/search", h.search)
	g.POST("/reindex", h.reindex)
}

//	@Summary	Full-text search over content captions
//	@Tags		moderation
//	@Security	BearerAuth
//	@Produce	json
//	@Param		q				query		string	true	"Query text"
//	@Param		content_type	query		string	false	"Content type filter"
//	@Success	200				{object}	search.Result
//	@Router		/api/ops/moderation/search [get]
func (h *ModerationHandler) search(c echo.Context) error {
	if h.index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search disabled")
	}
	q := search.Query{Text: c.QueryParam("q"), ContentType: c.QueryParam("content_type")}
	var err error
	if q.Limit, err = intQuery(c, "limit", 0); err != nil {
		return err
	}
	if q.Offset, err = intQuery(c, "offset", 0); err != nil {
		return err
	}
	if q.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	res, err := h.index.Search(q)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ModerationHandler) reindex(c echo.Context) error {
	if h.index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search disabled")
	}
	n, err := h.index.Reindex(c.Request().Context(), h.src, c.QueryParam("full") == "true")
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"indexed": n})
}
