package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

type opsStore interface {
	ProfileExists(ctx context.Context, userID string) (bool, error)
	SetProfileLocked(ctx context.Context, userID string, locked bool) error
	RecordOpsEvent(ctx context.Context, ev store.OpsEvent) (store.OpsEvent, error)
	ListOpsEvents(ctx context.Context, userID string, limit int) ([]store.OpsEvent, error)
}

type payloadValidator interface {
	Validate(eventType, version string, payload []byte) error
}

// eventHistory reads past envelopes addressed to a user from the ops stream.
type eventHistory interface {
	Replay(ctx context.Context, subject string, count int64) ([]streams.Envelope, error)
}

// OpsHandler sends ops broadcasts to a single user's realtime channel.
type OpsHandler struct {
	store   opsStore
	schemas payloadValidator
	events  eventPublisher
	history eventHistory
	log     *logger.Logger
}

func NewOpsHandler(st opsStore, schemas payloadValidator, events eventPublisher, history eventHistory, log *logger.Logger) *OpsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OpsHandler{store: st, schemas: schemas, events: events, history: history, log: log.Named("ops")}
}

// Register mounts user event routes. It expects authentication to be applied by caller.
func (h *OpsHandler) Register(g *echo.Group) {
	g.POST("/:user_id/events", h.send)
	g.GET("/:user_id/events", h.list)
	g.GET("/:user_id/events/stream", h.replay)
}

//	@Summary	Send an ops event to one user
//	@Tags		ops
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		user_id	path		string			true	"User id"
//	@Param		payload	body		OpsEventRequest	true	"Event"
//	@Success	201		{object}	OpsEventResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/ops/users/{user_id}/events [post]
func (h *OpsHandler) send(c echo.Context) error {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id required")
	}
	var req OpsEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	payload := req.Payload
	if len(bytes.TrimSpace(payload)) == 0 || string(bytes.TrimSpace(payload)) == "null" {
		payload = json.RawMessage(`{}`)
	}
	if err := h.schemas.Validate(req.Event, "v1", payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	exists, err := h.store.ProfileExists(ctx, userID)
	if err != nil {
		return httpError(err)
	}
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if req.Event == streams.EventUserLocked {
		if err := h.store.SetProfileLocked(ctx, userID, true); err != nil {
			return httpError(err)
		}
	}

	by := actor(c)
	ev := store.OpsEvent{UserID: userID, EventType: req.Event, Payload: payload}
	if by != "" {
		ev.CreatedBy = &by
	}
	recorded, err := h.store.RecordOpsEvent(ctx, ev)
	if err != nil {
		return httpError(err)
	}
	_, streamID, err := h.events.PublishEvent(ctx, req.Event, userID, by, payload)
	if err != nil {
		h.log.Error("ops event recorded but not queued", "event_id", recorded.ID, "user_id", userID, "event", req.Event, "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("event %s recorded but broadcast failed", recorded.ID))
	}
	h.log.Info("ops event sent", "event_id", recorded.ID, "user_id", userID, "event", req.Event, "by", by, "stream_id", streamID)
	return c.JSON(http.StatusCreated, OpsEventResponse{OpsEvent: recorded, StreamID: streamID})
}

func (h *OpsHandler) list(c echo.Context) error {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return err
	}
	events, err := h.store.ListOpsEvents(c.Request().Context(), c.Param("user_id"), limit)
	if err != nil {
		return httpError(err)
	}
	if events == nil {
		events = []store.OpsEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

// replay returns the envelopes still retained on the stream for a user, newest first.
func (h *OpsHandler) replay(c echo.Context) error {
	if h.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "stream history unavailable")
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return err
	}
	envs, err := h.history.Replay(c.Request().Context(), c.Param("user_id"), int64(limit))
	if err != nil {
		return httpError(err)
	}
	if envs == nil {
		envs = []streams.Envelope{}
	}
	return c.JSON(http.StatusOK, envs)
}
