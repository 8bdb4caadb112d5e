package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vibeops/config"
	"github.com/mohammad-safakhou/vibeops/internal/helpers"
	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
	"github.com/mohammad-safakhou/vibeops/internal/payout"
	"github.com/mohammad-safakhou/vibeops/internal/queue/streams"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

// IdempotencyHeader lets clients retry a status change safely.
const IdempotencyHeader = "Idempotency-Key"

type payoutStore interface {
	CreatePayoutRequest(ctx context.Context, creatorID string, amount int64) (store.PayoutRequest, payout.Balance, error)
	TransitionPayoutRequest(ctx context.Context, t store.PayoutTransition) (store.PayoutRequest, payout.Balance, error)
	GetPayoutRequest(ctx context.Context, id string) (store.PayoutRequest, bool, error)
	ListPayoutRequests(ctx context.Context, f store.PayoutFilter) ([]store.PayoutRequest, error)
	GetBalance(ctx context.Context, creatorID string) (payout.Balance, bool, error)
	ClaimIdempotency(ctx context.Context, scope, key string) (bool, error)
	ReleaseIdempotency(ctx context.Context, scope, key string) error
}

// eventPublisher appends ops events to the realtime stream.
type eventPublisher interface {
	PublishEvent(ctx context.Context, eventType, subject, actor string, payload interface{}) (streams.Envelope, string, error)
}

// PayoutHandler serves creator payout requests and the finance review queue.
type PayoutHandler struct {
	store  payoutStore
	events eventPublisher
	limits config.PayoutConfig
	log    *logger.Logger
}

func NewPayoutHandler(st payoutStore, events eventPublisher, limits config.PayoutConfig, log *logger.Logger) *PayoutHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PayoutHandler{store: st, events: events, limits: limits.Normalize(), log: log.Named("payouts")}
}

// RegisterCreator mounts the creator-facing routes.
func (h *PayoutHandler) RegisterCreator(g *echo.Group) {
	g.POST("/requests", h.create)
	g.GET("/balance", h.balance)
}

// RegisterFinance mounts the ops review routes.
func (h *PayoutHandler) RegisterFinance(g *echo.Group) {
	g.GET("/payout-requests", h.list)
	g.GET("/payout-requests/:id", h.get)
	g.PATCH("/payout-requests/:id", h.update)
}

type payoutStatusPayload struct {
	RequestID      string `json:"request_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	CoinAmount     int64  `json:"coin_amount"`
	PendingPayout  int64  `json:"pending_payout"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
	Reason         string `json:"reason,omitempty"`
}

//	@Summary	Request a payout of earned coins
//	@Tags		payouts
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreatePayoutRequest	true	"Amount"
//	@Success	201		{object}	PayoutResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/payouts/requests [post]
func (h *PayoutHandler) create(c echo.Context) error {
	creatorID := actor(c)
	if creatorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	var req CreatePayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.CoinAmount < h.limits.MinCoinAmount {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("coin_amount must be at least %d", h.limits.MinCoinAmount))
	}
	if h.limits.MaxCoinAmount > 0 && req.CoinAmount > h.limits.MaxCoinAmount {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("coin_amount must be at most %d", h.limits.MaxCoinAmount))
	}
	pr, bal, err := h.store.CreatePayoutRequest(c.Request().Context(), creatorID, req.CoinAmount)
	if err != nil {
		return httpError(err)
	}
	h.log.Info("payout requested", "request_id", pr.ID, "creator_id", creatorID, "coin_amount", pr.CoinAmount)
	return c.JSON(http.StatusCreated, PayoutResponse{Request: pr, Balance: bal})
}

func (h *PayoutHandler) balance(c echo.Context) error {
	creatorID := actor(c)
	if creatorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	bal, ok, err := h.store.GetBalance(c.Request().Context(), creatorID)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		bal = payout.Balance{CreatorID: creatorID}
	}
	return c.JSON(http.StatusOK, bal)
}

func (h *PayoutHandler) list(c echo.Context) error {
	f := store.PayoutFilter{CreatorID: strings.TrimSpace(c.QueryParam("creator_id"))}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := payout.ParseStatus(raw)
		if err != nil {
			return httpError(err)
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = intQuery(c, "limit", 50); err != nil {
		return err
	}
	if f.Offset, err = intQuery(c, "offset", 0); err != nil {
		return err
	}
	if f.Limit == 0 || f.Limit > 200 {
		f.Limit = 50
	}
	items, err := h.store.ListPayoutRequests(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []store.PayoutRequest{}
	}
	return c.JSON(http.StatusOK, PayoutListResponse{Items: items, Limit: f.Limit, Offset: f.Offset})
}

// requestID returns the :id param, or 404 when it is not a UUID.
func requestID(c echo.Context) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, "payout request not found")
	}
	return id.String(), nil
}

func (h *PayoutHandler) get(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	pr, ok, err := h.store.GetPayoutRequest(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "payout request not found")
	}
	return c.JSON(http.StatusOK, pr)
}

//	@Summary	Move a payout request to a new status
//	@Tags		finance
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id				path		string				true	"Request id"
//	@Param		Idempotency-Key	header		string				false	"Retry key"
//	@Param		payload			body		UpdatePayoutRequest	true	"Target status"
//	@Success	200				{object}	PayoutResponse
//	@Failure	400				{object}	HTTPError
//	@Failure	404				{object}	HTTPError
//	@Router		/api/ops/finance/payout-requests/{id} [patch]
func (h *PayoutHandler) update(c echo.Context) error {
	id, err := requestID(c)
	if err != nil {
		return err
	}
	var req UpdatePayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	to, err := payout.ParseStatus(req.Status)
	if err != nil {
		return httpError(err)
	}
	ctx := c.Request().Context()
	reviewer := actor(c)

	key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
	scope := "payout:" + id
	if key != "" {
		claimed, err := h.store.ClaimIdempotency(ctx, scope, key)
		if err != nil {
			return httpError(err)
		}
		if !claimed {
			return h.replay(c, id)
		}
	}

	reason := helpers.PlainText(req.Reason, 500)
	pr, bal, err := h.store.TransitionPayoutRequest(ctx, store.PayoutTransition{RequestID: id, To: to, ReviewedBy: reviewer, Reason: reason})
	metrics.PayoutTransitions.WithLabelValues(string(to), metrics.Outcome(err)).Inc()
	if err != nil {
		if key != "" {
			// let the client retry the same key after a failure
			if rerr := h.store.ReleaseIdempotency(ctx, scope, key); rerr != nil {
				h.log.Warn("release idempotency key failed", "request_id", id, "error", rerr)
			}
		}
		return httpError(err)
	}

	h.log.Info("payout status changed", "request_id", id, "from", pr.PreviousStatus, "to", pr.Status, "by", reviewer)
	h.notify(ctx, pr, bal, reason, reviewer)
	return c.JSON(http.StatusOK, PayoutResponse{Request: pr, Balance: bal})
}

// replay answers a repeated Idempotency-Key with the current state and no side effects.
func (h *PayoutHandler) replay(c echo.Context, id string) error {
	ctx := c.Request().Context()
	pr, ok, err := h.store.GetPayoutRequest(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "payout request not found")
	}
	bal, _, err := h.store.GetBalance(ctx, pr.CreatorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, PayoutResponse{Request: pr, Balance: bal, Replay: true})
}

// notify publishes payout_status_changed to the creator. The transition is
// already committed so a publish failure is logged, not returned.
func (h *PayoutHandler) notify(ctx context.Context, pr store.PayoutRequest, bal payout.Balance, reason, reviewer string) {
	if h.events == nil {
		return
	}
	payload := payoutStatusPayload{
		RequestID:      pr.ID,
		Status:         string(pr.Status),
		PreviousStatus: string(pr.PreviousStatus),
		CoinAmount:     pr.CoinAmount,
		PendingPayout:  bal.PendingPayout,
		TotalWithdrawn: bal.TotalWithdrawn,
	}
	if pr.Status == payout.StatusRejected {
		payload.Reason = reason
	}
	if _, _, err := h.events.PublishEvent(ctx, streams.EventPayoutStatusChanged, pr.CreatorID, reviewer, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.log.Warn("publish payout_status_changed failed", "request_id", pr.ID, "error", err)
	}
}
