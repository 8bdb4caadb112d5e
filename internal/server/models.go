package server

import (
	"encoding/json"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/algorithm"
	"github.com/mohammad-safakhou/vibeops/internal/feed"
	"github.com/mohammad-safakhou/vibeops/internal/payout"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthLoginRequest represents the ops console login payload.
type AuthLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token  string   `json:"token"`
	Scopes []string `json:"scopes"`
}

// SaveConfigRequest is the PUT body for an algorithm config.
type SaveConfigRequest struct {
	ConfigData    json.RawMessage `json:"config_data" validate:"required"`
	Note          string          `json:"note,omitempty" validate:"max=500"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
}

// ConfigResponse is one config version plus derived facts about it.
type ConfigResponse struct {
	store.AlgorithmConfigRecord
	Symmetric *bool    `json:"symmetric,omitempty"`
	WeightSum *float64 `json:"weight_sum,omitempty"`
	Scheduled bool     `json:"scheduled"`
}

// SnapshotResponse lists the active config of every type.
type SnapshotResponse struct {
	Snapshot algorithm.Snapshot `json:"snapshot"`
	Configs  []ConfigResponse   `json:"configs"`
}

// PreviewRequest scores candidates under a draft parameter set.
type PreviewRequest struct {
	Overrides map[algorithm.ConfigType]json.RawMessage `json:"overrides,omitempty"`
	Viewer    PreviewViewer                            `json:"viewer" validate:"required"`
	Items     []feed.Item                              `json:"items" validate:"required,min=1,max=5000"`
	Page      int                                      `json:"page" validate:"min=0"`
}

// PreviewViewer is a viewer described inline.
type PreviewViewer struct {
	UserID    string           `json:"user_id" validate:"required"`
	Vibe      algorithm.Vibe   `json:"vibe,omitempty"`
	Intent    algorithm.Intent `json:"intent,omitempty"`
	Following []string         `json:"following,omitempty"`
	Mutuals   map[string]int   `json:"mutuals,omitempty"`
}

// PreviewResponse is the allocated page plus allocation facts.
type PreviewResponse struct {
	Page       feed.Page          `json:"page"`
	TotalPages int                `json:"total_pages"`
	Deferred   int                `json:"deferred"`
	Dropped    []string           `json:"dropped,omitempty"`
	Snapshot   algorithm.Snapshot `json:"snapshot"`
}

// CreatePayoutRequest is the creator's withdrawal request.
type CreatePayoutRequest struct {
	CoinAmount int64 `json:"coin_amount" validate:"required,gt=0"`
}

// PayoutResponse is a request with the creator's balance after the change.
type PayoutResponse struct {
	Request store.PayoutRequest `json:"request"`
	Balance payout.Balance      `json:"balance"`
	Replay  bool                `json:"replay,omitempty"`
}

// UpdatePayoutRequest moves a request to a new status.
type UpdatePayoutRequest struct {
	Status string `json:"status" validate:"required,oneof=pending in_review approved paid rejected"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// PayoutListResponse is a page of requests.
type PayoutListResponse struct {
	Items  []store.PayoutRequest `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// OpsEventRequest is an ops broadcast to one user.
type OpsEventRequest struct {
	Event   string          `json:"event" validate:"required,oneof=session_terminated user_locked rate_limit_config_updated"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpsEventResponse echoes the recorded broadcast and its stream entry.
type OpsEventResponse struct {
	store.OpsEvent
	StreamID string `json:"stream_id"`
}

// SystemStatusResponse summarises dependency health for the live ops page.
type SystemStatusResponse struct {
	Status   string             `json:"status"`
	Checks   map[string]string  `json:"checks"`
	Stats    *store.SystemStats `json:"stats,omitempty"`
	Realtime *RealtimeStatus    `json:"realtime,omitempty"`
	Time     time.Time          `json:"time"`
}

// RealtimeStatus reports the ops event stream backlog.
type RealtimeStatus struct {
	Stream     string `json:"stream"`
	Group      string `json:"group"`
	Length     int64  `json:"length"`
	Pending    int64  `json:"pending"`
	Lag        int64  `json:"lag"`
	Consumers  int64  `json:"consumers"`
	OldestIdle string `json:"oldest_idle,omitempty"`
}
