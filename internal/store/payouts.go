package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/payout"
)

// PayoutRequest is a creator's request to withdraw coins.
type PayoutRequest struct {
	ID              string        `json:"id"`
	CreatorID       string        `json:"creator_id"`
	CoinAmount      int64         `json:"coin_amount"`
	Status          payout.Status `json:"status"`
	ReviewedBy      *string       `json:"reviewed_by,omitempty"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`

	// PreviousStatus is set on the result of a transition only.
	PreviousStatus payout.Status `json:"previous_status,omitempty"`
}

// PayoutTransition moves a request to a new status.
type PayoutTransition struct {
	RequestID  string
	To         payout.Status
	ReviewedBy string
	Reason     string
}

// PayoutFilter narrows ListPayoutRequests.
type PayoutFilter struct {
	Status    payout.Status
	CreatorID string
	Limit     int
	Offset    int
}

// BalanceMismatch is a creator whose balance row disagrees with the ledger.
type BalanceMismatch struct {
	CreatorID       string `json:"creator_id"`
	ReservedPayout  int64  `json:"reserved_payout"`
	LedgerReserved  int64  `json:"ledger_reserved"`
	TotalWithdrawn  int64  `json:"total_withdrawn"`
	LedgerWithdrawn int64  `json:"ledger_withdrawn"`
}

const payoutRequestColumns = `id, creator_id, coin_amount, status, reviewed_by, rejection_reason, created_at, updated_at, paid_at`

// GetBalance returns a creator's balance row.
func (s *Store) GetBalance(ctx context.Context, creatorID string) (payout.Balance, bool, error) {
	bal, err := scanBalance(s.DB.QueryRowContext(ctx, `SELECT creator_id, pending_payout, reserved_payout, total_withdrawn FROM creator_balances WHERE creator_id=$1`, creatorID))
	if err == sql.ErrNoRows {
		return payout.Balance{}, false, nil
	}
	if err != nil {
		return payout.Balance{}, false, err
	}
	return bal, true, nil
}

// CreditEarnings adds earned coins to a creator's pending payout.
func (s *Store) CreditEarnings(ctx context.Context, creatorID string, amount int64) (payout.Balance, error) {
	if amount <= 0 {
		return payout.Balance{}, fmt.Errorf("%w: %d", payout.ErrInvalidAmount, amount)
	}
	return scanBalance(s.DB.QueryRowContext(ctx, `
INSERT INTO creator_balances (creator_id, pending_payout, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (creator_id) DO UPDATE SET
  pending_payout = creator_balances.pending_payout + EXCLUDED.pending_payout,
  updated_at = NOW()
RETURNING creator_id, pending_payout, reserved_payout, total_withdrawn
`, creatorID, amount))
}

// CreatePayoutRequest reserves amount from the creator's pending payout and
// records a pending request, all in one transaction.
func (s *Store) CreatePayoutRequest(ctx context.Context, creatorID string, amount int64) (PayoutRequest, payout.Balance, error) {
	if strings.TrimSpace(creatorID) == "" {
		return PayoutRequest{}, payout.Balance{}, fmt.Errorf("creator_id required")
	}
	var req PayoutRequest
	var bal payout.Balance
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lockBalance(ctx, tx, creatorID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: no balance for creator", payout.ErrInsufficientBalance)
		}
		if err != nil {
			return err
		}
		bal, err = current.Reserve(amount)
		if err != nil {
			return err
		}
		if err := writeBalance(ctx, tx, bal); err != nil {
			return err
		}
		req, err = scanPayoutRequest(tx.QueryRowContext(ctx, `
INSERT INTO payout_requests (creator_id, coin_amount, status)
VALUES ($1,$2,$3)
RETURNING `+payoutRequestColumns, creatorID, amount, string(payout.StatusPending)))
		if err != nil {
			return fmt.Errorf("insert payout request: %w", err)
		}
		return writeLedger(ctx, tx, req.ID, creatorID, payout.EntryReserve, amount)
	})
	if err != nil {
		return PayoutRequest{}, payout.Balance{}, err
	}
	return req, bal, nil
}

// TransitionPayoutRequest applies a status change and its balance effect in
// one transaction. The request and balance rows are locked and the transition
// is checked against the locked status, so a repeated call fails with
// payout.ErrInvalidTransition instead of moving coins twice.
func (s *Store) TransitionPayoutRequest(ctx context.Context, t PayoutTransition) (PayoutRequest, payout.Balance, error) {
	var req PayoutRequest
	var bal payout.Balance
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanPayoutRequest(tx.QueryRowContext(ctx, `SELECT `+payoutRequestColumns+` FROM payout_requests WHERE id=$1 FOR UPDATE`, t.RequestID))
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: payout request %s", ErrNotFound, t.RequestID)
		}
		if err != nil {
			return err
		}
		if err := payout.CheckTransition(current.Status, t.To); err != nil {
			return err
		}
		before, err := lockBalance(ctx, tx, current.CreatorID)
		if err != nil {
			return fmt.Errorf("lock balance for %s: %w", current.CreatorID, err)
		}
		bal, err = before.Apply(t.To, current.CoinAmount)
		if err != nil {
			return err
		}
		if bal != before {
			if err := writeBalance(ctx, tx, bal); err != nil {
				return err
			}
		}
		req, err = scanPayoutRequest(tx.QueryRowContext(ctx, `
UPDATE payout_requests SET
  status = $2,
  reviewed_by = COALESCE($3, reviewed_by),
  rejection_reason = CASE WHEN $2::text = 'rejected' THEN $4 ELSE rejection_reason END,
  paid_at = CASE WHEN $2::text = 'paid' THEN NOW() ELSE paid_at END,
  updated_at = NOW()
WHERE id = $1
RETURNING `+payoutRequestColumns, current.ID, string(t.To), nullString(t.ReviewedBy), nullString(t.Reason)))
		if err != nil {
			return fmt.Errorf("update payout request: %w", err)
		}
		req.PreviousStatus = current.Status
		if entry := payout.EntryFor(t.To); entry != "" {
			return writeLedger(ctx, tx, req.ID, req.CreatorID, entry, req.CoinAmount)
		}
		return nil
	})
	if err != nil {
		return PayoutRequest{}, payout.Balance{}, err
	}
	return req, bal, nil
}

// GetPayoutRequest returns one request by id.
func (s *Store) GetPayoutRequest(ctx context.Context, id string) (PayoutRequest, bool, error) {
	req, err := scanPayoutRequest(s.DB.QueryRowContext(ctx, `SELECT `+payoutRequestColumns+` FROM payout_requests WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return PayoutRequest{}, false, nil
	}
	if err != nil {
		return PayoutRequest{}, false, err
	}
	return req, true, nil
}

// ListPayoutRequests returns requests oldest first so the review queue is FIFO.
func (s *Store) ListPayoutRequests(ctx context.Context, f PayoutFilter) ([]PayoutRequest, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+payoutRequestColumns+`
FROM payout_requests
WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR creator_id = $2)
ORDER BY created_at ASC, id ASC
LIMIT $3 OFFSET $4
`, string(f.Status), f.CreatorID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PayoutRequest{}
	for rows.Next() {
		req, err := scanPayoutRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ReconcileBalances compares reserved and withdrawn balances with ledger sums.
func (s *Store) ReconcileBalances(ctx context.Context) ([]BalanceMismatch, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT b.creator_id, b.reserved_payout, COALESCE(l.reserved, 0), b.total_withdrawn, COALESCE(l.withdrawn, 0)
FROM creator_balances b
LEFT JOIN (
    SELECT creator_id,
           SUM(CASE WHEN entry_type = 'reserve' THEN amount ELSE -amount END) AS reserved,
           SUM(CASE WHEN entry_type = 'withdraw' THEN amount ELSE 0 END) AS withdrawn
    FROM payout_ledger
    GROUP BY creator_id
) l ON l.creator_id = b.creator_id
WHERE b.reserved_payout <> COALESCE(l.reserved, 0) OR b.total_withdrawn <> COALESCE(l.withdrawn, 0)
ORDER BY b.creator_id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceMismatch
	for rows.Next() {
		var m BalanceMismatch
		if err := rows.Scan(&m.CreatorID, &m.ReservedPayout, &m.LedgerReserved, &m.TotalWithdrawn, &m.LedgerWithdrawn); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func lockBalance(ctx context.Context, tx *sql.Tx, creatorID string) (payout.Balance, error) {
	return scanBalance(tx.QueryRowContext(ctx, `SELECT creator_id, pending_payout, reserved_payout, total_withdrawn FROM creator_balances WHERE creator_id=$1 FOR UPDATE`, creatorID))
}

func writeBalance(ctx context.Context, tx *sql.Tx, b payout.Balance) error {
	_, err := tx.ExecContext(ctx, `
UPDATE creator_balances SET pending_payout=$2, reserved_payout=$3, total_withdrawn=$4, updated_at=NOW()
WHERE creator_id=$1
`, b.CreatorID, b.PendingPayout, b.ReservedPayout, b.TotalWithdrawn)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func writeLedger(ctx context.Context, tx *sql.Tx, requestID, creatorID, entry string, amount int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payout_ledger (request_id, creator_id, entry_type, amount) VALUES ($1,$2,$3,$4)`, requestID, creatorID, entry, amount)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: ledger %s already recorded for %s", ErrConflict, entry, requestID)
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func scanBalance(row scanner) (payout.Balance, error) {
	var b payout.Balance
	err := row.Scan(&b.CreatorID, &b.PendingPayout, &b.ReservedPayout, &b.TotalWithdrawn)
	return b, err
}

func scanPayoutRequest(row scanner) (PayoutRequest, error) {
	var req PayoutRequest
	var status string
	var reviewedBy, reason sql.NullString
	var paidAt sql.NullTime
	if err := row.Scan(&req.ID, &req.CreatorID, &req.CoinAmount, &status, &reviewedBy, &reason, &req.CreatedAt, &req.UpdatedAt, &paidAt); err != nil {
		return PayoutRequest{}, err
	}
	req.Status = payout.Status(status)
	req.ReviewedBy = stringPtr(reviewedBy)
	req.RejectionReason = stringPtr(reason)
	req.PaidAt = timePtr(paidAt)
	return req, nil
}
