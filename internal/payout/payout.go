package payout

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a payout request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusRejected Status = "rejected"
)

var Statuses = []Status{StatusPending, StatusInReview, StatusApproved, StatusPaid, StatusRejected}

var (
	ErrInvalidTransition   = errors.New("invalid payout status transition")
	ErrInsufficientBalance = errors.New("insufficient pending balance")
	ErrInvalidAmount       = errors.New("invalid payout amount")
	ErrUnknownStatus       = errors.New("unknown payout status")
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusInReview, StatusRejected},
	StatusInReview: {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid, StatusRejected},
}

// ParseStatus accepts a status string in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

// Next lists the statuses reachable from s in one step.
func (s Status) Next() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition for a move outside the table.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Balance is a creator's coin balance split by where the coins sit.
type Balance struct {
	CreatorID      string `json:"creator_id"`
	PendingPayout  int64  `json:"pending_payout"`
	ReservedPayout int64  `json:"reserved_payout"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
}

// Total is conserved by every payout operation.
func (b Balance) Total() int64 { return b.PendingPayout + b.ReservedPayout + b.TotalWithdrawn }

// Reserve moves amount from pending into reserved when a request is created.
func (b Balance) Reserve(amount int64) (Balance, error) {
	if amount <= 0 {
		return b, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if b.PendingPayout < amount {
		return b, fmt.Errorf("%w: have %d, requested %d", ErrInsufficientBalance, b.PendingPayout, amount)
	}
	b.PendingPayout -= amount
	b.ReservedPayout += amount
	return b, nil
}

// Apply returns the balance after a request of amount moves to status to.
// Only rejected and paid move coins.
func (b Balance) Apply(to Status, amount int64) (Balance, error) {
	if amount <= 0 {
		return b, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	switch to {
	case StatusRejected, StatusPaid:
		if b.ReservedPayout < amount {
			return b, fmt.Errorf("reserved balance %d below request amount %d", b.ReservedPayout, amount)
		}
		b.ReservedPayout -= amount
		if to == StatusRejected {
			b.PendingPayout += amount
		} else {
			b.TotalWithdrawn += amount
		}
	}
	return b, nil
}

// LedgerEntry types written alongside balance moves.
const (
	EntryReserve  = "reserve"
	EntryRelease  = "release"
	EntryWithdraw = "withdraw"
)

// EntryFor names the ledger entry a transition to status writes, or "" when none.
func EntryFor(to Status) string {
	switch to {
	case StatusRejected:
		return EntryRelease
	case StatusPaid:
		return EntryWithdraw
	}
	return ""
}
