package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/vibeops/internal/payout"
)

var (
	balanceCols = []string{"creator_id", "pending_payout", "reserved_payout", "total_withdrawn"}
	requestCols = []string{"id", "creator_id", "coin_amount", "status", "reviewed_by", "rejection_reason", "created_at", "updated_at", "paid_at"}
)

const (
	lockBalanceSQL = `SELECT creator_id, pending_payout, reserved_payout, total_withdrawn FROM creator_balances WHERE creator_id=$1 FOR UPDATE`
	lockRequestSQL = `FROM payout_requests WHERE id=$1 FOR UPDATE`
	updateBalSQL   = `UPDATE creator_balances SET pending_payout=$2, reserved_payout=$3, total_withdrawn=$4, updated_at=NOW()`
	ledgerSQL      = `INSERT INTO payout_ledger (request_id, creator_id, entry_type, amount) VALUES ($1,$2,$3,$4)`
)

func TestCreatePayoutRequestReservesBalance(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockBalanceSQL)).WithArgs("creator-1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("creator-1", 500, 0, 100))
	mock.ExpectExec(regexp.QuoteMeta(updateBalSQL)).WithArgs("creator-1", 300, 200, 100).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO payout_requests (creator_id, coin_amount, status)`)).
		WithArgs("creator-1", 200, "pending").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-1", "creator-1", 200, "pending", nil, nil, now, now, nil))
	mock.ExpectExec(regexp.QuoteMeta(ledgerSQL)).WithArgs("req-1", "creator-1", "reserve", 200).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req, bal, err := st.CreatePayoutRequest(context.Background(), "creator-1", 200)
	if err != nil {
		t.Fatalf("CreatePayoutRequest: %v", err)
	}
	if req.ID != "req-1" || req.Status != payout.StatusPending {
		t.Fatalf("unexpected request: %+v", req)
	}
	if bal.PendingPayout != 300 || bal.ReservedPayout != 200 || bal.Total() != 600 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreatePayoutRequestInsufficientBalance(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockBalanceSQL)).WithArgs("creator-1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("creator-1", 50, 0, 0))
	mock.ExpectRollback()

	_, _, err := st.CreatePayoutRequest(context.Background(), "creator-1", 200)
	if !errors.Is(err, payout.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionRejectRestoresPending(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-1", "creator-1", 200, "in_review", "admin-1", nil, now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta(lockBalanceSQL)).WithArgs("creator-1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("creator-1", 300, 200, 100))
	mock.ExpectExec(regexp.QuoteMeta(updateBalSQL)).WithArgs("creator-1", 500, 0, 100).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE payout_requests SET`)).
		WithArgs("req-1", "rejected", "admin-2", "kyc mismatch").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-1", "creator-1", 200, "rejected", "admin-2", "kyc mismatch", now, now, nil))
	mock.ExpectExec(regexp.QuoteMeta(ledgerSQL)).WithArgs("req-1", "creator-1", "release", 200).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	req, bal, err := st.TransitionPayoutRequest(context.Background(), PayoutTransition{
		RequestID: "req-1", To: payout.StatusRejected, ReviewedBy: "admin-2", Reason: "kyc mismatch",
	})
	if err != nil {
		t.Fatalf("TransitionPayoutRequest: %v", err)
	}
	if req.Status != payout.StatusRejected || req.RejectionReason == nil {
		t.Fatalf("unexpected request: %+v", req)
	}
	if bal.PendingPayout != 500 || bal.ReservedPayout != 0 || bal.TotalWithdrawn != 100 {
		t.Fatalf("unexpected balance: %+v", bal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionPaidMovesToWithdrawn(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-2").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-2", "creator-1", 150, "approved", "admin-1", nil, now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta(lockBalanceSQL)).WithArgs("creator-1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("creator-1", 0, 150, 0))
	mock.ExpectExec(regexp.QuoteMeta(updateBalSQL)).WithArgs("creator-1", 0, 0, 150).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE payout_requests SET`)).
		WithArgs("req-2", "paid", "admin-1", nil).
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-2", "creator-1", 150, "paid", "admin-1", nil, now, now, now))
	mock.ExpectExec(regexp.QuoteMeta(ledgerSQL)).WithArgs("req-2", "creator-1", "withdraw", 150).WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	req, bal, err := st.TransitionPayoutRequest(context.Background(), PayoutTransition{RequestID: "req-2", To: payout.StatusPaid, ReviewedBy: "admin-1"})
	if err != nil {
		t.Fatalf("TransitionPayoutRequest: %v", err)
	}
	if req.PaidAt == nil || bal.TotalWithdrawn != 150 || bal.ReservedPayout != 0 {
		t.Fatalf("unexpected result: %+v %+v", req, bal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionReviewLeavesBalance(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-3").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-3", "creator-1", 80, "pending", nil, nil, now, now, nil))
	mock.ExpectQuery(regexp.QuoteMeta(lockBalanceSQL)).WithArgs("creator-1").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow("creator-1", 20, 80, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE payout_requests SET`)).
		WithArgs("req-3", "in_review", "admin-1", nil).
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-3", "creator-1", 80, "in_review", "admin-1", nil, now, now, nil))
	mock.ExpectCommit()

	_, bal, err := st.TransitionPayoutRequest(context.Background(), PayoutTransition{RequestID: "req-3", To: payout.StatusInReview, ReviewedBy: "admin-1"})
	if err != nil {
		t.Fatalf("TransitionPayoutRequest: %v", err)
	}
	if bal.PendingPayout != 20 || bal.ReservedPayout != 80 {
		t.Fatalf("balance should be unchanged: %+v", bal)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionRepeatedCallIsRejected(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()

	// the first call already moved the request to rejected
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow("req-1", "creator-1", 200, "rejected", "admin-2", "dup", now, now, nil))
	mock.ExpectRollback()

	_, _, err := st.TransitionPayoutRequest(context.Background(), PayoutTransition{RequestID: "req-1", To: payout.StatusRejected})
	if !errors.Is(err, payout.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionUnknownRequest(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRequestSQL)).WithArgs("missing").WillReturnRows(sqlmock.NewRows(requestCols))
	mock.ExpectRollback()

	_, _, err := st.TransitionPayoutRequest(context.Background(), PayoutTransition{RequestID: "missing", To: payout.StatusInReview})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListPayoutRequestsFilters(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM payout_requests
WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR creator_id = $2)`)).
		WithArgs("pending", "", 100, 0).
		WillReturnRows(sqlmock.NewRows(requestCols).
			AddRow("req-1", "creator-1", 200, "pending", nil, nil, now, now, nil).
			AddRow("req-4", "creator-2", 90, "pending", nil, nil, now, now, nil))

	out, err := st.ListPayoutRequests(context.Background(), PayoutFilter{Status: payout.StatusPending})
	if err != nil {
		t.Fatalf("ListPayoutRequests: %v", err)
	}
	if len(out) != 2 || out[1].CreatorID != "creator-2" {
		t.Fatalf("unexpected rows: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReconcileBalances(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM creator_balances b
LEFT JOIN (`)).
		WillReturnRows(sqlmock.NewRows([]string{"creator_id", "reserved_payout", "reserved", "total_withdrawn", "withdrawn"}).
			AddRow("creator-9", 10, 0, 0, 0))

	out, err := st.ReconcileBalances(context.Background())
	if err != nil {
		t.Fatalf("ReconcileBalances: %v", err)
	}
	if len(out) != 1 || out[0].CreatorID != "creator-9" || out[0].ReservedPayout != 10 {
		t.Fatalf("unexpected mismatches: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
