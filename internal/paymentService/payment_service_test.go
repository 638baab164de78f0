package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collateral-auction/internal/auctionerrors"
	"collateral-auction/internal/clock"
	dispute "collateral-auction/internal/disputeService"
	"collateral-auction/internal/keylock"
	model "collateral-auction/internal/models"
	"collateral-auction/internal/repository"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	payments *StatusMachine
	disputes *dispute.Gate
	repo     *repository.MemoryRepo
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := repository.NewMemoryRepo()
	clk := clock.NewFake(baseTime)
	bidLocks := keylock.New()
	disputes := dispute.NewGate(repo, bidLocks, clk)

	a := model.Auction{
		AuctionID:    "auction1",
		Sequence:     "AUC-000001",
		CollateralID: "collateral-1",
		OwnerID:      "owner1",
		StartingBid:  500,
		Kind:         model.KindOnline,
		StartsAt:     baseTime,
		EndsAt:       baseTime.Add(time.Hour),
		Status:       model.AuctionLive,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	require.NoError(t, repo.CreateAuction(context.Background(), a))
	require.NoError(t, repo.AppendBid(context.Background(), model.NewBid("bid1", "auction1", "alice", 600, "USD", baseTime)))

	return fixture{
		payments: NewStatusMachine(repo, bidLocks, disputes, clk),
		disputes: disputes,
		repo:     repo,
	}
}

func (f fixture) setStatus(t *testing.T, bidID string, status model.PaymentStatus, paidAmount float64) {
	t.Helper()
	b, err := f.repo.GetBid(context.Background(), bidID)
	require.NoError(t, err)
	b.Payment.Status = status
	b.Payment.PaidAmount = paidAmount
	require.NoError(t, f.repo.UpdateBid(context.Background(), b))
}

func TestStatusMachine_Transition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    model.PaymentStatus
		to      model.PaymentStatus
		wantErr error
	}{
		{name: "unpaid_to_pending", from: model.PaymentUnpaid, to: model.PaymentPending},
		{name: "unpaid_to_cancelled", from: model.PaymentUnpaid, to: model.PaymentCancelled},
		{name: "pending_to_paid", from: model.PaymentPending, to: model.PaymentPaid},
		{name: "pending_to_failed", from: model.PaymentPending, to: model.PaymentFailed},
		{name: "pending_to_cancelled", from: model.PaymentPending, to: model.PaymentCancelled},
		{name: "failed_retries_to_pending", from: model.PaymentFailed, to: model.PaymentPending},
		{name: "unpaid_to_paid_skips_pending", from: model.PaymentUnpaid, to: model.PaymentPaid, wantErr: auctionerrors.ErrInvalidPaymentTransition},
		{name: "paid_to_pending", from: model.PaymentPaid, to: model.PaymentPending, wantErr: auctionerrors.ErrInvalidPaymentTransition},
		{name: "paid_to_cancelled", from: model.PaymentPaid, to: model.PaymentCancelled, wantErr: auctionerrors.ErrInvalidPaymentTransition},
		{name: "cancelled_is_terminal", from: model.PaymentCancelled, to: model.PaymentPending, wantErr: auctionerrors.ErrInvalidPaymentTransition},
		{name: "refunded_is_terminal", from: model.PaymentRefunded, to: model.PaymentPaid, wantErr: auctionerrors.ErrInvalidPaymentTransition},
		{name: "failed_cannot_jump_to_paid", from: model.PaymentFailed, to: model.PaymentPaid, wantErr: auctionerrors.ErrInvalidPaymentTransition},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.setStatus(t, "bid1", tc.from, 0)

			b, err := f.payments.Transition(context.Background(), "bid1", tc.to, 0, "ref-1")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.to, b.Payment.Status)
		})
	}
}

func TestStatusMachine_PaidDefaultsToBidAmount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.setStatus(t, "bid1", model.PaymentPending, 0)

	b, err := f.payments.Transition(ctx, "bid1", model.PaymentPaid, 0, "txn-77")
	require.NoError(t, err)
	require.Equal(t, 600.0, b.Payment.PaidAmount)
	require.Equal(t, "txn-77", b.Payment.Reference)
}

// A dispute raised between pending and paid blocks settlement; it clears
// once the dispute resolves valid.
func TestStatusMachine_DisputeGatesPaid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.setStatus(t, "bid1", model.PaymentPending, 0)

	_, err := f.disputes.Raise(ctx, "bid1", "owner1", "collateral condition")
	require.NoError(t, err)

	_, err = f.payments.Transition(ctx, "bid1", model.PaymentPaid, 0, "")
	require.ErrorIs(t, err, auctionerrors.ErrDisputeBlocksPayment)

	_, err = f.disputes.Review(ctx, "bid1", "admin")
	require.NoError(t, err)
	_, err = f.payments.Transition(ctx, "bid1", model.PaymentPaid, 0, "")
	require.ErrorIs(t, err, auctionerrors.ErrDisputeBlocksPayment)

	_, err = f.disputes.Resolve(ctx, "bid1", "admin", model.DisputeResolvedValid, "")
	require.NoError(t, err)

	b, err := f.payments.Transition(ctx, "bid1", model.PaymentPaid, 0, "")
	require.NoError(t, err)
	require.Equal(t, model.PaymentPaid, b.Payment.Status)
}

func TestStatusMachine_ResolvedInvalidStillBlocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.setStatus(t, "bid1", model.PaymentPending, 0)

	_, err := f.disputes.Raise(ctx, "bid1", "owner1", "reason")
	require.NoError(t, err)
	_, err = f.disputes.Resolve(ctx, "bid1", "admin", model.DisputeResolvedInvalid, "")
	require.NoError(t, err)

	_, err = f.payments.Transition(ctx, "bid1", model.PaymentPaid, 0, "")
	require.ErrorIs(t, err, auctionerrors.ErrDisputeBlocksPayment)
}

// A dispute raised after settlement does not unwind paid.
func TestStatusMachine_LateDisputeKeepsPaid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.setStatus(t, "bid1", model.PaymentPending, 0)

	_, err := f.payments.Transition(ctx, "bid1", model.PaymentPaid, 0, "")
	require.NoError(t, err)

	_, err = f.disputes.Raise(ctx, "bid1", "owner1", "late complaint")
	require.NoError(t, err)

	b, err := f.repo.GetBid(ctx, "bid1")
	require.NoError(t, err)
	require.Equal(t, model.PaymentPaid, b.Payment.Status)
	require.Equal(t, model.DisputeRaised, b.Dispute.Status)
}

func TestStatusMachine_Refunds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("partial_refunds_accumulate", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.setStatus(t, "bid1", model.PaymentPaid, 600)

		b, err := f.payments.Refund(ctx, "bid1", 200, "rf-1")
		require.NoError(t, err)
		require.Equal(t, model.PaymentPaid, b.Payment.Status)
		require.Equal(t, 200.0, b.Payment.RefundedTotal())

		b, err = f.payments.Refund(ctx, "bid1", 150, "rf-2")
		require.NoError(t, err)
		require.Equal(t, model.PaymentPaid, b.Payment.Status)
		require.Equal(t, 350.0, b.Payment.RefundedTotal())
		require.Len(t, b.Payment.Refunds, 2)
	})

	t.Run("full_refund_flips_status", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.setStatus(t, "bid1", model.PaymentPaid, 600)

		_, err := f.payments.Refund(ctx, "bid1", 400, "rf-1")
		require.NoError(t, err)
		b, err := f.payments.Refund(ctx, "bid1", 200, "rf-2")
		require.NoError(t, err)
		require.Equal(t, model.PaymentRefunded, b.Payment.Status)

		// refunded is terminal
		_, err = f.payments.Refund(ctx, "bid1", 1, "rf-3")
		require.ErrorIs(t, err, auctionerrors.ErrInvalidPaymentTransition)
	})

	t.Run("overdraw_rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.setStatus(t, "bid1", model.PaymentPaid, 600)

		_, err := f.payments.Refund(ctx, "bid1", 601, "rf-1")
		require.ErrorIs(t, err, auctionerrors.ErrRefundExceedsPaid)

		_, err = f.payments.Refund(ctx, "bid1", 500, "rf-1")
		require.NoError(t, err)
		_, err = f.payments.Refund(ctx, "bid1", 101, "rf-2")
		require.ErrorIs(t, err, auctionerrors.ErrRefundExceedsPaid)
	})

	t.Run("non_positive_amount", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.setStatus(t, "bid1", model.PaymentPaid, 600)

		_, err := f.payments.Refund(ctx, "bid1", 0, "rf-1")
		require.ErrorIs(t, err, auctionerrors.ErrInvalidBid)
	})

	t.Run("unpaid_bid_cannot_refund", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.payments.Refund(ctx, "bid1", 100, "rf-1")
		require.ErrorIs(t, err, auctionerrors.ErrInvalidPaymentTransition)
	})
}

func TestStatusMachine_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.payments.Transition(ctx, "", model.PaymentPending, 0, "")
	require.ErrorIs(t, err, auctionerrors.ErrInvalidBid)

	_, err = f.payments.Transition(ctx, "ghost", model.PaymentPending, 0, "")
	require.ErrorIs(t, err, auctionerrors.ErrBidNotFound)
}
