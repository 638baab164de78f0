package auction

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"collateral-auction/internal/auctionerrors"
	"collateral-auction/internal/keylock"
	model "collateral-auction/internal/models"
	"collateral-auction/internal/repository"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }

func validParams() CreateParams {
	return CreateParams{
		CollateralID: "collateral-1",
		OwnerID:      "owner1",
		StartingBid:  500,
		Kind:         model.KindOnline,
		StartsAt:     baseTime,
		EndsAt:       baseTime.Add(time.Hour),
	}
}

func newMachine() (*StateMachine, *repository.MemoryRepo) {
	repo := repository.NewMemoryRepo()
	return NewStateMachine(repo, keylock.New()), repo
}

func mustCreate(t *testing.T, m *StateMachine, p CreateParams) model.Auction {
	t.Helper()
	a, err := m.Create(context.Background(), p, baseTime)
	require.NoError(t, err)
	return a
}

func appendBid(t *testing.T, repo *repository.MemoryRepo, auctionID, bidID, bidderID string, amount float64) model.Bid {
	t.Helper()
	b := model.NewBid(bidID, auctionID, bidderID, amount, "USD", baseTime)
	require.NoError(t, repo.AppendBid(context.Background(), b))
	return b
}

func TestStateMachine_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(p *CreateParams) {},
		},
		{
			name:   "valid_with_reserve",
			mutate: func(p *CreateParams) { p.ReservePrice = floatPtr(800) },
		},
		{
			name:    "missing_collateral",
			mutate:  func(p *CreateParams) { p.CollateralID = "" },
			wantErr: true,
		},
		{
			name:    "missing_owner",
			mutate:  func(p *CreateParams) { p.OwnerID = "" },
			wantErr: true,
		},
		{
			name:    "non_positive_starting_bid",
			mutate:  func(p *CreateParams) { p.StartingBid = 0 },
			wantErr: true,
		},
		{
			name:    "reserve_below_starting_bid",
			mutate:  func(p *CreateParams) { p.ReservePrice = floatPtr(400) },
			wantErr: true,
		},
		{
			name:    "unknown_kind",
			mutate:  func(p *CreateParams) { p.Kind = model.AuctionKind("hybrid") },
			wantErr: true,
		},
		{
			name:    "window_inverted",
			mutate:  func(p *CreateParams) { p.EndsAt = p.StartsAt.Add(-time.Minute) },
			wantErr: true,
		},
		{
			name:    "window_empty",
			mutate:  func(p *CreateParams) { p.EndsAt = p.StartsAt },
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newMachine()
			p := validParams()
			tc.mutate(&p)

			a, err := m.Create(context.Background(), p, baseTime)
			if tc.wantErr {
				require.ErrorIs(t, err, auctionerrors.ErrInvalidBid)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, a.AuctionID)
			require.Equal(t, "AUC-000001", a.Sequence)
			require.Equal(t, model.AuctionDraft, a.Status)
			require.Nil(t, a.WinnerID)
		})
	}
}

func TestStateMachine_Activate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("draft_inside_window_goes_live", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())

		got, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, model.AuctionLive, got.Status)
	})

	t.Run("before_window", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())

		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(-time.Minute))
		require.ErrorIs(t, err, auctionerrors.ErrAuctionNotOpen)
	})

	t.Run("after_window", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())

		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Hour))
		require.ErrorIs(t, err, auctionerrors.ErrAuctionNotOpen)
	})

	t.Run("already_live", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())

		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		_, err = m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.ErrorIs(t, err, auctionerrors.ErrInvalidAuctionTransition)
	})

	t.Run("unknown_auction", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		_, err := m.Activate(ctx, "ghost", baseTime.Add(time.Minute))
		require.ErrorIs(t, err, auctionerrors.ErrAuctionNotFound)
	})
}

func TestStateMachine_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	closeTime := baseTime.Add(time.Hour)

	t.Run("freezes_leader_as_winner", func(t *testing.T) {
		t.Parallel()
		m, repo := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		appendBid(t, repo, a.AuctionID, "bid1", "alice", 600)
		appendBid(t, repo, a.AuctionID, "bid2", "bob", 700)

		got, closedNow, err := m.Close(ctx, a.AuctionID, closeTime)
		require.NoError(t, err)
		require.True(t, closedNow)
		require.Equal(t, model.AuctionClosed, got.Status)
		require.NotNil(t, got.WinnerID)
		require.Equal(t, "bob", *got.WinnerID)
		require.Equal(t, 700.0, *got.WinningAmount)
	})

	t.Run("no_bids_closes_without_winner", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)

		got, closedNow, err := m.Close(ctx, a.AuctionID, closeTime)
		require.NoError(t, err)
		require.True(t, closedNow)
		require.Equal(t, model.AuctionClosed, got.Status)
		require.Nil(t, got.WinnerID)
		require.Nil(t, got.WinningAmount)
	})

	t.Run("reserve_not_met_closes_without_winner", func(t *testing.T) {
		t.Parallel()
		m, repo := newMachine()
		p := validParams()
		p.ReservePrice = floatPtr(1000)
		a := mustCreate(t, m, p)
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		appendBid(t, repo, a.AuctionID, "bid1", "alice", 600)

		got, _, err := m.Close(ctx, a.AuctionID, closeTime)
		require.NoError(t, err)
		require.Equal(t, model.AuctionClosed, got.Status)
		require.Nil(t, got.WinnerID)
	})

	t.Run("second_close_is_idempotent", func(t *testing.T) {
		t.Parallel()
		m, repo := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		appendBid(t, repo, a.AuctionID, "bid1", "alice", 600)

		first, closedNow, err := m.Close(ctx, a.AuctionID, closeTime)
		require.NoError(t, err)
		require.True(t, closedNow)

		// a later bid sneaking into the store must not change the outcome
		appendBid(t, repo, a.AuctionID, "bid2", "bob", 900)

		second, closedNow, err := m.Close(ctx, a.AuctionID, closeTime.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, closedNow)
		require.Equal(t, first.WinnerID, second.WinnerID)
		require.Equal(t, first.WinningAmount, second.WinningAmount)
		require.Equal(t, first.UpdatedAt, second.UpdatedAt)
	})

	t.Run("draft_cannot_close", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())

		_, _, err := m.Close(ctx, a.AuctionID, closeTime)
		require.ErrorIs(t, err, auctionerrors.ErrInvalidAuctionTransition)
	})

	t.Run("cancelled_cannot_close", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Cancel(ctx, a.AuctionID, "withdrawn", baseTime)
		require.NoError(t, err)

		_, _, err = m.Close(ctx, a.AuctionID, closeTime)
		require.ErrorIs(t, err, auctionerrors.ErrInvalidAuctionTransition)
	})
}

func TestStateMachine_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("draft_cancels", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())

		got, err := m.Cancel(ctx, a.AuctionID, "listing error", baseTime)
		require.NoError(t, err)
		require.Equal(t, model.AuctionCancelled, got.Status)
		require.Equal(t, "listing error", got.CancelReason)
	})

	t.Run("live_with_unpaid_bids_cancels", func(t *testing.T) {
		t.Parallel()
		m, repo := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		appendBid(t, repo, a.AuctionID, "bid1", "alice", 600)

		got, err := m.Cancel(ctx, a.AuctionID, "collateral recalled", baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		require.Equal(t, model.AuctionCancelled, got.Status)
	})

	t.Run("paid_bid_pins_auction", func(t *testing.T) {
		t.Parallel()
		m, repo := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		b := appendBid(t, repo, a.AuctionID, "bid1", "alice", 600)

		b.Payment.Status = model.PaymentPaid
		b.Payment.PaidAmount = 600
		require.NoError(t, repo.UpdateBid(ctx, b))

		_, err = m.Cancel(ctx, a.AuctionID, "too late", baseTime.Add(2*time.Minute))
		require.ErrorIs(t, err, auctionerrors.ErrCannotCancelPaidAuction)
	})

	t.Run("closed_cannot_cancel", func(t *testing.T) {
		t.Parallel()
		m, _ := newMachine()
		a := mustCreate(t, m, validParams())
		_, err := m.Activate(ctx, a.AuctionID, baseTime.Add(time.Minute))
		require.NoError(t, err)
		_, _, err = m.Close(ctx, a.AuctionID, baseTime.Add(time.Hour))
		require.NoError(t, err)

		_, err = m.Cancel(ctx, a.AuctionID, "oops", baseTime.Add(time.Hour))
		require.ErrorIs(t, err, auctionerrors.ErrInvalidAuctionTransition)
	})
}

// Store failures wrap and propagate; no partial state is written.
func TestStateMachine_StoreFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sequence_allocation_fails", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockStore := repository.NewMockAuctionStore(ctrl)
		m := NewStateMachine(mockStore, keylock.New())

		mockStore.EXPECT().NextSequence(gomock.Any()).Return("", auctionerrors.ErrUnavailable)

		_, err := m.Create(ctx, validParams(), baseTime)
		require.ErrorIs(t, err, auctionerrors.ErrUnavailable)
	})

	t.Run("paid_check_fails_before_cancel_writes", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockStore := repository.NewMockAuctionStore(ctrl)
		m := NewStateMachine(mockStore, keylock.New())

		live := model.Auction{AuctionID: "auction1", Status: model.AuctionLive}
		mockStore.EXPECT().GetAuction(gomock.Any(), "auction1").Return(live, nil)
		mockStore.EXPECT().HasPaidBid(gomock.Any(), "auction1").Return(false, auctionerrors.ErrUnavailable)

		_, err := m.Cancel(ctx, "auction1", "reason", baseTime)
		require.ErrorIs(t, err, auctionerrors.ErrUnavailable)
	})
}
