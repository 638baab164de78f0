package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"collateral-auction/internal/auctionerrors"
	model "collateral-auction/internal/models"
)

// Helper to create a new Auction in the given status
func newAuction(auctionID, ownerID string, startingBid float64, status model.AuctionStatus) model.Auction {
	now := time.Now().UTC()
	return model.Auction{
		AuctionID:    auctionID,
		Sequence:     "AUC-000001",
		CollateralID: "collateral-" + auctionID,
		OwnerID:      ownerID,
		StartingBid:  startingBid,
		Kind:         model.KindOnline,
		StartsAt:     now,
		EndsAt:       now.Add(time.Hour),
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Helper to create a new Bid
func newBid(bidID, auctionID, bidderID string, amount float64) model.Bid {
	return model.NewBid(bidID, auctionID, bidderID, amount, "USD", time.Now().UTC())
}

func TestMemoryRepo_CreateAndGetAuction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	a := newAuction("auction1", "owner1", 500, model.AuctionDraft)

	require.NoError(t, repo.CreateAuction(ctx, a))

	got, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, a, got)

	// duplicate ids are rejected
	require.Error(t, repo.CreateAuction(ctx, a))

	_, err = repo.GetAuction(ctx, "missing")
	require.ErrorIs(t, err, auctionerrors.ErrAuctionNotFound)
}

func TestMemoryRepo_UpdateAuction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	a := newAuction("auction1", "owner1", 500, model.AuctionDraft)
	require.NoError(t, repo.CreateAuction(ctx, a))

	a.Status = model.AuctionLive
	require.NoError(t, repo.UpdateAuction(ctx, a))

	got, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, model.AuctionLive, got.Status)

	missing := newAuction("ghost", "owner1", 500, model.AuctionDraft)
	require.ErrorIs(t, repo.UpdateAuction(ctx, missing), auctionerrors.ErrAuctionNotFound)
}

func TestMemoryRepo_NextSequence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	first, err := repo.NextSequence(ctx)
	require.NoError(t, err)
	second, err := repo.NextSequence(ctx)
	require.NoError(t, err)

	require.Equal(t, "AUC-000001", first)
	require.Equal(t, "AUC-000002", second)
}

// AppendBid must insert the bid and repoint the leader in one step.
func TestMemoryRepo_AppendBidMovesLeader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", "owner1", 500, model.AuctionLive)))

	_, err := repo.LeadingBid(ctx, "auction1")
	require.ErrorIs(t, err, auctionerrors.ErrNoBids)

	b1 := newBid("bid1", "auction1", "alice", 600)
	require.NoError(t, repo.AppendBid(ctx, b1))

	leader, err := repo.LeadingBid(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, "bid1", leader.BidID)

	b2 := newBid("bid2", "auction1", "bob", 650)
	require.NoError(t, repo.AppendBid(ctx, b2))

	leader, err = repo.LeadingBid(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, "bid2", leader.BidID)
	require.Equal(t, 650.0, leader.Amount)

	// unknown auction
	require.ErrorIs(t, repo.AppendBid(ctx, newBid("bid3", "ghost", "carol", 700)), auctionerrors.ErrAuctionNotFound)
	// duplicate bid id
	require.Error(t, repo.AppendBid(ctx, b1))
}

func TestMemoryRepo_BidsByAuctionOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", "owner1", 500, model.AuctionLive)))

	for i, id := range []string{"bid1", "bid2", "bid3"} {
		require.NoError(t, repo.AppendBid(ctx, newBid(id, "auction1", "alice", float64(600+i*50))))
	}

	oldest, err := repo.BidsByAuction(ctx, "auction1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"bid1", "bid2", "bid3"}, bidIDs(oldest))

	newest, err := repo.BidsByAuction(ctx, "auction1", true)
	require.NoError(t, err)
	require.Equal(t, []string{"bid3", "bid2", "bid1"}, bidIDs(newest))

	// soft-deleted bids are omitted
	b, err := repo.GetBid(ctx, "bid2")
	require.NoError(t, err)
	b.Deleted = true
	require.NoError(t, repo.UpdateBid(ctx, b))

	remaining, err := repo.BidsByAuction(ctx, "auction1", false)
	require.NoError(t, err)
	require.Equal(t, []string{"bid1", "bid3"}, bidIDs(remaining))
}

func TestMemoryRepo_BidsByBidder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", "owner1", 500, model.AuctionLive)))
	require.NoError(t, repo.AppendBid(ctx, newBid("bid1", "auction1", "alice", 600)))
	require.NoError(t, repo.AppendBid(ctx, newBid("bid2", "auction1", "bob", 650)))
	require.NoError(t, repo.AppendBid(ctx, newBid("bid3", "auction1", "alice", 700)))

	mine, err := repo.BidsByBidder(ctx, "auction1", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"bid1", "bid3"}, bidIDs(mine))

	none, err := repo.BidsByBidder(ctx, "auction1", "carol")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMemoryRepo_UpdateBidAndHasPaidBid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", "owner1", 500, model.AuctionLive)))
	require.NoError(t, repo.AppendBid(ctx, newBid("bid1", "auction1", "alice", 600)))

	paid, err := repo.HasPaidBid(ctx, "auction1")
	require.NoError(t, err)
	require.False(t, paid)

	b, err := repo.GetBid(ctx, "bid1")
	require.NoError(t, err)
	b.Payment.Status = model.PaymentPaid
	b.Payment.PaidAmount = 600
	require.NoError(t, repo.UpdateBid(ctx, b))

	paid, err = repo.HasPaidBid(ctx, "auction1")
	require.NoError(t, err)
	require.True(t, paid)

	// a refunded bid was paid first and still pins the auction
	b.Payment.Status = model.PaymentRefunded
	require.NoError(t, repo.UpdateBid(ctx, b))
	paid, err = repo.HasPaidBid(ctx, "auction1")
	require.NoError(t, err)
	require.True(t, paid)

	ghost := newBid("ghost", "auction1", "alice", 1)
	require.ErrorIs(t, repo.UpdateBid(ctx, ghost), auctionerrors.ErrBidNotFound)
}

// Stored records must not alias caller memory.
func TestMemoryRepo_CopiesRefunds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", "owner1", 500, model.AuctionLive)))

	b := newBid("bid1", "auction1", "alice", 600)
	b.Payment.Refunds = []model.Refund{{RefundID: "r1", Amount: 100}}
	require.NoError(t, repo.AppendBid(ctx, b))

	b.Payment.Refunds[0].Amount = 999

	got, err := repo.GetBid(ctx, "bid1")
	require.NoError(t, err)
	require.Equal(t, 100.0, got.Payment.Refunds[0].Amount)
}

// concurrency test
func TestMemoryRepo_ConcurrentAppends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1", "owner1", 500, model.AuctionLive)))

	var wg sync.WaitGroup
	concurrentCount := 50
	for i := 0; i < concurrentCount; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			b := newBid(fmt.Sprintf("bid-%d", i), "auction1", fmt.Sprintf("user-%d", i), float64(600+i))
			require.NoError(t, repo.AppendBid(ctx, b))
		}()
	}
	wg.Wait()

	bids, err := repo.BidsByAuction(ctx, "auction1", false)
	require.NoError(t, err)
	require.Len(t, bids, concurrentCount)

	// leader points at some appended bid, never dangles
	leader, err := repo.LeadingBid(ctx, "auction1")
	require.NoError(t, err)
	require.Contains(t, bidIDs(bids), leader.BidID)
}

func bidIDs(bids []model.Bid) []string {
	ids := make([]string, 0, len(bids))
	for _, b := range bids {
		ids = append(ids, b.BidID)
	}
	return ids
}
