// Package ledger maintains the per-auction append-only record of accepted
// bids and the single current leader. The leader is a pointer updated
// atomically with each accepted bid, never recomputed by scanning history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collateral-auction/internal/auctionerrors"
	"collateral-auction/internal/keylock"
	model "collateral-auction/internal/models"
	"collateral-auction/internal/repository"
	"collateral-auction/utils"
)

// Ledger serializes bid acceptance per auction. Two bids racing for the same
// auction take the same lock; bids on different auctions never contend.
type Ledger struct {
	store repository.AuctionStore
	locks *keylock.KeyLock
}

// New creates a Ledger. The lock set must be shared with the auction state
// machine so closing an auction serializes against in-flight bids.
func New(store repository.AuctionStore, locks *keylock.KeyLock) *Ledger {
	return &Ledger{store: store, locks: locks}
}

// TryAppend validates and records a bid. On success it returns the new bid
// and the new leading amount. On ErrStaleBid the returned amount is the
// current leader, so the caller can tell the client what to beat.
func (l *Ledger) TryAppend(ctx context.Context, auctionID, bidderID string, amount float64, currency string, now time.Time) (model.Bid, float64, error) {
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, 0, fmt.Errorf("ledger: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return model.Bid{}, 0, fmt.Errorf("ledger: %w - non-positive bid amount", auctionerrors.ErrInvalidBid)
	}

	l.locks.Lock(auctionID)
	defer l.locks.Unlock(auctionID)

	auction, err := l.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Bid{}, 0, fmt.Errorf("ledger: resolve auction %s: %w", auctionID, err)
	}

	if auction.Status != model.AuctionLive || now.Before(auction.StartsAt) || !now.Before(auction.EndsAt) {
		return model.Bid{}, 0, fmt.Errorf("ledger: auction %s status %s: %w", auctionID, auction.Status, auctionerrors.ErrAuctionNotOpen)
	}
	if bidderID == auction.OwnerID {
		return model.Bid{}, 0, fmt.Errorf("ledger: bidder %s owns the collateral: %w", bidderID, auctionerrors.ErrSelfBid)
	}

	blocked, err := l.bidderBlocked(ctx, auctionID, bidderID)
	if err != nil {
		return model.Bid{}, 0, err
	}
	if blocked {
		return model.Bid{}, 0, fmt.Errorf("ledger: bidder %s in auction %s: %w", bidderID, auctionID, auctionerrors.ErrBidderBlocked)
	}

	leaderAmount, err := l.currentLeaderAmount(ctx, auction)
	if err != nil {
		return model.Bid{}, 0, err
	}
	// Strict increase: a tie loses to the bid already appended.
	if amount <= leaderAmount {
		return model.Bid{}, leaderAmount, fmt.Errorf("ledger: current leading amount is %.2f: %w", leaderAmount, auctionerrors.ErrStaleBid)
	}

	bid := model.NewBid(utils.GenerateID(), auctionID, bidderID, amount, currency, now)
	if err := l.store.AppendBid(ctx, bid); err != nil {
		return model.Bid{}, 0, fmt.Errorf("ledger: append bid for auction %s by %s: %w", auctionID, bidderID, err)
	}

	return bid, amount, nil
}

// Leader returns the current leading bid for an auction, or ErrNoBids.
func (l *Ledger) Leader(ctx context.Context, auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("ledger: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}
	if _, err := l.store.GetAuction(ctx, auctionID); err != nil {
		return model.Bid{}, fmt.Errorf("ledger: resolve auction %s: %w", auctionID, err)
	}
	bid, err := l.store.LeadingBid(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("ledger: leader for auction %s: %w", auctionID, err)
	}
	return bid, nil
}

// History returns the auction's accepted bids in acceptance order, oldest
// first unless newestFirst is set. The snapshot is finite and the call is
// restartable; callers iterate it freely.
func (l *Ledger) History(ctx context.Context, auctionID string, newestFirst bool) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("ledger: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}
	if _, err := l.store.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("ledger: resolve auction %s: %w", auctionID, err)
	}
	bids, err := l.store.BidsByAuction(ctx, auctionID, newestFirst)
	if err != nil {
		return nil, fmt.Errorf("ledger: history for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// currentLeaderAmount is the greater of the starting bid and the most
// recently accepted amount. Accepted amounts only grow, so the cached leader
// is always the maximum.
func (l *Ledger) currentLeaderAmount(ctx context.Context, auction model.Auction) (float64, error) {
	leader, err := l.store.LeadingBid(ctx, auction.AuctionID)
	if errors.Is(err, auctionerrors.ErrNoBids) {
		return auction.StartingBid, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: leading bid for auction %s: %w", auction.AuctionID, err)
	}
	if leader.Amount > auction.StartingBid {
		return leader.Amount, nil
	}
	return auction.StartingBid, nil
}

// bidderBlocked reports whether the bidder has an unresolved dispute on a
// prior bid in this auction.
func (l *Ledger) bidderBlocked(ctx context.Context, auctionID, bidderID string) (bool, error) {
	prior, err := l.store.BidsByBidder(ctx, auctionID, bidderID)
	if err != nil {
		return false, fmt.Errorf("ledger: prior bids for %s in auction %s: %w", bidderID, auctionID, err)
	}
	for _, b := range prior {
		if b.Dispute.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}
