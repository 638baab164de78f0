package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"collateral-auction/internal/auctionerrors"
	model "collateral-auction/internal/models"
)

// AuctionStore defines durable storage for auctions, bids and their embedded
// dispute/payment state. Implementations must make AppendBid atomic with the
// leader-pointer update and UpdateAuction/UpdateBid whole-record writes, so
// the per-entity locking done above the store yields consistent reads.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	UpdateAuction(ctx context.Context, a model.Auction) error
	NextSequence(ctx context.Context) (string, error)

	// AppendBid inserts the bid and repoints the auction's cached leader to
	// it in one atomic step.
	AppendBid(ctx context.Context, b model.Bid) error
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	UpdateBid(ctx context.Context, b model.Bid) error

	// LeadingBid returns the cached leader for the auction, or ErrNoBids.
	LeadingBid(ctx context.Context, auctionID string) (model.Bid, error)
	BidsByAuction(ctx context.Context, auctionID string, newestFirst bool) ([]model.Bid, error)
	BidsByBidder(ctx context.Context, auctionID, bidderID string) ([]model.Bid, error)
	HasPaidBid(ctx context.Context, auctionID string) (bool, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore.
// It is the default backend and the substrate for tests.
type MemoryRepo struct {
	mu        sync.RWMutex
	auctions  map[string]model.Auction // key: auctionID
	bids      map[string]model.Bid     // key: bidID
	byAuction map[string][]string      // key: auctionID -> bidIDs in acceptance order
	leader    map[string]string        // key: auctionID -> leading bidID
	seq       int
}

// NewMemoryRepo creates a new in-memory store instance.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:  make(map[string]model.Auction),
		bids:      make(map[string]model.Bid),
		byAuction: make(map[string][]string),
		leader:    make(map[string]string),
	}
}

// CreateAuction inserts a new auction record.
func (r *MemoryRepo) CreateAuction(_ context.Context, a model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[a.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", a.AuctionID, auctionerrors.ErrInvariant)
	}
	r.auctions[a.AuctionID] = cloneAuction(a)
	return nil
}

// GetAuction returns the auction with the given id.
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return cloneAuction(a), nil
}

// UpdateAuction overwrites an existing auction record.
func (r *MemoryRepo) UpdateAuction(_ context.Context, a model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[a.AuctionID]; !ok {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	r.auctions[a.AuctionID] = cloneAuction(a)
	return nil
}

// NextSequence returns the next human-readable auction sequence number.
func (r *MemoryRepo) NextSequence(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("AUC-%06d", r.seq), nil
}

// AppendBid records an accepted bid and repoints the auction's leader to it.
func (r *MemoryRepo) AppendBid(_ context.Context, b model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[b.AuctionID]; !ok {
		return fmt.Errorf("append bid for auction %s: %w", b.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if _, ok := r.bids[b.BidID]; ok {
		return fmt.Errorf("append bid %s: %w", b.BidID, auctionerrors.ErrInvariant)
	}

	r.bids[b.BidID] = cloneBid(b)
	r.byAuction[b.AuctionID] = append(r.byAuction[b.AuctionID], b.BidID)
	r.leader[b.AuctionID] = b.BidID
	return nil
}

// GetBid returns the bid with the given id.
func (r *MemoryRepo) GetBid(_ context.Context, bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bids[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	return cloneBid(b), nil
}

// UpdateBid overwrites a bid's mutable state (payment, dispute, soft-delete).
func (r *MemoryRepo) UpdateBid(_ context.Context, b model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bids[b.BidID]; !ok {
		return fmt.Errorf("update bid %s: %w", b.BidID, auctionerrors.ErrBidNotFound)
	}
	r.bids[b.BidID] = cloneBid(b)
	return nil
}

// LeadingBid returns the current leader for an auction via the cached
// pointer; it never scans bid history.
func (r *MemoryRepo) LeadingBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bidID, ok := r.leader[auctionID]
	if !ok {
		return model.Bid{}, fmt.Errorf("leading bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	b, ok := r.bids[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("leading bid %s for auction %s: %w", bidID, auctionID, auctionerrors.ErrInvariant)
	}
	return cloneBid(b), nil
}

// BidsByAuction returns the auction's bids in acceptance order, oldest first
// unless newestFirst is set. Soft-deleted bids are omitted.
func (r *MemoryRepo) BidsByAuction(_ context.Context, auctionID string, newestFirst bool) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byAuction[auctionID]
	out := make([]model.Bid, 0, len(ids))
	for _, id := range ids {
		if b, ok := r.bids[id]; ok && !b.Deleted {
			out = append(out, cloneBid(b))
		}
	}
	if newestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

// BidsByBidder returns a bidder's bids within one auction, oldest first.
func (r *MemoryRepo) BidsByBidder(_ context.Context, auctionID, bidderID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Bid
	for _, id := range r.byAuction[auctionID] {
		if b, ok := r.bids[id]; ok && !b.Deleted && b.BidderID == bidderID {
			out = append(out, cloneBid(b))
		}
	}
	return out, nil
}

// HasPaidBid reports whether any bid in the auction has reached paid status
// (including bids later refunded, which were paid first).
func (r *MemoryRepo) HasPaidBid(_ context.Context, auctionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.byAuction[auctionID] {
		b, ok := r.bids[id]
		if !ok {
			continue
		}
		if b.Payment.Status == model.PaymentPaid || b.Payment.Status == model.PaymentRefunded {
			return true, nil
		}
	}
	return false, nil
}

func cloneAuction(a model.Auction) model.Auction {
	if a.ReservePrice != nil {
		v := *a.ReservePrice
		a.ReservePrice = &v
	}
	if a.WinnerID != nil {
		v := *a.WinnerID
		a.WinnerID = &v
	}
	if a.WinningAmount != nil {
		v := *a.WinningAmount
		a.WinningAmount = &v
	}
	return a
}

func cloneBid(b model.Bid) model.Bid {
	b.Payment.Refunds = append([]model.Refund(nil), b.Payment.Refunds...)
	return b
}
