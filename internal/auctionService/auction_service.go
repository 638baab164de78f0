// Package auction governs the auction status lifecycle:
// draft -> live -> closed, with cancelled reachable from draft or live while
// no bid has been paid. closed and cancelled are terminal.
package auction

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

// StateMachine owns auction status transitions. It shares the per-auction
// lock set with the bid ledger, so a close command and an in-flight bid on
// the same auction serialize; different auctions never contend.
type StateMachine struct {
	store repository.AuctionStore
	locks *keylock.KeyLock
}

// NewStateMachine creates a StateMachine over the given store and lock set.
func NewStateMachine(store repository.AuctionStore, locks *keylock.KeyLock) *StateMachine {
	return &StateMachine{store: store, locks: locks}
}

// CreateParams holds the attributes of a new auction.
type CreateParams struct {
	CollateralID string
	OwnerID      string
	StartingBid  float64
	ReservePrice *float64
	Kind         model.AuctionKind
	StartsAt     time.Time
	EndsAt       time.Time
}

// Create registers a new auction in draft status.
func (m *StateMachine) Create(ctx context.Context, p CreateParams, now time.Time) (model.Auction, error) {
	if p.CollateralID == "" || p.OwnerID == "" {
		return model.Auction{}, fmt.Errorf("auction: %w - missing collateral or owner", auctionerrors.ErrInvalidBid)
	}
	if p.StartingBid <= 0 {
		return model.Auction{}, fmt.Errorf("auction: %w - non-positive starting bid", auctionerrors.ErrInvalidBid)
	}
	if p.ReservePrice != nil && *p.ReservePrice < p.StartingBid {
		return model.Auction{}, fmt.Errorf("auction: %w - reserve below starting bid", auctionerrors.ErrInvalidBid)
	}
	if p.Kind != model.KindOnline && p.Kind != model.KindInPerson {
		return model.Auction{}, fmt.Errorf("auction: %w - unknown kind %q", auctionerrors.ErrInvalidBid, p.Kind)
	}
	if !p.EndsAt.After(p.StartsAt) {
		return model.Auction{}, fmt.Errorf("auction: %w - ends_at not after starts_at", auctionerrors.ErrInvalidBid)
	}

	seq, err := m.store.NextSequence(ctx)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction: allocate sequence: %w", err)
	}

	a := model.Auction{
		AuctionID:    utils.GenerateID(),
		Sequence:     seq,
		CollateralID: p.CollateralID,
		OwnerID:      p.OwnerID,
		StartingBid:  p.StartingBid,
		ReservePrice: p.ReservePrice,
		Kind:         p.Kind,
		StartsAt:     p.StartsAt,
		EndsAt:       p.EndsAt,
		Status:       model.AuctionDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("auction: create %s: %w", a.AuctionID, err)
	}
	return a, nil
}

// Activate moves a draft auction to live. The current time must fall inside
// the scheduled window.
func (m *StateMachine) Activate(ctx context.Context, auctionID string, now time.Time) (model.Auction, error) {
	m.locks.Lock(auctionID)
	defer m.locks.Unlock(auctionID)

	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction: activate %s: %w", auctionID, err)
	}
	if a.Status != model.AuctionDraft {
		return model.Auction{}, fmt.Errorf("auction: activate %s from %s: %w", auctionID, a.Status, auctionerrors.ErrInvalidAuctionTransition)
	}
	if now.Before(a.StartsAt) || !now.Before(a.EndsAt) {
		return model.Auction{}, fmt.Errorf("auction: %s outside scheduled window: %w", auctionID, auctionerrors.ErrAuctionNotOpen)
	}

	a.Status = model.AuctionLive
	a.UpdatedAt = now
	if err := m.store.UpdateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("auction: activate %s: %w", auctionID, err)
	}
	return a, nil
}

// Close moves a live auction to closed and freezes the current leader into
// winner/winning_amount. Closing an already-closed auction returns the
// existing result without mutating anything, so a scheduler tick and a manual
// close racing each other converge on one winner. The second return reports
// whether this call performed the close.
func (m *StateMachine) Close(ctx context.Context, auctionID string, now time.Time) (model.Auction, bool, error) {
	m.locks.Lock(auctionID)
	defer m.locks.Unlock(auctionID)

	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, false, fmt.Errorf("auction: close %s: %w", auctionID, err)
	}

	switch a.Status {
	case model.AuctionClosed:
		return a, false, nil
	case model.AuctionLive:
		// first close proceeds below
	default:
		return model.Auction{}, false, fmt.Errorf("auction: close %s from %s: %w", auctionID, a.Status, auctionerrors.ErrInvalidAuctionTransition)
	}

	leader, err := m.store.LeadingBid(ctx, auctionID)
	switch {
	case errors.Is(err, auctionerrors.ErrNoBids):
		// closes with no winner
	case err != nil:
		return model.Auction{}, false, fmt.Errorf("auction: close %s: %w", auctionID, err)
	case a.ReservePrice != nil && leader.Amount < *a.ReservePrice:
		// reserve not met: the leader is not frozen in
	default:
		winner := leader.BidderID
		amount := leader.Amount
		a.WinnerID = &winner
		a.WinningAmount = &amount
	}

	a.Status = model.AuctionClosed
	a.UpdatedAt = now
	if err := m.store.UpdateAuction(ctx, a); err != nil {
		return model.Auction{}, false, fmt.Errorf("auction: close %s: %w", auctionID, err)
	}
	return a, true, nil
}

// Cancel moves a draft or live auction to cancelled. It fails with
// ErrCannotCancelPaidAuction once any bid's payment has reached paid.
func (m *StateMachine) Cancel(ctx context.Context, auctionID, reason string, now time.Time) (model.Auction, error) {
	m.locks.Lock(auctionID)
	defer m.locks.Unlock(auctionID)

	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction: cancel %s: %w", auctionID, err)
	}
	if a.Status != model.AuctionDraft && a.Status != model.AuctionLive {
		return model.Auction{}, fmt.Errorf("auction: cancel %s from %s: %w", auctionID, a.Status, auctionerrors.ErrInvalidAuctionTransition)
	}

	paid, err := m.store.HasPaidBid(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction: cancel %s: %w", auctionID, err)
	}
	if paid {
		return model.Auction{}, fmt.Errorf("auction: cancel %s: %w", auctionID, auctionerrors.ErrCannotCancelPaidAuction)
	}

	a.Status = model.AuctionCancelled
	a.CancelReason = reason
	a.UpdatedAt = now
	if err := m.store.UpdateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("auction: cancel %s: %w", auctionID, err)
	}
	return a, nil
}

// Get returns the auction with the given id.
func (m *StateMachine) Get(ctx context.Context, auctionID string) (model.Auction, error) {
	a, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("auction: get %s: %w", auctionID, err)
	}
	return a, nil
}
