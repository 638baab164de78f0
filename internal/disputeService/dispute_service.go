// Package dispute tracks the dispute episode of a bid:
// none -> raised -> under_review -> resolved_valid | resolved_invalid.
// Moving into under_review (including reopening a resolved_invalid episode)
// happens only through an explicit administrative action.
package dispute

import (
	"context"
	"fmt"
	"strings"

	"collateral-auction/internal/auctionerrors"
	"collateral-auction/internal/clock"
	"collateral-auction/internal/keylock"
	model "collateral-auction/internal/models"
	"collateral-auction/internal/repository"
)

// Gate owns the dispute sub-state machine and the BlocksPayment predicate
// the payment machine consults. It shares the per-bid lock set with the
// payment machine so a raise and a payment attempt on one bid never
// interleave.
type Gate struct {
	store repository.AuctionStore
	locks *keylock.KeyLock
	clock clock.Clock
}

// NewGate creates a Gate over the given store, bid lock set and clock.
func NewGate(store repository.AuctionStore, locks *keylock.KeyLock, clk clock.Clock) *Gate {
	return &Gate{store: store, locks: locks, clock: clk}
}

// Raise opens the dispute episode on a bid. A bid carries at most one
// episode; raising on any status other than none fails.
func (g *Gate) Raise(ctx context.Context, bidID, raiserID, reason string) (model.Bid, error) {
	if bidID == "" || raiserID == "" {
		return model.Bid{}, fmt.Errorf("dispute: %w - missing bidID or raiserID", auctionerrors.ErrInvalidBid)
	}
	if strings.TrimSpace(reason) == "" {
		return model.Bid{}, fmt.Errorf("dispute: %w - empty reason", auctionerrors.ErrInvalidBid)
	}

	g.locks.Lock(bidID)
	defer g.locks.Unlock(bidID)

	b, err := g.store.GetBid(ctx, bidID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("dispute: raise on bid %s: %w", bidID, err)
	}
	if b.Dispute.Status != model.DisputeNone {
		return model.Bid{}, fmt.Errorf("dispute: bid %s already in %s: %w", bidID, b.Dispute.Status, auctionerrors.ErrDisputeAlreadyActive)
	}

	now := g.clock.Now()
	b.Dispute = model.Dispute{
		Status:   model.DisputeRaised,
		Reason:   reason,
		RaisedBy: raiserID,
		RaisedAt: &now,
	}
	if err := g.store.UpdateBid(ctx, b); err != nil {
		return model.Bid{}, fmt.Errorf("dispute: raise on bid %s: %w", bidID, err)
	}
	return b, nil
}

// Review moves a raised dispute under review, or reopens a resolved_invalid
// one. Explicit administrative action only; there are no auto-transitions.
func (g *Gate) Review(ctx context.Context, bidID, reviewerID string) (model.Bid, error) {
	if bidID == "" || reviewerID == "" {
		return model.Bid{}, fmt.Errorf("dispute: %w - missing bidID or reviewerID", auctionerrors.ErrInvalidBid)
	}

	g.locks.Lock(bidID)
	defer g.locks.Unlock(bidID)

	b, err := g.store.GetBid(ctx, bidID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("dispute: review bid %s: %w", bidID, err)
	}
	if b.Dispute.Status != model.DisputeRaised && b.Dispute.Status != model.DisputeResolvedInvalid {
		return model.Bid{}, fmt.Errorf("dispute: review bid %s in %s: %w", bidID, b.Dispute.Status, auctionerrors.ErrNoActiveDispute)
	}

	b.Dispute.Status = model.DisputeUnderReview
	b.Dispute.ResolvedBy = ""
	b.Dispute.ResolvedAt = nil
	if err := g.store.UpdateBid(ctx, b); err != nil {
		return model.Bid{}, fmt.Errorf("dispute: review bid %s: %w", bidID, err)
	}
	return b, nil
}

// Resolve closes an active dispute with one of the two terminal outcomes.
func (g *Gate) Resolve(ctx context.Context, bidID, resolverID string, outcome model.DisputeStatus, notes string) (model.Bid, error) {
	if bidID == "" || resolverID == "" {
		return model.Bid{}, fmt.Errorf("dispute: %w - missing bidID or resolverID", auctionerrors.ErrInvalidBid)
	}
	if outcome != model.DisputeResolvedValid && outcome != model.DisputeResolvedInvalid {
		return model.Bid{}, fmt.Errorf("dispute: %w - outcome %q", auctionerrors.ErrInvalidBid, outcome)
	}

	g.locks.Lock(bidID)
	defer g.locks.Unlock(bidID)

	b, err := g.store.GetBid(ctx, bidID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("dispute: resolve bid %s: %w", bidID, err)
	}
	if !b.Dispute.Status.Active() {
		return model.Bid{}, fmt.Errorf("dispute: resolve bid %s in %s: %w", bidID, b.Dispute.Status, auctionerrors.ErrNoActiveDispute)
	}

	now := g.clock.Now()
	b.Dispute.Status = outcome
	b.Dispute.ResolvedBy = resolverID
	b.Dispute.Notes = notes
	b.Dispute.ResolvedAt = &now
	if err := g.store.UpdateBid(ctx, b); err != nil {
		return model.Bid{}, fmt.Errorf("dispute: resolve bid %s: %w", bidID, err)
	}
	return b, nil
}

// BlocksPayment reports whether the bid's dispute state forbids entering
// paid: true for raised, under_review and resolved_invalid. The payment
// machine must call this at the instant of the transition, under the bid
// lock, never from a cached value.
func (g *Gate) BlocksPayment(ctx context.Context, bidID string) (bool, error) {
	b, err := g.store.GetBid(ctx, bidID)
	if err != nil {
		return false, fmt.Errorf("dispute: blocks-payment check for bid %s: %w", bidID, err)
	}
	return blocksPayment(b.Dispute.Status), nil
}

func blocksPayment(s model.DisputeStatus) bool {
	return s == model.DisputeRaised || s == model.DisputeUnderReview || s == model.DisputeResolvedInvalid
}
