// Package payment governs the payment lifecycle of a bid:
// unpaid -> pending -> paid | failed | cancelled, failed -> pending (retry),
// paid -> refunded. Entry into paid is gated on the bid's dispute state,
// re-evaluated atomically with the write.
package payment

import (
	"context"
	"fmt"

	"collateral-auction/internal/auctionerrors"
	"collateral-auction/internal/clock"
	"collateral-auction/internal/keylock"
	model "collateral-auction/internal/models"
	"collateral-auction/internal/repository"
	"collateral-auction/utils"
)

// Gate is the sole contract the payment machine holds against the dispute
// subsystem. It is consulted at the instant of the paid transition, under the
// same per-bid lock the dispute machine mutates through.
type Gate interface {
	BlocksPayment(ctx context.Context, bidID string) (bool, error)
}

// validTargets maps each payment status to the statuses reachable from it.
// refunded and cancelled are terminal.
var validTargets = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentUnpaid:  {model.PaymentPending, model.PaymentCancelled},
	model.PaymentPending: {model.PaymentPaid, model.PaymentFailed, model.PaymentCancelled},
	model.PaymentFailed:  {model.PaymentPending},
	model.PaymentPaid:    {model.PaymentRefunded},
}

func allowed(from, to model.PaymentStatus) bool {
	for _, t := range validTargets[from] {
		if t == to {
			return true
		}
	}
	return false
}

// StatusMachine owns payment transitions. The lock set must be the per-bid
// set shared with the dispute gate.
type StatusMachine struct {
	store repository.AuctionStore
	locks *keylock.KeyLock
	gate  Gate
	clock clock.Clock
}

// NewStatusMachine creates a StatusMachine.
func NewStatusMachine(store repository.AuctionStore, locks *keylock.KeyLock, gate Gate, clk clock.Clock) *StatusMachine {
	return &StatusMachine{store: store, locks: locks, gate: gate, clock: clk}
}

// Transition moves a bid's payment to target. For paid, amount is the amount
// actually settled (the bid amount when zero) and reference the provider's
// id. For refunded, amount is the refund tranche; partial refunds accumulate
// while the status stays paid, and the status flips to refunded once the
// cumulative refunds equal the paid amount.
func (m *StatusMachine) Transition(ctx context.Context, bidID string, target model.PaymentStatus, amount float64, reference string) (model.Bid, error) {
	if bidID == "" {
		return model.Bid{}, fmt.Errorf("payment: %w - empty bid ID", auctionerrors.ErrInvalidBid)
	}

	m.locks.Lock(bidID)
	defer m.locks.Unlock(bidID)

	b, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("payment: transition bid %s: %w", bidID, err)
	}
	if !allowed(b.Payment.Status, target) {
		return model.Bid{}, fmt.Errorf("payment: bid %s %s -> %s: %w", bidID, b.Payment.Status, target, auctionerrors.ErrInvalidPaymentTransition)
	}

	switch target {
	case model.PaymentPaid:
		// The gate is re-read here, inside the bid lock, so a dispute raised
		// after a successful guard check cannot slip in before the write.
		blocked, err := m.gate.BlocksPayment(ctx, bidID)
		if err != nil {
			return model.Bid{}, fmt.Errorf("payment: transition bid %s: %w", bidID, err)
		}
		if blocked {
			return model.Bid{}, fmt.Errorf("payment: bid %s: %w", bidID, auctionerrors.ErrDisputeBlocksPayment)
		}
		if amount <= 0 {
			amount = b.Amount
		}
		b.Payment.Status = model.PaymentPaid
		b.Payment.PaidAmount = amount
		if reference != "" {
			b.Payment.Reference = reference
		}

	case model.PaymentRefunded:
		if amount <= 0 {
			return model.Bid{}, fmt.Errorf("payment: %w - non-positive refund amount", auctionerrors.ErrInvalidBid)
		}
		total := b.Payment.RefundedTotal() + amount
		if total > b.Payment.PaidAmount {
			return model.Bid{}, fmt.Errorf("payment: bid %s refunded %.2f of %.2f: %w", bidID, total, b.Payment.PaidAmount, auctionerrors.ErrRefundExceedsPaid)
		}
		b.Payment.Refunds = append(b.Payment.Refunds, model.Refund{
			RefundID:  utils.GenerateID(),
			Amount:    amount,
			Reference: reference,
			CreatedAt: m.clock.Now(),
		})
		if total == b.Payment.PaidAmount {
			b.Payment.Status = model.PaymentRefunded
		}

	default:
		b.Payment.Status = target
		if reference != "" {
			b.Payment.Reference = reference
		}
	}

	if err := m.store.UpdateBid(ctx, b); err != nil {
		return model.Bid{}, fmt.Errorf("payment: transition bid %s: %w", bidID, err)
	}
	return b, nil
}

// Refund records a refund tranche against a paid bid. Equivalent to a
// transition targeting refunded.
func (m *StatusMachine) Refund(ctx context.Context, bidID string, amount float64, reference string) (model.Bid, error) {
	return m.Transition(ctx, bidID, model.PaymentRefunded, amount, reference)
}
