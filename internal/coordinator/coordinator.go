// Package coordinator is the orchestration facade the transport layer calls.
// Each command is one logical operation: the underlying component performs
// the guarded state change under its entity lock, and the resulting event is
// emitted only after the change is durable, so no partial application is ever
// observable.
package coordinator

import (
	"context"
	"errors"

	auction "collateral-auction/internal/auctionService"
	"collateral-auction/internal/auctionerrors"
	"collateral-auction/internal/clock"
	dispute "collateral-auction/internal/disputeService"
	"collateral-auction/internal/events"
	"collateral-auction/internal/ledger"
	model "collateral-auction/internal/models"
	payment "collateral-auction/internal/paymentService"
	"collateral-auction/utils"
)

// Coordinator sequences ledger, auction, dispute and payment calls per
// incoming command and emits domain events to the sink.
type Coordinator struct {
	ledger   *ledger.Ledger
	auctions *auction.StateMachine
	disputes *dispute.Gate
	payments *payment.StatusMachine
	sink     events.Sink
	clock    clock.Clock
}

// New wires a Coordinator from its components.
func New(l *ledger.Ledger, a *auction.StateMachine, d *dispute.Gate, p *payment.StatusMachine, sink events.Sink, clk clock.Clock) *Coordinator {
	return &Coordinator{ledger: l, auctions: a, disputes: d, payments: p, sink: sink, clock: clk}
}

// PlaceBidCommand is the "place bid" input.
type PlaceBidCommand struct {
	AuctionID string
	BidderID  string
	Amount    float64
	Currency  string
}

// BidResult reports the outcome of a placement. LeaderAmount is the auction's
// leading amount after the command: the accepted amount on success, the
// amount to beat when the bid was stale.
type BidResult struct {
	Bid          model.Bid
	LeaderAmount float64
}

// PlaceBid runs the bid placement command. Guard failures come back as typed
// errors; a stale bid additionally carries the current leading amount in the
// result so the caller can tell the client what to beat.
func (c *Coordinator) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (BidResult, error) {
	if cmd.Currency == "" {
		cmd.Currency = "USD"
	}

	bid, leaderAmount, err := c.ledger.TryAppend(ctx, cmd.AuctionID, cmd.BidderID, cmd.Amount, cmd.Currency, c.clock.Now())
	if err != nil {
		if rejectionReason(err) != "" {
			c.emit(ctx, events.Event{
				Kind:      events.BidRejected,
				AuctionID: cmd.AuctionID,
				Fields: map[string]any{
					"bidder_id":     cmd.BidderID,
					"amount":        cmd.Amount,
					"reason":        rejectionReason(err),
					"leader_amount": leaderAmount,
				},
			})
		}
		return BidResult{LeaderAmount: leaderAmount}, err
	}

	c.emit(ctx, events.Event{
		Kind:      events.BidAccepted,
		AuctionID: bid.AuctionID,
		BidID:     bid.BidID,
		Fields: map[string]any{
			"bidder_id": bid.BidderID,
			"amount":    bid.Amount,
		},
	})
	return BidResult{Bid: bid, LeaderAmount: leaderAmount}, nil
}

// CreateAuction registers a new draft auction.
func (c *Coordinator) CreateAuction(ctx context.Context, p auction.CreateParams) (model.Auction, error) {
	return c.auctions.Create(ctx, p, c.clock.Now())
}

// ActivateAuction moves a draft auction to live.
func (c *Coordinator) ActivateAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	a, err := c.auctions.Activate(ctx, auctionID, c.clock.Now())
	if err != nil {
		return model.Auction{}, err
	}
	c.emit(ctx, events.Event{Kind: events.AuctionActivated, AuctionID: a.AuctionID})
	return a, nil
}

// CloseAuction closes an auction and freezes the winner. Idempotent: a retry
// returns the same winner and emits nothing.
func (c *Coordinator) CloseAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	a, closedNow, err := c.auctions.Close(ctx, auctionID, c.clock.Now())
	if err != nil {
		return model.Auction{}, err
	}
	if closedNow {
		fields := map[string]any{}
		if a.WinnerID != nil {
			fields["winner_id"] = *a.WinnerID
			fields["winning_amount"] = *a.WinningAmount
		}
		c.emit(ctx, events.Event{Kind: events.AuctionClosed, AuctionID: a.AuctionID, Fields: fields})
	}
	return a, nil
}

// CancelAuction cancels a draft or live auction with no paid bids.
func (c *Coordinator) CancelAuction(ctx context.Context, auctionID, reason string) (model.Auction, error) {
	a, err := c.auctions.Cancel(ctx, auctionID, reason, c.clock.Now())
	if err != nil {
		return model.Auction{}, err
	}
	c.emit(ctx, events.Event{
		Kind:      events.AuctionCancelled,
		AuctionID: a.AuctionID,
		Fields:    map[string]any{"reason": reason},
	})
	return a, nil
}

// RaiseDispute opens the dispute episode on a bid.
func (c *Coordinator) RaiseDispute(ctx context.Context, bidID, raiserID, reason string) (model.Bid, error) {
	b, err := c.disputes.Raise(ctx, bidID, raiserID, reason)
	if err != nil {
		return model.Bid{}, err
	}
	c.emit(ctx, events.Event{
		Kind:      events.DisputeRaised,
		AuctionID: b.AuctionID,
		BidID:     b.BidID,
		Fields:    map[string]any{"raised_by": raiserID, "reason": reason},
	})
	return b, nil
}

// ReviewDispute moves a dispute under review.
func (c *Coordinator) ReviewDispute(ctx context.Context, bidID, reviewerID string) (model.Bid, error) {
	return c.disputes.Review(ctx, bidID, reviewerID)
}

// ResolveDispute closes a dispute with resolved_valid or resolved_invalid.
func (c *Coordinator) ResolveDispute(ctx context.Context, bidID, resolverID string, outcome model.DisputeStatus, notes string) (model.Bid, error) {
	b, err := c.disputes.Resolve(ctx, bidID, resolverID, outcome, notes)
	if err != nil {
		return model.Bid{}, err
	}
	c.emit(ctx, events.Event{
		Kind:      events.DisputeResolved,
		AuctionID: b.AuctionID,
		BidID:     b.BidID,
		Fields:    map[string]any{"resolved_by": resolverID, "outcome": string(outcome)},
	})
	return b, nil
}

// UpdatePayment moves a bid's payment status.
func (c *Coordinator) UpdatePayment(ctx context.Context, bidID string, target model.PaymentStatus, amount float64, reference string) (model.Bid, error) {
	b, err := c.payments.Transition(ctx, bidID, target, amount, reference)
	if err != nil {
		return model.Bid{}, err
	}
	c.emit(ctx, events.Event{
		Kind:      events.PaymentTransitioned,
		AuctionID: b.AuctionID,
		BidID:     b.BidID,
		Fields:    map[string]any{"status": string(b.Payment.Status), "paid_amount": b.Payment.PaidAmount},
	})
	return b, nil
}

// RefundPayment records a refund tranche against a paid bid.
func (c *Coordinator) RefundPayment(ctx context.Context, bidID string, amount float64, reference string) (model.Bid, error) {
	b, err := c.payments.Refund(ctx, bidID, amount, reference)
	if err != nil {
		return model.Bid{}, err
	}
	c.emit(ctx, events.Event{
		Kind:      events.PaymentRefunded,
		AuctionID: b.AuctionID,
		BidID:     b.BidID,
		Fields: map[string]any{
			"refund_amount":  amount,
			"refunded_total": b.Payment.RefundedTotal(),
			"status":         string(b.Payment.Status),
		},
	})
	return b, nil
}

// GetAuction returns an auction by id.
func (c *Coordinator) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	return c.auctions.Get(ctx, auctionID)
}

// Leader returns the current leading bid for an auction.
func (c *Coordinator) Leader(ctx context.Context, auctionID string) (model.Bid, error) {
	return c.ledger.Leader(ctx, auctionID)
}

// History returns the auction's accepted bids in acceptance order.
func (c *Coordinator) History(ctx context.Context, auctionID string, newestFirst bool) ([]model.Bid, error) {
	return c.ledger.History(ctx, auctionID, newestFirst)
}

// emit sends an event to the sink. Delivery failures are logged, never
// surfaced: the state change has already committed and the store remains the
// system of record.
func (c *Coordinator) emit(ctx context.Context, ev events.Event) {
	ev.OccurredAt = c.clock.Now()
	if err := c.sink.Emit(ctx, ev); err != nil {
		utils.Warn("coordinator: event emission failed", map[string]any{
			"kind":       string(ev.Kind),
			"auction_id": ev.AuctionID,
			"bid_id":     ev.BidID,
			"error":      err.Error(),
		})
	}
}

// rejectionReason maps placement guard failures to the reason recorded on
// BidRejected events. Infrastructure failures return "" and emit nothing.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auctionerrors.ErrStaleBid):
		return "stale_bid"
	case errors.Is(err, auctionerrors.ErrSelfBid):
		return "self_bid"
	case errors.Is(err, auctionerrors.ErrAuctionNotOpen):
		return "auction_not_open"
	case errors.Is(err, auctionerrors.ErrBidderBlocked):
		return "bidder_blocked"
	default:
		return ""
	}
}
