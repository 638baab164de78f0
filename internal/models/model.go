package models

import "time"

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "draft"
	AuctionLive      AuctionStatus = "live"
	AuctionClosed    AuctionStatus = "closed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether no further auction transitions are possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionClosed || s == AuctionCancelled
}

// AuctionKind distinguishes online auctions from in-person ones.
type AuctionKind string

const (
	KindOnline   AuctionKind = "online"
	KindInPerson AuctionKind = "in_person"
)

// PaymentStatus is the payment lifecycle state of a bid.
type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// DisputeStatus is the dispute sub-state of a bid. A bid carries at most one
// dispute episode; "none" means no dispute was ever raised.
type DisputeStatus string

const (
	DisputeNone            DisputeStatus = "none"
	DisputeRaised          DisputeStatus = "raised"
	DisputeUnderReview     DisputeStatus = "under_review"
	DisputeResolvedValid   DisputeStatus = "resolved_valid"
	DisputeResolvedInvalid DisputeStatus = "resolved_invalid"
)

// Active reports whether the dispute is still awaiting a resolution.
func (s DisputeStatus) Active() bool {
	return s == DisputeRaised || s == DisputeUnderReview
}

// Auction represents a timed sale of one piece of collateral.
type Auction struct {
	AuctionID     string        `json:"auction_id"`
	Sequence      string        `json:"sequence"`
	CollateralID  string        `json:"collateral_id"`
	OwnerID       string        `json:"owner_id"`
	StartingBid   float64       `json:"starting_bid"`
	ReservePrice  *float64      `json:"reserve_price,omitempty"`
	Kind          AuctionKind   `json:"kind"`
	StartsAt      time.Time     `json:"starts_at"`
	EndsAt        time.Time     `json:"ends_at"`
	Status        AuctionStatus `json:"status"`
	WinnerID      *string       `json:"winner_id,omitempty"`
	WinningAmount *float64      `json:"winning_amount,omitempty"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Bid represents an accepted offer against a live auction. Amount, bidder and
// auction are immutable after acceptance; payment and dispute mutate in place.
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	PlacedAt  time.Time `json:"placed_at"`
	Payment   Payment   `json:"payment"`
	Dispute   Dispute   `json:"dispute"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Dispute is the single dispute episode embedded in a bid.
type Dispute struct {
	Status     DisputeStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	RaisedBy   string        `json:"raised_by,omitempty"`
	ResolvedBy string        `json:"resolved_by,omitempty"`
	Notes      string        `json:"notes,omitempty"`
	RaisedAt   *time.Time    `json:"raised_at,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// Payment tracks the payment lifecycle of a bid, including partial refunds.
type Payment struct {
	Status     PaymentStatus `json:"status"`
	PaidAmount float64       `json:"paid_amount"`
	Reference  string        `json:"reference,omitempty"`
	Refunds    []Refund      `json:"refunds,omitempty"`
}

// RefundedTotal returns the cumulative amount refunded so far.
func (p Payment) RefundedTotal() float64 {
	var total float64
	for _, r := range p.Refunds {
		total += r.Amount
	}
	return total
}

// Refund is a single refund record against a paid bid.
type Refund struct {
	RefundID  string    `json:"refund_id"`
	Amount    float64   `json:"amount"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBid returns a Bid in its initial payment/dispute state.
func NewBid(bidID, auctionID, bidderID string, amount float64, currency string, placedAt time.Time) Bid {
	return Bid{
		BidID:     bidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Currency:  currency,
		PlacedAt:  placedAt,
		Payment:   Payment{Status: PaymentUnpaid},
		Dispute:   Dispute{Status: DisputeNone},
	}
}
