package helpers

import (
	"time"

	model "collateral-auction/internal/models"
)

// Request DTOs
type CreateAuctionRequest struct {
	CollateralID string   `json:"collateral_id" binding:"required"`
	OwnerID      string   `json:"owner_id" binding:"required"`
	StartingBid  float64  `json:"starting_bid" binding:"required,gt=0"`
	ReservePrice *float64 `json:"reserve_price,omitempty"`
	Kind         string   `json:"kind" binding:"required,oneof=online in_person"`
	StartsAt     string   `json:"starts_at" binding:"required"`
	EndsAt       string   `json:"ends_at" binding:"required"`
}

type PlaceBidRequest struct {
	AuctionID string  `json:"auction_id" binding:"required"`
	BidderID  string  `json:"bidder_id" binding:"required"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	Currency  string  `json:"currency,omitempty"`
}

type CancelAuctionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type RaiseDisputeRequest struct {
	RaiserID string `json:"raiser_id" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

type ReviewDisputeRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

type ResolveDisputeRequest struct {
	ResolverID string `json:"resolver_id" binding:"required"`
	Outcome    string `json:"outcome" binding:"required,oneof=resolved_valid resolved_invalid"`
	Notes      string `json:"notes,omitempty"`
}

type UpdatePaymentRequest struct {
	Status    string  `json:"status" binding:"required"`
	Amount    float64 `json:"amount,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

type RefundRequest struct {
	Amount    float64 `json:"amount" binding:"required,gt=0"`
	Reference string  `json:"reference,omitempty"`
}

// Response DTOs
type AuctionResponse struct {
	AuctionID     string   `json:"auction_id"`
	Sequence      string   `json:"sequence"`
	CollateralID  string   `json:"collateral_id"`
	OwnerID       string   `json:"owner_id"`
	StartingBid   float64  `json:"starting_bid"`
	ReservePrice  *float64 `json:"reserve_price,omitempty"`
	Kind          string   `json:"kind"`
	StartsAt      string   `json:"starts_at"`
	EndsAt        string   `json:"ends_at"`
	Status        string   `json:"status"`
	WinnerID      *string  `json:"winner_id,omitempty"`
	WinningAmount *float64 `json:"winning_amount,omitempty"`
	CancelReason  string   `json:"cancel_reason,omitempty"`
}

type BidResponse struct {
	BidID         string  `json:"bid_id"`
	AuctionID     string  `json:"auction_id"`
	BidderID      string  `json:"bidder_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PlacedAt      string  `json:"placed_at"`
	PaymentStatus string  `json:"payment_status"`
	PaidAmount    float64 `json:"paid_amount,omitempty"`
	RefundedTotal float64 `json:"refunded_total,omitempty"`
	DisputeStatus string  `json:"dispute_status"`
}

type PlaceBidResponse struct {
	Bid          BidResponse `json:"bid"`
	LeaderAmount float64     `json:"leader_amount"`
}

// ToAuctionResponse maps an auction entity to its transport shape.
func ToAuctionResponse(a model.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:     a.AuctionID,
		Sequence:      a.Sequence,
		CollateralID:  a.CollateralID,
		OwnerID:       a.OwnerID,
		StartingBid:   a.StartingBid,
		ReservePrice:  a.ReservePrice,
		Kind:          string(a.Kind),
		StartsAt:      a.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:        a.EndsAt.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		WinnerID:      a.WinnerID,
		WinningAmount: a.WinningAmount,
		CancelReason:  a.CancelReason,
	}
}

// ToBidResponse maps a bid entity to its transport shape.
func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:         b.BidID,
		AuctionID:     b.AuctionID,
		BidderID:      b.BidderID,
		Amount:        b.Amount,
		Currency:      b.Currency,
		PlacedAt:      b.PlacedAt.UTC().Format(time.RFC3339),
		PaymentStatus: string(b.Payment.Status),
		PaidAmount:    b.Payment.PaidAmount,
		RefundedTotal: b.Payment.RefundedTotal(),
		DisputeStatus: string(b.Dispute.Status),
	}
}

// ToBidResponses maps a slice of bids.
func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}
