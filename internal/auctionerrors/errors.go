package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrNoBids          = errors.New("no bids recorded for auction")
	ErrUnavailable     = errors.New("storage unavailable")
)

// Bid placement errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrStaleBid       = errors.New("bid amount no longer sufficient")
	ErrSelfBid        = errors.New("collateral owner cannot bid on own auction")
	ErrAuctionNotOpen = errors.New("auction is not open for bidding")
	ErrBidderBlocked  = errors.New("bidder has an unresolved dispute in this auction")
)

// Auction lifecycle errors
var (
	ErrInvalidAuctionTransition = errors.New("invalid auction status transition")
	ErrCannotCancelPaidAuction  = errors.New("auction with a paid bid cannot be cancelled")
)

// Dispute and payment errors
var (
	ErrDisputeAlreadyActive     = errors.New("bid already has a dispute episode")
	ErrNoActiveDispute          = errors.New("bid has no active dispute")
	ErrDisputeBlocksPayment     = errors.New("dispute blocks payment")
	ErrInvalidPaymentTransition = errors.New("invalid payment status transition")
	ErrRefundExceedsPaid        = errors.New("refund exceeds paid amount")
)

// ErrInvariant marks states that should be unreachable; it is logged and
// surfaced distinctly rather than mapped to a guard failure.
var ErrInvariant = errors.New("invariant violation")
