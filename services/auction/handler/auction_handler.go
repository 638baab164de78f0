package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	auction "collateral-auction/internal/auctionService"
	"collateral-auction/internal/coordinator"
	model "collateral-auction/internal/models"
	"collateral-auction/services/auction/helpers"
	"collateral-auction/utils"

	"github.com/gin-gonic/gin"
)

// CoordinatorInterface is the command surface the handlers drive. Implemented
// by coordinator.Coordinator; mocked in handler tests.
type CoordinatorInterface interface {
	CreateAuction(ctx context.Context, p auction.CreateParams) (model.Auction, error)
	ActivateAuction(ctx context.Context, auctionID string) (model.Auction, error)
	CloseAuction(ctx context.Context, auctionID string) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID, reason string) (model.Auction, error)
	PlaceBid(ctx context.Context, cmd coordinator.PlaceBidCommand) (coordinator.BidResult, error)
	RaiseDispute(ctx context.Context, bidID, raiserID, reason string) (model.Bid, error)
	ReviewDispute(ctx context.Context, bidID, reviewerID string) (model.Bid, error)
	ResolveDispute(ctx context.Context, bidID, resolverID string, outcome model.DisputeStatus, notes string) (model.Bid, error)
	UpdatePayment(ctx context.Context, bidID string, target model.PaymentStatus, amount float64, reference string) (model.Bid, error)
	RefundPayment(ctx context.Context, bidID string, amount float64, reference string) (model.Bid, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	Leader(ctx context.Context, auctionID string) (model.Bid, error)
	History(ctx context.Context, auctionID string, newestFirst bool) ([]model.Bid, error)
}

type AuctionHandler struct {
	coord CoordinatorInterface
}

func NewAuctionHandler(coord CoordinatorInterface) *AuctionHandler {
	return &AuctionHandler{coord: coord}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", fmt.Errorf("starts_at: %w", err))
		return
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", fmt.Errorf("ends_at: %w", err))
		return
	}

	a, err := h.coord.CreateAuction(c.Request.Context(), auction.CreateParams{
		CollateralID: req.CollateralID,
		OwnerID:      req.OwnerID,
		StartingBid:  req.StartingBid,
		ReservePrice: req.ReservePrice,
		Kind:         model.AuctionKind(req.Kind),
		StartsAt:     startsAt,
		EndsAt:       endsAt,
	})
	if err != nil {
		h.fail(c, "CreateAuctionHandler", err, map[string]any{"collateral_id": req.CollateralID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(a), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": a.AuctionID,
		"sequence":   a.Sequence,
	})
}

// ActivateAuctionHandler handles POST /auctions/:auction_id/activate
func (h *AuctionHandler) ActivateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.coord.ActivateAuction(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, "ActivateAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction activated successfully")
	helpers.LogSuccess("ActivateAuctionHandler", "auction activated successfully", map[string]any{"auction_id": auctionID})
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.coord.CloseAuction(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, "CloseAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction closed successfully")
	ctx := map[string]any{"auction_id": auctionID}
	if a.WinnerID != nil {
		ctx["winner_id"] = *a.WinnerID
		ctx["winning_amount"] = *a.WinningAmount
	}
	helpers.LogSuccess("CloseAuctionHandler", "auction closed successfully", ctx)
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	var req helpers.CancelAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CancelAuctionHandler", err)
		return
	}

	a, err := h.coord.CancelAuction(c.Request.Context(), auctionID, req.Reason)
	if err != nil {
		h.fail(c, "CancelAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled successfully", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.coord.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction retrieved successfully")
}

// PlaceBidHandler handles POST /bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	res, err := h.coord.PlaceBid(c.Request.Context(), coordinator.PlaceBidCommand{
		AuctionID: req.AuctionID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		// A stale bid tells the client what to beat.
		if res.LeaderAmount > 0 {
			message = fmt.Sprintf("%s; current leading amount is %.2f", message, res.LeaderAmount)
		}
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"amount":     req.Amount,
			"error":      err.Error(),
		})
		return
	}

	resp := helpers.PlaceBidResponse{
		Bid:          helpers.ToBidResponse(res.Bid),
		LeaderAmount: res.LeaderAmount,
	}
	utils.JSONResponse(c, http.StatusCreated, resp, "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     res.Bid.BidID,
		"auction_id": res.Bid.AuctionID,
		"bidder_id":  res.Bid.BidderID,
		"amount":     res.Bid.Amount,
	})
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	newestFirst := c.Query("order") == "desc"

	bids, err := h.coord.History(c.Request.Context(), auctionID, newestFirst)
	if err != nil {
		h.fail(c, "GetBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetLeaderHandler handles GET /auctions/:auction_id/leader
func (h *AuctionHandler) GetLeaderHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.coord.Leader(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, "GetLeaderHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "leading bid retrieved successfully")
}

// RaiseDisputeHandler handles POST /bids/:bid_id/dispute
func (h *AuctionHandler) RaiseDisputeHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	var req helpers.RaiseDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RaiseDisputeHandler", err)
		return
	}

	b, err := h.coord.RaiseDispute(c.Request.Context(), bidID, req.RaiserID, req.Reason)
	if err != nil {
		h.fail(c, "RaiseDisputeHandler", err, map[string]any{"bid_id": bidID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(b), "dispute raised successfully")
	helpers.LogSuccess("RaiseDisputeHandler", "dispute raised successfully", map[string]any{
		"bid_id":    bidID,
		"raised_by": req.RaiserID,
	})
}

// ReviewDisputeHandler handles POST /bids/:bid_id/dispute/review
func (h *AuctionHandler) ReviewDisputeHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	var req helpers.ReviewDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ReviewDisputeHandler", err)
		return
	}

	b, err := h.coord.ReviewDispute(c.Request.Context(), bidID, req.ReviewerID)
	if err != nil {
		h.fail(c, "ReviewDisputeHandler", err, map[string]any{"bid_id": bidID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(b), "dispute moved under review")
}

// ResolveDisputeHandler handles POST /bids/:bid_id/dispute/resolve
func (h *AuctionHandler) ResolveDisputeHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	var req helpers.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ResolveDisputeHandler", err)
		return
	}

	b, err := h.coord.ResolveDispute(c.Request.Context(), bidID, req.ResolverID, model.DisputeStatus(req.Outcome), req.Notes)
	if err != nil {
		h.fail(c, "ResolveDisputeHandler", err, map[string]any{"bid_id": bidID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(b), "dispute resolved successfully")
	helpers.LogSuccess("ResolveDisputeHandler", "dispute resolved successfully", map[string]any{
		"bid_id":  bidID,
		"outcome": req.Outcome,
	})
}

// UpdatePaymentHandler handles POST /bids/:bid_id/payment
func (h *AuctionHandler) UpdatePaymentHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	var req helpers.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdatePaymentHandler", err)
		return
	}

	b, err := h.coord.UpdatePayment(c.Request.Context(), bidID, model.PaymentStatus(req.Status), req.Amount, req.Reference)
	if err != nil {
		h.fail(c, "UpdatePaymentHandler", err, map[string]any{"bid_id": bidID, "target": req.Status})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(b), "payment updated successfully")
	helpers.LogSuccess("UpdatePaymentHandler", "payment updated successfully", map[string]any{
		"bid_id": bidID,
		"status": string(b.Payment.Status),
	})
}

// RefundPaymentHandler handles POST /bids/:bid_id/refund
func (h *AuctionHandler) RefundPaymentHandler(c *gin.Context) {
	bidID := c.Param("bid_id")
	var req helpers.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RefundPaymentHandler", err)
		return
	}

	b, err := h.coord.RefundPayment(c.Request.Context(), bidID, req.Amount, req.Reference)
	if err != nil {
		h.fail(c, "RefundPaymentHandler", err, map[string]any{"bid_id": bidID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(b), "refund recorded successfully")
	helpers.LogSuccess("RefundPaymentHandler", "refund recorded successfully", map[string]any{
		"bid_id": bidID,
		"amount": req.Amount,
	})
}

// fail maps a domain error onto the response and logs it.
func (h *AuctionHandler) fail(c *gin.Context, handlerName string, err error, ctx map[string]any) {
	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	ctx["error"] = err.Error()
	utils.Warn(handlerName+": request failed", ctx)
}
