package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"collateral-auction/internal/auctionerrors"
	"collateral-auction/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, auctionerrors.ErrNoBids):
		return http.StatusNotFound, "no bids recorded for auction"
	case errors.Is(err, auctionerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid request details"
	case errors.Is(err, auctionerrors.ErrStaleBid):
		return http.StatusConflict, "bid amount no longer sufficient"
	case errors.Is(err, auctionerrors.ErrSelfBid):
		return http.StatusForbidden, "collateral owner cannot bid"
	case errors.Is(err, auctionerrors.ErrBidderBlocked):
		return http.StatusForbidden, "bidder blocked by unresolved dispute"
	case errors.Is(err, auctionerrors.ErrAuctionNotOpen):
		return http.StatusConflict, "auction is not open for bidding"
	case errors.Is(err, auctionerrors.ErrInvalidAuctionTransition):
		return http.StatusConflict, "invalid auction status transition"
	case errors.Is(err, auctionerrors.ErrCannotCancelPaidAuction):
		return http.StatusConflict, "auction has a paid bid and cannot be cancelled"
	case errors.Is(err, auctionerrors.ErrDisputeAlreadyActive):
		return http.StatusConflict, "bid already has a dispute episode"
	case errors.Is(err, auctionerrors.ErrNoActiveDispute):
		return http.StatusConflict, "bid has no active dispute"
	case errors.Is(err, auctionerrors.ErrDisputeBlocksPayment):
		return http.StatusConflict, "dispute blocks payment"
	case errors.Is(err, auctionerrors.ErrInvalidPaymentTransition):
		return http.StatusConflict, "invalid payment status transition"
	case errors.Is(err, auctionerrors.ErrRefundExceedsPaid):
		return http.StatusUnprocessableEntity, "refund exceeds paid amount"
	case errors.Is(err, auctionerrors.ErrUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
