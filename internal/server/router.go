package server

import (
	handler "collateral-auction/services/auction/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(coord handler.CoordinatorInterface) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(coord)

	auctions := router.Group("/auctions")
	{
		auctions.POST("", auctionHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/activate", auctionHandler.ActivateAuctionHandler)
		auctions.POST("/:auction_id/close", auctionHandler.CloseAuctionHandler)
		auctions.POST("/:auction_id/cancel", auctionHandler.CancelAuctionHandler)
		auctions.GET("/:auction_id/bids", auctionHandler.GetBidsHandler)
		auctions.GET("/:auction_id/leader", auctionHandler.GetLeaderHandler)
	}

	bids := router.Group("/bids")
	{
		bids.POST("", auctionHandler.PlaceBidHandler)
		bids.POST("/:bid_id/dispute", auctionHandler.RaiseDisputeHandler)
		bids.POST("/:bid_id/dispute/review", auctionHandler.ReviewDisputeHandler)
		bids.POST("/:bid_id/dispute/resolve", auctionHandler.ResolveDisputeHandler)
		bids.POST("/:bid_id/payment", auctionHandler.UpdatePaymentHandler)
		bids.POST("/:bid_id/refund", auctionHandler.RefundPaymentHandler)
	}

	return router
}
