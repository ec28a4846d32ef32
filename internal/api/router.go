package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asoud/payment-core/internal/api/handler"
	"github.com/asoud/payment-core/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	paymentHandler *handler.PaymentHandler,
	walletHandler *handler.WalletHandler,
	webhookHandler *handler.WebhookHandler,
) {
	// CorrelationID must run before Logger so request logs carry the id.
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Payment operations
		payments := v1.Group("/payments")
		{
			payments.POST("", paymentHandler.Create)
			payments.GET("/:id", paymentHandler.GetByID)
			payments.POST("/:id/refund", paymentHandler.Refund)
		}

		// Wallet operations
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", walletHandler.Create)
			wallets.GET("/:id/balance", walletHandler.Balance)
			wallets.GET("/:id/entries", walletHandler.Entries)
		}
	}

	// Provider callbacks arrive outside the versioned API; their shape is
	// owned by the providers, not by us. GET is for providers that return
	// the payer via browser redirect with query parameters.
	r.POST("/webhooks/:gateway", webhookHandler.Receive)
	r.GET("/webhooks/:gateway", webhookHandler.Receive)

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
