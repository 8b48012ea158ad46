package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/api/common"
	"github.com/clipforge/backend/pkg/auth"
)

// HandleCancelSubscription schedules the account's subscription for
// cancellation at period end. The local status flips when the provider
// delivers the deletion webhook; granted credits are untouched.
func HandleCancelSubscription(c *gin.Context) {
	accountID := auth.GetAccountID(c)
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, billingapi.ErrorResponse{Error: "Authentication required"})
		return
	}

	var subscriptionRef sql.NullString
	err := db.QueryRow(`
		SELECT stripe_subscription_id FROM accounts WHERE id = $1`,
		accountID).Scan(&subscriptionRef)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, billingapi.ErrorResponse{Error: "Account not found"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to look up subscription")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to cancel subscription"})
		return
	}
	if !subscriptionRef.Valid || subscriptionRef.String == "" {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "No active subscription"})
		return
	}

	if _, err := stripeClient.CancelSubscription(c.Request.Context(), subscriptionRef.String); err != nil {
		logger.WithError(err).WithField("account_id", accountID).Error("Failed to cancel subscription with provider")
		c.JSON(http.StatusBadGateway, billingapi.ErrorResponse{Error: "Payment provider unavailable"})
		return
	}

	c.JSON(http.StatusOK, common.SuccessResponse{
		Success: true,
		Message: "Subscription will cancel at the end of the current period",
	})
}
