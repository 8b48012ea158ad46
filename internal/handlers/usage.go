package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/backend/internal/ledger"
	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/auth"
	"github.com/clipforge/backend/pkg/logging"
	"github.com/clipforge/backend/pkg/models"
)

// HandleGetBalance returns the account's current balance snapshot.
func HandleGetBalance(c *gin.Context) {
	accountID := auth.GetAccountID(c)

	var resp billingapi.BalanceResponse
	var plan sql.NullString
	err := db.QueryRow(`
		SELECT id, credit_balance, subscription_status, subscription_plan
		FROM accounts WHERE id = $1`,
		accountID).Scan(&resp.AccountID, &resp.CreditBalance, &resp.SubscriptionStatus, &plan)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, billingapi.ErrorResponse{Error: "Account not found"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to load balance")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load balance"})
		return
	}
	resp.SubscriptionPlan = plan.String

	c.JSON(http.StatusOK, resp)
}

// HandleConsume charges credits for usage. Active subscribers pay half,
// rounded up. The balance guard lives in the ledger, so a race between
// two consume calls can reject but never overdraw.
func HandleConsume(c *gin.Context) {
	accountID := auth.GetAccountID(c)

	var req billingapi.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}
	if req.Credits < 1 {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Credits must be at least 1"})
		return
	}

	var status string
	err := db.QueryRow(`
		SELECT subscription_status FROM accounts WHERE id = $1`,
		accountID).Scan(&status)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, billingapi.ErrorResponse{Error: "Account not found"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to load account for consume")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to consume credits"})
		return
	}

	charge := req.Credits
	discounted := status == models.SubscriptionStatusActive
	if discounted {
		charge = (req.Credits + 1) / 2
	}

	balance, err := engine.Deduct(c.Request.Context(), accountID, charge)
	if errors.Is(err, ledger.ErrInsufficientCredits) {
		c.JSON(http.StatusPaymentRequired, billingapi.ErrorResponse{Error: "Insufficient credits"})
		return
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, billingapi.ErrorResponse{Error: "Account not found"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to deduct credits")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to consume credits"})
		return
	}

	if metrics != nil {
		metrics.CreditDeductions.WithLabelValues(strconv.FormatBool(discounted)).Inc()
	}
	logger.WithFields(logging.Fields{
		"account_id": accountID,
		"requested":  req.Credits,
		"charged":    charge,
		"discounted": discounted,
		"balance":    balance,
	}).Info("Credits consumed")

	c.JSON(http.StatusOK, billingapi.ConsumeResponse{
		Charged:          charge,
		DiscountApplied:  discounted,
		RemainingBalance: balance,
	})
}
