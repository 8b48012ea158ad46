package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/auth"
	"github.com/clipforge/backend/pkg/models"
)

// HandleGetPayments returns the authenticated account's settled payments,
// newest first.
func HandleGetPayments(c *gin.Context) {
	accountID := auth.GetAccountID(c)
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, billingapi.ErrorResponse{Error: "Authentication required"})
		return
	}

	rows, err := db.Query(`
		SELECT id, provider, provider_ref, amount_cents, currency, credits, bonus_credits, status, created_at
		FROM payments
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 100`,
		accountID)
	if err != nil {
		logger.WithError(err).Error("Failed to query payments")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load payments"})
		return
	}
	defer rows.Close()

	payments := make([]billingapi.PaymentInfo, 0)
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.Provider, &p.ProviderRef, &p.AmountCents, &p.Currency,
			&p.Credits, &p.BonusCredits, &p.Status, &p.CreatedAt); err != nil {
			logger.WithError(err).Error("Failed to scan payment row")
			c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load payments"})
			return
		}
		payments = append(payments, billingapi.PaymentInfo{
			ID:           p.ID,
			Provider:     p.Provider,
			ProviderRef:  p.ProviderRef,
			AmountCents:  p.AmountCents,
			Currency:     p.Currency,
			Credits:      p.Credits,
			BonusCredits: p.BonusCredits,
			Status:       p.Status,
			CreatedAt:    p.CreatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		logger.WithError(err).Error("Failed to iterate payment rows")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load payments"})
		return
	}

	c.JSON(http.StatusOK, billingapi.PaymentsResponse{Payments: payments})
}

// HandleGetLedger returns the authenticated account's recent credit
// grants, newest first.
func HandleGetLedger(c *gin.Context) {
	accountID := auth.GetAccountID(c)
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, billingapi.ErrorResponse{Error: "Authentication required"})
		return
	}

	history, err := engine.GrantHistory(c.Request.Context(), accountID, 50)
	if err != nil {
		logger.WithError(err).Error("Failed to load grant history")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load ledger"})
		return
	}

	grants := make([]billingapi.GrantInfo, 0, len(history))
	for _, g := range history {
		grants = append(grants, billingapi.GrantInfo{
			Amount:       g.Amount,
			Source:       g.Source,
			BalanceAfter: g.BalanceAfter,
			CreatedAt:    g.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, billingapi.LedgerResponse{Grants: grants})
}
