package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/backend/internal/catalog"
	"github.com/clipforge/backend/internal/coinbase"
	stripeclient "github.com/clipforge/backend/internal/stripe"
	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/auth"
	"github.com/clipforge/backend/pkg/config"
	"github.com/clipforge/backend/pkg/logging"
	"github.com/clipforge/backend/pkg/middleware"
)

// HandleSubscriptionCheckout creates a hosted subscription checkout.
// The route is reachable without auth: an anonymous buyer checks out
// first and claims the subscription when they register. Authenticated
// requests carry the account ID as client_reference_id instead.
func HandleSubscriptionCheckout(c *gin.Context) {
	var req billingapi.SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	plan, err := cat.PlanByName(req.PlanName)
	if errors.Is(err, catalog.ErrUnknownPlan) {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: fmt.Sprintf("Unknown plan %q", req.PlanName)})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to resolve plan"})
		return
	}

	email := auth.GetEmail(c)
	if email == "" {
		email = req.Email
	}

	baseURL := config.GetEnv("BASE_URL", "http://localhost:3000")
	sess, err := stripeClient.CreateCheckoutSession(c.Request.Context(), stripeclient.CheckoutParams{
		Mode:              "subscription",
		PriceID:           plan.PriceID,
		ClientReferenceID: auth.GetAccountID(c),
		CustomerEmail:     email,
		Metadata: map[string]string{
			"plan_name": plan.Name,
			"price_id":  plan.PriceID,
		},
		SuccessURL: baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  baseURL + "/pricing",
	})
	if err != nil {
		middleware.GetContextLogger(c, logger).WithError(err).WithField("plan", plan.Name).Error("Failed to create subscription checkout")
		c.JSON(http.StatusBadGateway, billingapi.ErrorResponse{Error: "Payment provider unavailable"})
		return
	}

	recordCheckoutSession("stripe", "subscription")
	c.JSON(http.StatusOK, billingapi.CheckoutResponse{CheckoutURL: sess.URL, SessionID: sess.ID})
}

// HandleCreditsCheckout creates a one-time credit pack checkout.
func HandleCreditsCheckout(c *gin.Context) {
	accountID := auth.GetAccountID(c)

	var req billingapi.CreditsCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	pack, err := cat.PackByKey(req.PackKey)
	if errors.Is(err, catalog.ErrUnknownPack) {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: fmt.Sprintf("Unknown credit pack %q", req.PackKey)})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to resolve pack"})
		return
	}

	baseURL := config.GetEnv("BASE_URL", "http://localhost:3000")
	sess, err := stripeClient.CreateCheckoutSession(c.Request.Context(), stripeclient.CheckoutParams{
		Mode:              "payment",
		PriceID:           pack.PriceID,
		ClientReferenceID: accountID,
		CustomerEmail:     auth.GetEmail(c),
		Metadata: map[string]string{
			"pack_key": pack.Key,
			"price_id": pack.PriceID,
		},
		SuccessURL: baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  baseURL + "/credits",
	})
	if err != nil {
		middleware.GetContextLogger(c, logger).WithError(err).WithField("pack", pack.Key).Error("Failed to create credits checkout")
		c.JSON(http.StatusBadGateway, billingapi.ErrorResponse{Error: "Payment provider unavailable"})
		return
	}

	recordCheckoutSession("stripe", "payment")
	c.JSON(http.StatusOK, billingapi.CheckoutResponse{CheckoutURL: sess.URL, SessionID: sess.ID})
}

// HandleCryptoCheckout creates a hosted Coinbase Commerce charge for a
// crypto credit pack. The account ID rides in the charge metadata so the
// confirmation webhook knows whom to credit.
func HandleCryptoCheckout(c *gin.Context) {
	accountID := auth.GetAccountID(c)

	var req billingapi.CryptoCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	pack, err := cat.CryptoPackByKey(req.PackKey)
	if errors.Is(err, catalog.ErrUnknownPack) {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: fmt.Sprintf("Unknown crypto pack %q", req.PackKey)})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to resolve pack"})
		return
	}

	charge, err := coinbaseClient.CreateCharge(c.Request.Context(), coinbase.ChargeParams{
		Name:        fmt.Sprintf("%d credits", pack.Credits),
		Description: fmt.Sprintf("%d credits + %d bonus", pack.Credits, pack.BonusCredits),
		AmountCents: pack.PriceCents,
		Currency:    "USD",
		Metadata: map[string]string{
			"account_id": accountID,
			"pack_key":   pack.Key,
		},
	})
	if err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"account_id": accountID,
			"pack":       pack.Key,
		}).Error("Failed to create crypto charge")
		c.JSON(http.StatusBadGateway, billingapi.ErrorResponse{Error: "Payment provider unavailable"})
		return
	}

	recordCheckoutSession("coinbase", "crypto")
	c.JSON(http.StatusOK, billingapi.CheckoutResponse{
		CheckoutURL: charge.HostedURL,
		SessionID:   charge.Code,
	})
}

func recordCheckoutSession(provider, mode string) {
	if metrics != nil {
		metrics.CheckoutSessions.WithLabelValues(provider, mode).Inc()
	}
}
