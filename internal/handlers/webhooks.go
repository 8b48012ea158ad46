package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/backend/internal/catalog"
	"github.com/clipforge/backend/internal/coinbase"
	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/logging"
	"github.com/clipforge/backend/pkg/models"
)

// Stripe webhook payload structure
// Flexible struct to handle multiple event types (checkout, invoice, subscription)
type StripeWebhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"` // Parsed per event type
	} `json:"data"`
}

// StripeCheckoutSessionObject for checkout.session.completed events
type StripeCheckoutSessionObject struct {
	ID                string `json:"id"`
	CustomerID        string `json:"customer"`
	Subscription      string `json:"subscription"`
	Mode              string `json:"mode"` // "subscription" or "payment"
	ClientReferenceID string `json:"client_reference_id"`
	AmountTotal       int64  `json:"amount_total"`
	Currency          string `json:"currency"`
	Metadata          struct {
		PlanName string `json:"plan_name"`
		PackKey  string `json:"pack_key"`
		PriceID  string `json:"price_id"`
	} `json:"metadata"`
}

// StripeInvoiceObject for invoice.* events
type StripeInvoiceObject struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer"`
	SubscriptionID string `json:"subscription"`
	Status         string `json:"status"`
	BillingReason  string `json:"billing_reason"`
	AmountPaid     int64  `json:"amount_paid"`
	Currency       string `json:"currency"`
	Lines          struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"lines"`
}

// StripeSubscriptionObject for customer.subscription.* events
type StripeSubscriptionObject struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer"`
	Status     string `json:"status"`
}

// CoinbaseWebhookPayload wraps a Coinbase Commerce event
type CoinbaseWebhookPayload struct {
	Event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Code     string `json:"code"`
			Metadata struct {
				AccountID string `json:"account_id"`
				PackKey   string `json:"pack_key"`
			} `json:"metadata"`
		} `json:"data"`
	} `json:"event"`
}

// verifyStripeSignature verifies the Stripe webhook signature using HMAC-SHA256
func verifyStripeSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	// Parse Stripe signature header format: t=timestamp,v1=signature,v1=signature
	elements := strings.Split(signature, ",")
	var timestamp string
	var signatures []string

	for _, element := range elements {
		parts := strings.SplitN(element, "=", 2)
		if len(parts) != 2 {
			continue
		}

		switch parts[0] {
		case "t":
			timestamp = parts[1]
		case "v1":
			signatures = append(signatures, parts[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		logger.Error("Invalid Stripe signature format: missing timestamp or signatures")
		return false
	}

	// Verify timestamp is within tolerance (5 minutes)
	timestampInt, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		logger.WithFields(logging.Fields{
			"timestamp": timestamp,
			"error":     err,
		}).Error("Failed to parse Stripe webhook timestamp")
		return false
	}

	now := time.Now().Unix()
	if now-timestampInt > 300 { // 5 minutes tolerance
		logger.WithFields(logging.Fields{
			"timestamp":   timestampInt,
			"current":     now,
			"age_seconds": now - timestampInt,
		}).Warn("Stripe webhook timestamp too old")
		return false
	}

	// Create signed payload: timestamp + "." + payload
	signedPayload := timestamp + "." + string(payload)

	// Calculate expected signature using HMAC-SHA256
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSignature := hex.EncodeToString(mac.Sum(nil))

	// Compare with provided signatures using constant-time comparison
	for _, providedSig := range signatures {
		if hmac.Equal([]byte(expectedSignature), []byte(providedSig)) {
			return true
		}
	}

	logger.WithFields(logging.Fields{
		"timestamp":   timestamp,
		"payload_len": len(payload),
	}).Warn("Stripe signature verification failed")

	return false
}

// ProcessStripeWebhook verifies, dedupes, and applies a Stripe webhook
// delivery. A signature or payload failure is reported to the caller so
// the provider retries; a business failure after that point is recorded
// and acknowledged with 200, because retrying an event that references an
// unknown price or account can never succeed.
func ProcessStripeWebhook(body []byte, headers map[string]string) (bool, string, int) {
	signature := headerValue(headers, "Stripe-Signature")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")

	if webhookSecret == "" {
		logger.Error("STRIPE_WEBHOOK_SECRET not configured; rejecting webhook")
		return false, "Webhook verification not configured", 503
	} else if !verifyStripeSignature(body, signature, webhookSecret) {
		logger.Warn("Invalid Stripe webhook signature")
		recordWebhookSignatureFailure("stripe")
		return false, "Invalid signature", 401
	}

	var payload StripeWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Warn("Invalid Stripe webhook payload")
		return false, "Invalid payload", 400
	}

	logger.WithFields(logging.Fields{
		"event_id":   payload.ID,
		"event_type": payload.Type,
	}).Info("Received Stripe webhook")

	// Check idempotency - skip if already applied
	if isWebhookAlreadyProcessed("stripe", payload.ID) {
		logger.WithField("event_id", payload.ID).Debug("Stripe webhook already processed, skipping")
		return true, "", 200
	}

	var err error
	switch payload.Type {
	case "checkout.session.completed":
		err = handleStripeCheckoutCompleted(payload)
	case "invoice.paid":
		err = handleStripeInvoicePaid(payload)
	case "customer.subscription.deleted":
		err = handleStripeSubscriptionDeleted(payload)
	default:
		logger.WithField("event_type", payload.Type).Debug("Ignoring unhandled Stripe event type")
		markWebhookProcessed("stripe", payload.ID, payload.Type, models.WebhookOutcomeIgnored, "")
		return true, "", 200
	}

	if err != nil {
		logger.WithError(err).WithField("event_type", payload.Type).Error("Failed to process Stripe webhook")
		markWebhookProcessed("stripe", payload.ID, payload.Type, models.WebhookOutcomeFailed, err.Error())
		if metrics != nil {
			metrics.WebhookEvents.WithLabelValues("stripe", payload.Type, "failed").Inc()
		}
		// Acknowledge anyway: a provider retry cannot repair a business failure.
		return true, "", 200
	}

	markWebhookProcessed("stripe", payload.ID, payload.Type, models.WebhookOutcomeSuccess, "")
	if metrics != nil {
		metrics.WebhookEvents.WithLabelValues("stripe", payload.Type, "success").Inc()
	}
	return true, "", 200
}

// ProcessCoinbaseWebhook verifies and applies a Coinbase Commerce webhook.
// Only charge:confirmed grants credits; the charge code is the
// idempotency key.
func ProcessCoinbaseWebhook(body []byte, headers map[string]string) (bool, string, int) {
	signature := headerValue(headers, "X-CC-Webhook-Signature")
	webhookSecret := os.Getenv("COINBASE_WEBHOOK_SECRET")

	if webhookSecret == "" {
		logger.Error("COINBASE_WEBHOOK_SECRET not configured; rejecting webhook")
		return false, "Webhook verification not configured", 503
	} else if !coinbase.VerifySignature(body, signature, webhookSecret) {
		logger.Warn("Invalid Coinbase webhook signature")
		recordWebhookSignatureFailure("coinbase")
		return false, "Invalid signature", 401
	}

	var payload CoinbaseWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Warn("Invalid Coinbase webhook payload")
		return false, "Invalid payload", 400
	}

	logger.WithFields(logging.Fields{
		"event_id":   payload.Event.ID,
		"event_type": payload.Event.Type,
	}).Info("Received Coinbase webhook")

	if payload.Event.Type != "charge:confirmed" {
		logger.WithField("event_type", payload.Event.Type).Debug("Ignoring unhandled Coinbase event type")
		markWebhookProcessed("coinbase", payload.Event.ID, payload.Event.Type, models.WebhookOutcomeIgnored, "")
		return true, "", 200
	}

	if isWebhookAlreadyProcessed("coinbase", payload.Event.ID) {
		logger.WithField("event_id", payload.Event.ID).Debug("Coinbase webhook already processed, skipping")
		return true, "", 200
	}

	if err := handleCoinbaseChargeConfirmed(payload); err != nil {
		logger.WithError(err).Error("Failed to process Coinbase webhook")
		markWebhookProcessed("coinbase", payload.Event.ID, payload.Event.Type, models.WebhookOutcomeFailed, err.Error())
		if metrics != nil {
			metrics.WebhookEvents.WithLabelValues("coinbase", payload.Event.Type, "failed").Inc()
		}
		return true, "", 200
	}

	markWebhookProcessed("coinbase", payload.Event.ID, payload.Event.Type, models.WebhookOutcomeSuccess, "")
	if metrics != nil {
		metrics.WebhookEvents.WithLabelValues("coinbase", payload.Event.Type, "success").Inc()
	}
	return true, "", 200
}

// HandleStripeWebhook is the Gin endpoint for Stripe deliveries.
func HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Failed to read body"})
		return
	}

	ok, msg, status := ProcessStripeWebhook(body, requestHeaders(c))
	if !ok {
		c.JSON(status, billingapi.ErrorResponse{Error: msg})
		return
	}
	c.JSON(status, billingapi.WebhookAck{Status: "ok"})
}

// HandleCoinbaseWebhook is the Gin endpoint for Coinbase Commerce deliveries.
func HandleCoinbaseWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Failed to read body"})
		return
	}

	ok, msg, status := ProcessCoinbaseWebhook(body, requestHeaders(c))
	if !ok {
		c.JSON(status, billingapi.ErrorResponse{Error: msg})
		return
	}
	c.JSON(status, billingapi.WebhookAck{Status: "ok"})
}

func requestHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[key] = c.GetHeader(key)
	}
	return headers
}

// isWebhookAlreadyProcessed reports whether the event was already applied
// successfully. Failed attempts do not short-circuit: a later redelivery
// may succeed once the account exists.
func isWebhookAlreadyProcessed(provider, eventID string) bool {
	if db == nil {
		return false
	}
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2 AND outcome = 'success')
	`, provider, eventID).Scan(&exists)
	return err == nil && exists
}

// markWebhookProcessed records the outcome of a webhook delivery.
func markWebhookProcessed(provider, eventID, eventType, outcome, detail string) {
	if db == nil {
		return
	}
	_, err := db.Exec(`
		INSERT INTO webhook_events (provider, event_id, event_type, outcome, detail)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, event_id) DO UPDATE
		SET outcome = EXCLUDED.outcome, detail = EXCLUDED.detail
	`, provider, eventID, eventType, outcome, detail)
	if err != nil {
		logger.WithError(err).Warn("Failed to mark webhook as processed")
	}
}

func handleStripeCheckoutCompleted(payload StripeWebhookPayload) error {
	var sess StripeCheckoutSessionObject
	if err := json.Unmarshal(payload.Data.Object, &sess); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}

	switch sess.Mode {
	case "subscription":
		return applySubscriptionCheckout(payload.ID, sess)
	case "payment":
		return applyCreditPackCheckout(payload.ID, sess)
	default:
		return fmt.Errorf("unsupported checkout mode %q", sess.Mode)
	}
}

func applySubscriptionCheckout(eventID string, sess StripeCheckoutSessionObject) error {
	plan, err := resolvePlan(sess.Metadata.PriceID, sess.Metadata.PlanName)
	if err != nil {
		return err
	}

	accountID := resolveAccountRef(sess.ClientReferenceID, sess.CustomerID)
	if accountID == "" {
		// Paid before registering: park the subscription until an account
		// shows up with this customer reference.
		return engine.CreatePendingSubscription(context.Background(), sess.CustomerID, sess.Subscription, plan.Name, plan.PriceID, plan.MonthlyCredits)
	}

	if err := engine.ActivateSubscription(context.Background(), accountID, plan.Name, plan.MonthlyCredits, sess.CustomerID, sess.Subscription, eventID); err != nil {
		return err
	}
	if metrics != nil {
		metrics.CreditGrants.WithLabelValues(models.GrantSourceSubscription).Inc()
	}
	return nil
}

func applyCreditPackCheckout(eventID string, sess StripeCheckoutSessionObject) error {
	pack, err := resolvePack(sess.Metadata.PriceID, sess.Metadata.PackKey)
	if err != nil {
		return err
	}

	accountID := resolveAccountRef(sess.ClientReferenceID, sess.CustomerID)
	if accountID == "" {
		return fmt.Errorf("no account for checkout session %s", sess.ID)
	}

	if _, err := engine.Grant(context.Background(), accountID, pack.Credits, models.GrantSourcePurchase, eventID); err != nil {
		return err
	}
	recordPayment(accountID, "stripe", sess.ID, sess.AmountTotal, sess.Currency, pack.Credits, 0)
	if metrics != nil {
		metrics.CreditGrants.WithLabelValues(models.GrantSourcePurchase).Inc()
	}
	return nil
}

func handleStripeInvoicePaid(payload StripeWebhookPayload) error {
	var inv StripeInvoiceObject
	if err := json.Unmarshal(payload.Data.Object, &inv); err != nil {
		return fmt.Errorf("parse invoice: %w", err)
	}

	// The first invoice of a subscription is fulfilled by the checkout
	// completion event; crediting it here would double-grant.
	if inv.BillingReason == "subscription_create" {
		logger.WithField("invoice_id", inv.ID).Debug("Skipping initial subscription invoice")
		return nil
	}

	accountID := lookupAccountByCustomer(inv.CustomerID)
	if accountID == "" {
		return fmt.Errorf("no account for customer %s on invoice %s", inv.CustomerID, inv.ID)
	}

	priceID := ""
	if len(inv.Lines.Data) > 0 {
		priceID = inv.Lines.Data[0].Price.ID
	}
	plan, err := resolvePlan(priceID, lookupAccountPlan(accountID))
	if err != nil {
		return err
	}

	if err := engine.RenewSubscription(context.Background(), accountID, plan.Name, plan.MonthlyCredits, payload.ID); err != nil {
		return err
	}
	if metrics != nil {
		metrics.CreditGrants.WithLabelValues(models.GrantSourceRenewal).Inc()
	}
	return nil
}

func handleStripeSubscriptionDeleted(payload StripeWebhookPayload) error {
	var sub StripeSubscriptionObject
	if err := json.Unmarshal(payload.Data.Object, &sub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	accountID := lookupAccountByCustomer(sub.CustomerID)
	if accountID == "" {
		return fmt.Errorf("no account for customer %s on subscription %s", sub.CustomerID, sub.ID)
	}

	return engine.CancelSubscription(context.Background(), accountID)
}

func handleCoinbaseChargeConfirmed(payload CoinbaseWebhookPayload) error {
	meta := payload.Event.Data.Metadata
	if meta.AccountID == "" {
		return fmt.Errorf("charge %s has no account metadata", payload.Event.Data.Code)
	}

	pack, err := cat.CryptoPackByKey(meta.PackKey)
	if err != nil {
		return err
	}

	total := pack.Credits + pack.BonusCredits
	if _, err := engine.Grant(context.Background(), meta.AccountID, total, models.GrantSourceCrypto, "coinbase:"+payload.Event.Data.Code); err != nil {
		return err
	}
	recordPayment(meta.AccountID, "coinbase", payload.Event.Data.Code, pack.PriceCents, "usd", pack.Credits, pack.BonusCredits)
	if metrics != nil {
		metrics.CreditGrants.WithLabelValues(models.GrantSourceCrypto).Inc()
	}
	return nil
}

func resolvePlan(priceID, planName string) (catalog.Plan, error) {
	if priceID != "" {
		return cat.PlanByPriceID(priceID)
	}
	if planName != "" {
		return cat.PlanByName(planName)
	}
	return catalog.Plan{}, fmt.Errorf("no plan reference on event")
}

func resolvePack(priceID, packKey string) (catalog.Pack, error) {
	if priceID != "" {
		return cat.PackByPriceID(priceID)
	}
	if packKey != "" {
		return cat.PackByKey(packKey)
	}
	return catalog.Pack{}, fmt.Errorf("no pack reference on event")
}

// resolveAccountRef resolves the account to credit: the checkout's
// client_reference_id wins, then a lookup by Stripe customer ID.
func resolveAccountRef(clientReferenceID, customerID string) string {
	if clientReferenceID != "" {
		return clientReferenceID
	}
	return lookupAccountByCustomer(customerID)
}

func lookupAccountByCustomer(customerID string) string {
	if customerID == "" || db == nil {
		return ""
	}
	var accountID string
	err := db.QueryRow(`SELECT id FROM accounts WHERE stripe_customer_id = $1`, customerID).Scan(&accountID)
	if err != nil {
		return ""
	}
	return accountID
}

func lookupAccountPlan(accountID string) string {
	if db == nil {
		return ""
	}
	var plan string
	err := db.QueryRow(`SELECT COALESCE(subscription_plan, '') FROM accounts WHERE id = $1`, accountID).Scan(&plan)
	if err != nil {
		return ""
	}
	return plan
}

func recordPayment(accountID, provider, providerRef string, amountCents int64, currency string, credits, bonusCredits int64) {
	if db == nil {
		return
	}
	if currency == "" {
		currency = "usd"
	}
	_, err := db.Exec(`
		INSERT INTO payments (account_id, provider, provider_ref, amount_cents, currency, credits, bonus_credits)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, provider_ref) DO NOTHING
	`, accountID, provider, providerRef, amountCents, strings.ToLower(currency), credits, bonusCredits)
	if err != nil {
		logger.WithError(err).Warn("Failed to record payment")
	}
}

func recordWebhookSignatureFailure(provider string) {
	if metrics != nil {
		metrics.SignatureFailures.WithLabelValues(provider).Inc()
	}
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
