package billing

import (
	"time"

	"github.com/clipforge/backend/pkg/api/common"
)

// RegisterRequest represents an account registration request.
// CustomerRef optionally carries the Stripe customer reference from a
// pre-registration checkout so the paid subscription can be claimed.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	CustomerRef string `json:"customer_ref"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	CustomerRef string `json:"customer_ref"`
}

// AuthResponse is returned from register and login
type AuthResponse struct {
	Token   string          `json:"token"`
	Account AccountResponse `json:"account"`
}

// AccountResponse is the public view of an account
type AccountResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	CreditBalance      int64  `json:"credit_balance"`
	SubscriptionStatus string `json:"subscription_status"`
	SubscriptionPlan   string `json:"subscription_plan,omitempty"`
}

// BalanceResponse is a point-in-time credit balance snapshot
type BalanceResponse struct {
	AccountID          string `json:"account_id"`
	CreditBalance      int64  `json:"credit_balance"`
	SubscriptionStatus string `json:"subscription_status"`
	SubscriptionPlan   string `json:"subscription_plan,omitempty"`
}

// ConsumeRequest represents a credit consumption request
type ConsumeRequest struct {
	Credits int64  `json:"credits" binding:"required"`
	Reason  string `json:"reason"`
}

// ConsumeResponse reports the charge applied and the remaining balance
type ConsumeResponse struct {
	Charged          int64 `json:"charged"`
	DiscountApplied  bool  `json:"discount_applied"`
	RemainingBalance int64 `json:"remaining_balance"`
}

// SubscriptionCheckoutRequest starts a Stripe subscription checkout.
// Email lets an anonymous buyer pre-fill the hosted checkout; for
// authenticated requests the account email takes precedence.
type SubscriptionCheckoutRequest struct {
	PlanName string `json:"plan_name" binding:"required"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// CreditsCheckoutRequest starts a Stripe one-time credit pack checkout
type CreditsCheckoutRequest struct {
	PackKey string `json:"pack_key" binding:"required"`
}

// CryptoCheckoutRequest starts a Coinbase Commerce charge
type CryptoCheckoutRequest struct {
	PackKey string `json:"pack_key" binding:"required"`
}

// CheckoutResponse carries the hosted payment URL to redirect to
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id,omitempty"`
}

// PlanInfo describes a subscription plan for the pricing page
type PlanInfo struct {
	Name           string `json:"name"`
	MonthlyCredits int64  `json:"monthly_credits"`
	PriceID        string `json:"price_id"`
}

// PackInfo describes a one-time credit pack
type PackInfo struct {
	Key          string `json:"key"`
	Credits      int64  `json:"credits"`
	BonusCredits int64  `json:"bonus_credits,omitempty"`
	PriceCents   int64  `json:"price_cents,omitempty"`
}

// CatalogResponse lists purchasable plans and packs
type CatalogResponse struct {
	Plans       []PlanInfo `json:"plans"`
	CreditPacks []PackInfo `json:"credit_packs"`
	CryptoPacks []PackInfo `json:"crypto_packs"`
}

// PaymentInfo is one settled payment in an account's history
type PaymentInfo struct {
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	ProviderRef  string    `json:"provider_ref"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
	Credits      int64     `json:"credits"`
	BonusCredits int64     `json:"bonus_credits"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// PaymentsResponse is the body for the payment history endpoint
type PaymentsResponse struct {
	Payments []PaymentInfo `json:"payments"`
}

// GrantInfo is one applied credit grant in an account's ledger history
type GrantInfo struct {
	Amount       int64     `json:"amount"`
	Source       string    `json:"source"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// LedgerResponse is the body for the credit ledger history endpoint
type LedgerResponse struct {
	Grants []GrantInfo `json:"grants"`
}

// WebhookAck is the body returned to webhook deliveries
type WebhookAck struct {
	Status string `json:"status"`
}

// ErrorResponse is a type alias to the common error response
type ErrorResponse = common.ErrorResponse
