package models

import (
	"database/sql"
	"time"
)

// Account represents a registered user with a credit balance and
// subscription state.
type Account struct {
	ID                   string         `json:"id" db:"id"`
	Email                string         `json:"email" db:"email"`
	PasswordHash         string         `json:"-" db:"password_hash"`
	CreditBalance        int64          `json:"credit_balance" db:"credit_balance"`
	SubscriptionStatus   string         `json:"subscription_status" db:"subscription_status"`
	SubscriptionPlan     sql.NullString `json:"subscription_plan" db:"subscription_plan"`
	StripeCustomerID     sql.NullString `json:"-" db:"stripe_customer_id"`
	StripeSubscriptionID sql.NullString `json:"-" db:"stripe_subscription_id"`
	TrialUsed            bool           `json:"trial_used" db:"trial_used"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

// Subscription status values stored on accounts
const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

// PendingSubscription holds a paid subscription that could not be matched
// to an account at webhook time. It is claimed on registration or login.
type PendingSubscription struct {
	ID                   string         `json:"id" db:"id"`
	StripeCustomerID     string         `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeSubscriptionID sql.NullString `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	PlanName             string         `json:"plan_name" db:"plan_name"`
	PriceID              string         `json:"price_id" db:"price_id"`
	CreditsToAward       int64          `json:"credits_to_award" db:"credits_to_award"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	ClaimedAt            sql.NullTime   `json:"claimed_at" db:"claimed_at"`
	ClaimedBy            sql.NullString `json:"claimed_by" db:"claimed_by"`
}

// Webhook outcome values recorded per processed delivery for dedup and
// audit
const (
	WebhookOutcomeSuccess = "success"
	WebhookOutcomeFailed  = "failed"
	WebhookOutcomeIgnored = "ignored"
)

// CreditGrant is one row in the append-only credit ledger. The
// idempotency key makes replayed grants no-ops.
type CreditGrant struct {
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Amount         int64     `json:"amount" db:"amount"`
	Source         string    `json:"source" db:"source"`
	BalanceAfter   int64     `json:"balance_after" db:"balance_after"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Grant source values
const (
	GrantSourceSubscription = "subscription"
	GrantSourceRenewal      = "renewal"
	GrantSourcePurchase     = "purchase"
	GrantSourceCrypto       = "crypto"
	GrantSourcePending      = "pending_claim"
)

// Payment records a settled payment from any provider.
type Payment struct {
	ID           string    `json:"id" db:"id"`
	AccountID    string    `json:"account_id" db:"account_id"`
	Provider     string    `json:"provider" db:"provider"`
	ProviderRef  string    `json:"provider_ref" db:"provider_ref"`
	AmountCents  int64     `json:"amount_cents" db:"amount_cents"`
	Currency     string    `json:"currency" db:"currency"`
	Credits      int64     `json:"credits" db:"credits"`
	BonusCredits int64     `json:"bonus_credits" db:"bonus_credits"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
