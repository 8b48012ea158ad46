package stripe

import (
	"context"
	"fmt"

	"github.com/clipforge/backend/pkg/logging"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client wraps Stripe API operations for checkout and subscription
// management. Fulfilment happens exclusively through webhooks; the client
// only creates hosted sessions and manages subscriptions.
type Client struct {
	secretKey     string
	webhookSecret string
	logger        logging.Logger
}

// Config for creating a new Stripe client
type Config struct {
	SecretKey     string // STRIPE_SECRET_KEY
	WebhookSecret string // STRIPE_WEBHOOK_SECRET
	Logger        logging.Logger
}

// NewClient creates a new Stripe client
func NewClient(config Config) *Client {
	// Set the global API key for the stripe-go library
	stripe.Key = config.SecretKey

	return &Client{
		secretKey:     config.SecretKey,
		webhookSecret: config.WebhookSecret,
		logger:        config.Logger,
	}
}

// WebhookSecret returns the configured webhook signing secret.
func (c *Client) WebhookSecret() string {
	return c.webhookSecret
}

// CheckoutParams for creating a hosted checkout session
type CheckoutParams struct {
	Mode              string // "subscription" or "payment"
	PriceID           string
	ClientReferenceID string // account ID; empty for anonymous checkouts
	CustomerEmail     string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

// CreateCheckoutSession creates a Stripe Checkout Session. The account ID
// travels as client_reference_id so the completion webhook can credit the
// right account without a customer lookup.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(params.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata:   params.Metadata,
	}
	if params.ClientReferenceID != "" {
		sessionParams.ClientReferenceID = stripe.String(params.ClientReferenceID)
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	if params.Mode == string(stripe.CheckoutSessionModeSubscription) {
		sessionParams.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.Metadata,
		}
	}

	sess, err := checkoutsession.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	c.logger.WithFields(logging.Fields{
		"session_id": sess.ID,
		"mode":       params.Mode,
		"price_id":   params.PriceID,
	}).Info("Created Stripe checkout session")

	return sess, nil
}

// CancelSubscription cancels a subscription at period end
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	c.logger.WithField("subscription_id", subscriptionID).Info("Subscription scheduled for cancellation")
	return sub, nil
}
