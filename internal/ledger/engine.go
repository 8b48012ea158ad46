// Package ledger implements the credit ledger: every balance mutation is
// a single database transaction keyed by an idempotency record, so a
// replayed payment event can never double-credit an account.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clipforge/backend/pkg/logging"
	"github.com/clipforge/backend/pkg/models"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be at least 1")
)

// Engine applies credit mutations against Postgres.
type Engine struct {
	db     *sql.DB
	logger logging.Logger
}

// NewEngine creates a ledger engine.
func NewEngine(db *sql.DB, logger logging.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// Grant credits amount to the account, recording idempotencyKey in the
// same transaction. Replaying a key returns the balance recorded by the
// first application without mutating anything.
func (e *Engine) Grant(ctx context.Context, accountID string, amount int64, source, idempotencyKey string) (int64, error) {
	if amount < 1 {
		return 0, ErrInvalidAmount
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin grant tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO credit_grants (idempotency_key, account_id, amount, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		idempotencyKey, accountID, amount, source)
	if err != nil {
		return 0, fmt.Errorf("insert grant record: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("grant rows affected: %w", err)
	}
	if inserted == 0 {
		// Replay: return the balance the original application recorded.
		var prior sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT balance_after FROM credit_grants WHERE idempotency_key = $1`,
			idempotencyKey).Scan(&prior)
		if err != nil {
			return 0, fmt.Errorf("load replayed grant: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("commit replayed grant: %w", err)
		}
		e.logger.WithFields(logging.Fields{
			"account_id":      accountID,
			"idempotency_key": idempotencyKey,
		}).Info("Grant replayed, no mutation applied")
		return prior.Int64, nil
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET credit_balance = credit_balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING credit_balance`,
		amount, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("apply grant: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE credit_grants SET balance_after = $1 WHERE idempotency_key = $2`,
		balance, idempotencyKey); err != nil {
		return 0, fmt.Errorf("record grant balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit grant: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"account_id": accountID,
		"amount":     amount,
		"source":     source,
		"balance":    balance,
	}).Info("Credits granted")
	return balance, nil
}

// Deduct removes amount credits from the account. The balance guard is
// part of the UPDATE predicate, so concurrent deductions can never drive
// the balance negative.
func (e *Engine) Deduct(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount < 1 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := e.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET credit_balance = credit_balance - $1, updated_at = NOW()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance`,
		amount, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		var exists bool
		if err := e.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`,
			accountID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("check account: %w", err)
		}
		if !exists {
			return 0, ErrAccountNotFound
		}
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("apply deduct: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"account_id": accountID,
		"amount":     amount,
		"balance":    balance,
	}).Info("Credits deducted")
	return balance, nil
}

// ActivateSubscription marks the account active on plan, stores the
// provider references, and applies the first monthly grant, all in one
// transaction keyed by idempotencyKey.
func (e *Engine) ActivateSubscription(ctx context.Context, accountID, planName string, credits int64, customerRef, subscriptionRef, idempotencyKey string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO credit_grants (idempotency_key, account_id, amount, source)
		VALUES ($1, $2, $3, 'subscription')
		ON CONFLICT (idempotency_key) DO NOTHING`,
		idempotencyKey, accountID, credits)
	if err != nil {
		return fmt.Errorf("insert activation grant: %w", err)
	}
	if inserted, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("activation rows affected: %w", err)
	} else if inserted == 0 {
		return tx.Commit()
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET credit_balance = credit_balance + $1,
		    subscription_status = 'active',
		    subscription_plan = $2,
		    stripe_customer_id = $3,
		    stripe_subscription_id = $4,
		    updated_at = NOW()
		WHERE id = $5
		RETURNING credit_balance`,
		credits, planName, customerRef, subscriptionRef, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE credit_grants SET balance_after = $1 WHERE idempotency_key = $2`,
		balance, idempotencyKey); err != nil {
		return fmt.Errorf("record activation balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activation: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"account_id": accountID,
		"plan":       planName,
		"credits":    credits,
	}).Info("Subscription activated")
	return nil
}

// RenewSubscription applies a billing-cycle grant keyed by the provider's
// invoice event. A retried invoice event is a no-op.
func (e *Engine) RenewSubscription(ctx context.Context, accountID, planName string, credits int64, idempotencyKey string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin renewal tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO credit_grants (idempotency_key, account_id, amount, source)
		VALUES ($1, $2, $3, 'renewal')
		ON CONFLICT (idempotency_key) DO NOTHING`,
		idempotencyKey, accountID, credits)
	if err != nil {
		return fmt.Errorf("insert renewal grant: %w", err)
	}
	if inserted, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("renewal rows affected: %w", err)
	} else if inserted == 0 {
		return tx.Commit()
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET credit_balance = credit_balance + $1,
		    subscription_status = 'active',
		    subscription_plan = $2,
		    updated_at = NOW()
		WHERE id = $3
		RETURNING credit_balance`,
		credits, planName, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("apply renewal: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE credit_grants SET balance_after = $1 WHERE idempotency_key = $2`,
		balance, idempotencyKey); err != nil {
		return fmt.Errorf("record renewal balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit renewal: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"account_id": accountID,
		"plan":       planName,
		"credits":    credits,
	}).Info("Subscription renewed")
	return nil
}

// CancelSubscription marks the subscription inactive. Remaining credits
// are retained. Safe to call repeatedly.
func (e *Engine) CancelSubscription(ctx context.Context, accountID string) error {
	res, err := e.db.ExecContext(ctx, `
		UPDATE accounts
		SET subscription_status = 'inactive', updated_at = NOW()
		WHERE id = $1`,
		accountID)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("cancel rows affected: %w", err)
	} else if rows == 0 {
		return ErrAccountNotFound
	}

	e.logger.WithFields(logging.Fields{"account_id": accountID}).Info("Subscription cancelled, credits retained")
	return nil
}

// CreatePendingSubscription stores a paid subscription that has no
// matching account yet. At most one unclaimed row exists per customer
// reference; a refresh overwrites the plan details.
func (e *Engine) CreatePendingSubscription(ctx context.Context, customerRef, subscriptionRef, planName, priceID string, credits int64) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO pending_subscriptions
			(stripe_customer_id, stripe_subscription_id, plan_name, price_id, credits_to_award)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stripe_customer_id) DO UPDATE
		SET stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		    plan_name = EXCLUDED.plan_name,
		    price_id = EXCLUDED.price_id,
		    credits_to_award = EXCLUDED.credits_to_award
		WHERE pending_subscriptions.claimed_at IS NULL`,
		customerRef, subscriptionRef, planName, priceID, credits)
	if err != nil {
		return fmt.Errorf("create pending subscription: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"customer_ref": customerRef,
		"plan":         planName,
	}).Info("Pending subscription recorded")
	return nil
}

// ClaimPendingSubscription attaches an unclaimed pending subscription to
// the account: marks it claimed, copies the provider references, and
// grants the stored credits, in one transaction. Returns false when no
// unclaimed row exists for customerRef.
func (e *Engine) ClaimPendingSubscription(ctx context.Context, accountID, customerRef string) (bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pending models.PendingSubscription
	err = tx.QueryRowContext(ctx, `
		UPDATE pending_subscriptions
		SET claimed_at = NOW(), claimed_by = $1
		WHERE stripe_customer_id = $2 AND claimed_at IS NULL
		RETURNING id, stripe_subscription_id, plan_name, credits_to_award`,
		accountID, customerRef).Scan(&pending.ID, &pending.StripeSubscriptionID,
		&pending.PlanName, &pending.CreditsToAward)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim pending subscription: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_grants (idempotency_key, account_id, amount, source)
		VALUES ($1, $2, $3, 'pending_claim')
		ON CONFLICT (idempotency_key) DO NOTHING`,
		"pending:"+pending.ID, accountID, pending.CreditsToAward); err != nil {
		return false, fmt.Errorf("insert claim grant: %w", err)
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET credit_balance = credit_balance + $1,
		    subscription_status = 'active',
		    subscription_plan = $2,
		    stripe_customer_id = $3,
		    stripe_subscription_id = $4,
		    updated_at = NOW()
		WHERE id = $5
		RETURNING credit_balance`,
		pending.CreditsToAward, pending.PlanName, customerRef,
		pending.StripeSubscriptionID, accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return false, ErrAccountNotFound
	}
	if err != nil {
		return false, fmt.Errorf("apply claim: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE credit_grants SET balance_after = $1 WHERE idempotency_key = $2`,
		balance, "pending:"+pending.ID); err != nil {
		return false, fmt.Errorf("record claim balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit claim: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"account_id":   accountID,
		"customer_ref": customerRef,
		"plan":         pending.PlanName,
		"credits":      pending.CreditsToAward,
	}).Info("Pending subscription claimed")
	return true, nil
}

// GrantHistory returns the account's most recent credit grants, newest
// first.
func (e *Engine) GrantHistory(ctx context.Context, accountID string, limit int) ([]models.CreditGrant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT idempotency_key, account_id, amount, source, COALESCE(balance_after, 0), created_at
		FROM credit_grants
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query grant history: %w", err)
	}
	defer rows.Close()

	grants := make([]models.CreditGrant, 0)
	for rows.Next() {
		var g models.CreditGrant
		if err := rows.Scan(&g.IdempotencyKey, &g.AccountID, &g.Amount,
			&g.Source, &g.BalanceAfter, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan grant row: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grant rows: %w", err)
	}
	return grants, nil
}
