package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/auth"
	"github.com/clipforge/backend/pkg/logging"
	"github.com/clipforge/backend/pkg/models"
)

// HandleRegister creates an account and returns a session token. When the
// request carries a checkout customer reference, a matching pending
// subscription is claimed in the same request.
func HandleRegister(c *gin.Context) {
	var req billingapi.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Password is too long"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to hash password")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to create account"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var accountID string
	err = db.QueryRow(`
		INSERT INTO accounts (email, password_hash)
		VALUES ($1, $2)
		RETURNING id`,
		email, hash).Scan(&accountID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			c.JSON(http.StatusConflict, billingapi.ErrorResponse{Error: "Email already registered"})
			return
		}
		logger.WithError(err).Error("Failed to create account")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to create account"})
		return
	}

	logger.WithFields(logging.Fields{
		"account_id": accountID,
		"email":      email,
	}).Info("Account registered")

	claimPendingForAccount(c, accountID, req.CustomerRef)

	token, err := auth.GenerateJWT(accountID, email, jwtSecret)
	if err != nil {
		logger.WithError(err).Error("Failed to generate session token")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to create session"})
		return
	}

	account, err := loadAccountResponse(accountID)
	if err != nil {
		logger.WithError(err).Error("Failed to load account after registration")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load account"})
		return
	}

	c.JSON(http.StatusCreated, billingapi.AuthResponse{Token: token, Account: account})
}

// HandleLogin authenticates an account and returns a session token.
func HandleLogin(c *gin.Context) {
	var req billingapi.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, billingapi.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var accountID, passwordHash string
	err := db.QueryRow(`
		SELECT id, password_hash FROM accounts WHERE email = $1`,
		email).Scan(&accountID, &passwordHash)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, billingapi.ErrorResponse{Error: "Invalid credentials"})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to look up account")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Login failed"})
		return
	}

	if !auth.CheckPassword(req.Password, passwordHash) {
		c.JSON(http.StatusUnauthorized, billingapi.ErrorResponse{Error: "Invalid credentials"})
		return
	}

	claimPendingForAccount(c, accountID, req.CustomerRef)

	token, err := auth.GenerateJWT(accountID, email, jwtSecret)
	if err != nil {
		logger.WithError(err).Error("Failed to generate session token")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to create session"})
		return
	}

	account, err := loadAccountResponse(accountID)
	if err != nil {
		logger.WithError(err).Error("Failed to load account after login")
		c.JSON(http.StatusInternalServerError, billingapi.ErrorResponse{Error: "Failed to load account"})
		return
	}

	c.JSON(http.StatusOK, billingapi.AuthResponse{Token: token, Account: account})
}

// claimPendingForAccount attaches a paid-before-registration subscription.
// A claim failure is logged, not surfaced: the session is still valid and
// the claim can be retried on the next login.
func claimPendingForAccount(c *gin.Context, accountID, customerRef string) {
	if customerRef == "" {
		return
	}
	claimed, err := engine.ClaimPendingSubscription(c.Request.Context(), accountID, customerRef)
	if err != nil {
		logger.WithError(err).WithFields(logging.Fields{
			"account_id":   accountID,
			"customer_ref": customerRef,
		}).Warn("Failed to claim pending subscription")
		return
	}
	if claimed {
		if metrics != nil {
			metrics.CreditGrants.WithLabelValues(models.GrantSourcePending).Inc()
		}
		logger.WithFields(logging.Fields{
			"account_id":   accountID,
			"customer_ref": customerRef,
		}).Info("Claimed pending subscription on auth")
	}
}

func loadAccountResponse(accountID string) (billingapi.AccountResponse, error) {
	var account models.Account
	err := db.QueryRow(`
		SELECT id, email, credit_balance, subscription_status, subscription_plan
		FROM accounts WHERE id = $1`,
		accountID).Scan(&account.ID, &account.Email, &account.CreditBalance,
		&account.SubscriptionStatus, &account.SubscriptionPlan)
	if err != nil {
		return billingapi.AccountResponse{}, err
	}
	return billingapi.AccountResponse{
		ID:                 account.ID,
		Email:              account.Email,
		CreditBalance:      account.CreditBalance,
		SubscriptionStatus: account.SubscriptionStatus,
		SubscriptionPlan:   account.SubscriptionPlan.String,
	}, nil
}
