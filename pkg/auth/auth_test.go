package auth

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/clipforge/backend/pkg/ctxkeys"
)

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if !CheckPassword("secret", hash) {
		t.Fatalf("password should match")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("password should not match")
	}
}

func TestPasswordTooLong(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestJWTGenerateValidate(t *testing.T) {
	secret := []byte("s3cr3t")
	token, err := GenerateJWT("acct1", "u@example.com", secret)
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}
	claims, err := ValidateJWT(token, secret)
	if err != nil {
		t.Fatalf("validate jwt: %v", err)
	}
	if claims.AccountID != "acct1" || claims.Email != "u@example.com" {
		t.Fatalf("claims mismatch")
	}
}

func TestJWTValidationEdgeCases(t *testing.T) {
	tests := []struct {
		name        string
		setupToken  func() string
		secret      []byte
		expectError bool
		errorType   error
	}{
		{
			name: "valid token with correct secret",
			setupToken: func() string {
				token, _ := GenerateJWT("acct1", "test@example.com", []byte("correct-secret"))
				return token
			},
			secret:      []byte("correct-secret"),
			expectError: false,
		},
		{
			name: "valid token with wrong secret",
			setupToken: func() string {
				token, _ := GenerateJWT("acct1", "test@example.com", []byte("correct-secret"))
				return token
			},
			secret:      []byte("wrong-secret"),
			expectError: true,
			errorType:   ErrInvalidJWT,
		},
		{
			name: "expired token",
			setupToken: func() string {
				claims := &Claims{
					AccountID: "acct1",
					Email:     "test@example.com",
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
						IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
					},
				}
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
				tokenString, _ := token.SignedString([]byte("test-secret"))
				return tokenString
			},
			secret:      []byte("test-secret"),
			expectError: true,
			errorType:   ErrExpiredJWT,
		},
		{
			name: "malformed token",
			setupToken: func() string {
				return "not.a.valid.jwt.token"
			},
			secret:      []byte("test-secret"),
			expectError: true,
			errorType:   ErrInvalidJWT,
		},
		{
			name: "empty token",
			setupToken: func() string {
				return ""
			},
			secret:      []byte("test-secret"),
			expectError: true,
			errorType:   ErrInvalidJWT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.setupToken()
			claims, err := ValidateJWT(token, tt.secret)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				if tt.errorType != nil && !errors.Is(err, tt.errorType) {
					t.Fatalf("expected error %v but got %v", tt.errorType, err)
				}
				if claims != nil {
					t.Fatalf("expected nil claims when error occurs")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if claims == nil {
					t.Fatalf("expected valid claims")
				}
			}
		})
	}
}

func TestJWTAlgorithmConfusionPrevention(t *testing.T) {
	secret := []byte("test-secret")

	// Create a token using none algorithm (security vulnerability if not caught)
	noneToken := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		AccountID: "acct1",
		Email:     "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	noneTokenString, err := noneToken.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to create none token: %v", err)
	}

	claims, err := ValidateJWT(noneTokenString, secret)
	if err == nil {
		t.Fatalf("expected rejection of none algorithm token but validation succeeded")
	}
	if claims != nil {
		t.Fatalf("expected nil claims when rejecting none algorithm")
	}
	if !errors.Is(err, ErrInvalidJWT) && !strings.Contains(err.Error(), "unexpected signing method") {
		t.Fatalf("expected signing method or invalid JWT error but got: %v", err)
	}
}

func TestContextAccessors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := GetAccountID(c); got != "" {
		t.Fatalf("expected empty account ID on bare context, got %q", got)
	}
	if got := GetEmail(c); got != "" {
		t.Fatalf("expected empty email on bare context, got %q", got)
	}

	c.Set(string(ctxkeys.KeyAccountID), "acct-1")
	c.Set(string(ctxkeys.KeyEmail), "user@example.com")

	if got := GetAccountID(c); got != "acct-1" {
		t.Fatalf("expected acct-1, got %q", got)
	}
	if got := GetEmail(c); got != "user@example.com" {
		t.Fatalf("expected user@example.com, got %q", got)
	}
}
