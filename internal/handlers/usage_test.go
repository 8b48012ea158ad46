package handlers

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clipforge/backend/internal/ledger"
	billingapi "github.com/clipforge/backend/pkg/api/billing"
	"github.com/clipforge/backend/pkg/ctxkeys"
)

func setupHandlerTest(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	testLogger := logrus.New()
	testLogger.SetOutput(io.Discard)

	db = mockDB
	logger = testLogger
	metrics = nil
	cat = testCatalog(t)
	engine = ledger.NewEngine(mockDB, testLogger)
	jwtSecret = []byte("test-secret")

	t.Cleanup(func() {
		mockDB.Close()
		db = nil
		engine = nil
		cat = nil
	})

	return mock
}

func authedJSONContext(t *testing.T, accountID, method, path, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		c.Set(string(ctxkeys.KeyAccountID), accountID)
	}
	return c, w
}

func TestHandleConsumeSubscriberDiscount(t *testing.T) {
	mock := setupHandlerTest(t)

	mock.ExpectQuery("SELECT subscription_status FROM accounts").
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_status"}).AddRow("active"))
	mock.ExpectQuery("UPDATE accounts").
		WithArgs(int64(5), "acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(int64(55)))

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/usage/consume", `{"credits":10,"reason":"video"}`)
	HandleConsume(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp billingapi.ConsumeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Charged != 5 || !resp.DiscountApplied || resp.RemainingBalance != 55 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHandleConsumeNoDiscount(t *testing.T) {
	mock := setupHandlerTest(t)

	mock.ExpectQuery("SELECT subscription_status FROM accounts").
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_status"}).AddRow("none"))
	mock.ExpectQuery("UPDATE accounts").
		WithArgs(int64(10), "acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(int64(15)))

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/usage/consume", `{"credits":10}`)
	HandleConsume(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp billingapi.ConsumeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Charged != 10 || resp.DiscountApplied {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleConsumeInsufficientCredits(t *testing.T) {
	mock := setupHandlerTest(t)

	mock.ExpectQuery("SELECT subscription_status FROM accounts").
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_status"}).AddRow("none"))
	mock.ExpectQuery("UPDATE accounts").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/usage/consume", `{"credits":10}`)
	HandleConsume(c)

	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleConsumeRejectsBadAmount(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/usage/consume", `{"credits":0}`)
	HandleConsume(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleGetBalance(t *testing.T) {
	mock := setupHandlerTest(t)

	mock.ExpectQuery("SELECT id, credit_balance, subscription_status, subscription_plan").
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "credit_balance", "subscription_status", "subscription_plan"}).
			AddRow("acct-1", int64(42), "active", "starter"))

	c, w := authedJSONContext(t, "acct-1", http.MethodGet, "/billing/balance", "")
	HandleGetBalance(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp billingapi.BalanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CreditBalance != 42 || resp.SubscriptionStatus != "active" || resp.SubscriptionPlan != "starter" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleGetBalanceUnknownAccount(t *testing.T) {
	mock := setupHandlerTest(t)

	mock.ExpectQuery("SELECT id, credit_balance, subscription_status, subscription_plan").
		WillReturnError(sql.ErrNoRows)

	c, w := authedJSONContext(t, "ghost", http.MethodGet, "/billing/balance", "")
	HandleGetBalance(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", w.Code, w.Body.String())
	}
}
