package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	billingapi "github.com/clipforge/backend/pkg/api/billing"
)

func TestHandleGetPayments(t *testing.T) {
	mock := setupHandlerTest(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "provider", "provider_ref", "amount_cents", "currency",
		"credits", "bonus_credits", "status", "created_at",
	}).
		AddRow("pay-2", "coinbase", "CHARGE2", int64(2900), "usd", int64(100), int64(20), "confirmed", created).
		AddRow("pay-1", "stripe", "cs_test_1", int64(999), "usd", int64(25), int64(0), "confirmed", created.Add(-time.Hour))
	mock.ExpectQuery("SELECT id, provider, provider_ref, amount_cents").
		WithArgs("acct-1").
		WillReturnRows(rows)

	c, w := authedJSONContext(t, "acct-1", http.MethodGet, "/billing/payments", "")
	HandleGetPayments(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp billingapi.PaymentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(resp.Payments))
	}
	if resp.Payments[0].Provider != "coinbase" || resp.Payments[0].BonusCredits != 20 {
		t.Errorf("unexpected first payment: %+v", resp.Payments[0])
	}
	if resp.Payments[1].Credits != 25 {
		t.Errorf("unexpected second payment: %+v", resp.Payments[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHandleGetPaymentsEmpty(t *testing.T) {
	mock := setupHandlerTest(t)

	mock.ExpectQuery("SELECT id, provider, provider_ref, amount_cents").
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "provider", "provider_ref", "amount_cents", "currency",
			"credits", "bonus_credits", "status", "created_at",
		}))

	c, w := authedJSONContext(t, "acct-1", http.MethodGet, "/billing/payments", "")
	HandleGetPayments(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp billingapi.PaymentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Payments) != 0 {
		t.Fatalf("expected no payments, got %d", len(resp.Payments))
	}
}

func TestHandleGetLedger(t *testing.T) {
	mock := setupHandlerTest(t)

	created := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT idempotency_key, account_id, amount, source").
		WithArgs("acct-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"idempotency_key", "account_id", "amount", "source", "balance_after", "created_at",
		}).AddRow("evt_1", "acct-1", int64(60), "subscription", int64(60), created))

	c, w := authedJSONContext(t, "acct-1", http.MethodGet, "/billing/ledger", "")
	HandleGetLedger(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp billingapi.LedgerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(resp.Grants))
	}
	if resp.Grants[0].Source != "subscription" || resp.Grants[0].BalanceAfter != 60 {
		t.Errorf("unexpected grant: %+v", resp.Grants[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
