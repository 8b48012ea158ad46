package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	billingapi "github.com/clipforge/backend/pkg/api/billing"
)

func TestHandleSubscriptionCheckoutUnknownPlan(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/billing/checkout/subscription",
		`{"plan_name":"enterprise"}`)
	HandleSubscriptionCheckout(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleSubscriptionCheckoutMissingPlan(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/billing/checkout/subscription", `{}`)
	HandleSubscriptionCheckout(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleSubscriptionCheckoutInvalidEmail(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "", http.MethodPost, "/billing/checkout/subscription",
		`{"plan_name":"starter","email":"not-an-email"}`)
	HandleSubscriptionCheckout(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleCreditsCheckoutUnknownPack(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/billing/checkout/credits",
		`{"pack_key":"mega"}`)
	HandleCreditsCheckout(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleCryptoCheckoutUnknownPack(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "acct-1", http.MethodPost, "/billing/checkout/crypto",
		`{"pack_key":"5000"}`)
	HandleCryptoCheckout(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestHandleGetPlans(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "", http.MethodGet, "/billing/plans", "")
	HandleGetPlans(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp billingapi.CatalogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(resp.Plans))
	}
	if resp.Plans[0].Name != "starter" || resp.Plans[0].MonthlyCredits != 60 {
		t.Fatalf("unexpected first plan: %+v", resp.Plans[0])
	}
}

func TestHandleGetPacks(t *testing.T) {
	setupHandlerTest(t)

	c, w := authedJSONContext(t, "", http.MethodGet, "/billing/packs", "")
	HandleGetPacks(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp billingapi.CatalogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.CreditPacks) != 3 {
		t.Fatalf("expected 3 credit packs, got %d", len(resp.CreditPacks))
	}
	if len(resp.CryptoPacks) != 4 {
		t.Fatalf("expected 4 crypto packs, got %d", len(resp.CryptoPacks))
	}
	for _, p := range resp.CryptoPacks {
		if p.BonusCredits != p.Credits/5 {
			t.Fatalf("pack %s: expected 20%% bonus, got %d of %d", p.Key, p.BonusCredits, p.Credits)
		}
	}
}
