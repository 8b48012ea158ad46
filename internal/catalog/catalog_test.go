package catalog

import (
	"errors"
	"testing"
)

func testRefs() PriceRefs {
	return PriceRefs{
		StarterPriceID:    "price_starter",
		CreatorPriceID:    "price_creator",
		ProPriceID:        "price_pro",
		PackSmallPriceID:  "price_pack_small",
		PackMediumPriceID: "price_pack_medium",
		PackPowerPriceID:  "price_pack_power",
	}
}

func TestNewRejectsEmptyPriceID(t *testing.T) {
	refs := testRefs()
	refs.CreatorPriceID = ""
	if _, err := New(refs); err == nil {
		t.Fatalf("expected error for empty price ID")
	}
}

func TestNewRejectsDuplicatePriceID(t *testing.T) {
	refs := testRefs()
	refs.PackSmallPriceID = refs.StarterPriceID
	if _, err := New(refs); err == nil {
		t.Fatalf("expected error for duplicate price ID")
	}
}

func TestPlanLookups(t *testing.T) {
	c, err := New(testRefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		credits int64
	}{
		{"starter", 60},
		{"creator", 150},
		{"pro", 360},
	}
	for _, tt := range tests {
		plan, err := c.PlanByName(tt.name)
		if err != nil {
			t.Fatalf("PlanByName(%s): %v", tt.name, err)
		}
		if plan.MonthlyCredits != tt.credits {
			t.Fatalf("plan %s: expected %d credits, got %d", tt.name, tt.credits, plan.MonthlyCredits)
		}

		byPrice, err := c.PlanByPriceID(plan.PriceID)
		if err != nil {
			t.Fatalf("PlanByPriceID(%s): %v", plan.PriceID, err)
		}
		if byPrice.Name != tt.name {
			t.Fatalf("expected plan %s, got %s", tt.name, byPrice.Name)
		}
	}

	if _, err := c.PlanByName("enterprise"); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
	if _, err := c.PlanByPriceID("price_bogus"); !errors.Is(err, ErrUnknownPriceRef) {
		t.Fatalf("expected ErrUnknownPriceRef, got %v", err)
	}
}

func TestPackLookups(t *testing.T) {
	c, err := New(testRefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		key     string
		credits int64
	}{
		{"small", 25},
		{"medium", 75},
		{"power", 150},
	}
	for _, tt := range tests {
		pack, err := c.PackByKey(tt.key)
		if err != nil {
			t.Fatalf("PackByKey(%s): %v", tt.key, err)
		}
		if pack.Credits != tt.credits {
			t.Fatalf("pack %s: expected %d credits, got %d", tt.key, tt.credits, pack.Credits)
		}
	}

	if _, err := c.PackByKey("mega"); !errors.Is(err, ErrUnknownPack) {
		t.Fatalf("expected ErrUnknownPack, got %v", err)
	}
	if _, err := c.PackByPriceID("price_bogus"); !errors.Is(err, ErrUnknownPriceRef) {
		t.Fatalf("expected ErrUnknownPriceRef, got %v", err)
	}
}

func TestCryptoPackBonus(t *testing.T) {
	c, err := New(testRefs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		key        string
		credits    int64
		priceCents int64
		bonus      int64
	}{
		{"30", 30, 900, 6},
		{"100", 100, 2900, 20},
		{"300", 300, 7900, 60},
		{"1000", 1000, 24900, 200},
	}
	for _, tt := range tests {
		pack, err := c.CryptoPackByKey(tt.key)
		if err != nil {
			t.Fatalf("CryptoPackByKey(%s): %v", tt.key, err)
		}
		if pack.Credits != tt.credits || pack.PriceCents != tt.priceCents {
			t.Fatalf("pack %s: got credits=%d price=%d", tt.key, pack.Credits, pack.PriceCents)
		}
		if pack.BonusCredits != tt.bonus {
			t.Fatalf("pack %s: expected bonus %d, got %d", tt.key, tt.bonus, pack.BonusCredits)
		}
	}

	if _, err := c.CryptoPackByKey("5000"); !errors.Is(err, ErrUnknownPack) {
		t.Fatalf("expected ErrUnknownPack, got %v", err)
	}
}

func TestPriceRefsFromEnv(t *testing.T) {
	t.Setenv("STRIPE_STARTER_PRICE_ID", "price_s")
	t.Setenv("STRIPE_CREATOR_PRICE_ID", "price_c")
	t.Setenv("STRIPE_PRO_PRICE_ID", "price_p")
	t.Setenv("STRIPE_PACK_SMALL_PRICE_ID", "price_ps")
	t.Setenv("STRIPE_PACK_MEDIUM_PRICE_ID", "price_pm")
	t.Setenv("STRIPE_PACK_POWER_PRICE_ID", "price_pp")

	refs := PriceRefsFromEnv()
	if refs.StarterPriceID != "price_s" || refs.PackPowerPriceID != "price_pp" {
		t.Fatalf("env refs not loaded: %+v", refs)
	}

	if _, err := New(refs); err != nil {
		t.Fatalf("catalog from env refs: %v", err)
	}
}
