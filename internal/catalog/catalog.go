// Package catalog holds the static purchase catalog: subscription plans,
// one-time credit packs, and crypto credit packs. Lookups are pure and do
// no I/O; price references come from configuration at startup.
package catalog

import (
	"errors"
	"fmt"

	"github.com/clipforge/backend/pkg/config"
)

var (
	ErrUnknownPriceRef = errors.New("unknown price reference")
	ErrUnknownPlan     = errors.New("unknown plan")
	ErrUnknownPack     = errors.New("unknown credit pack")
)

// Plan is a recurring subscription plan granting credits monthly.
type Plan struct {
	Name           string
	MonthlyCredits int64
	PriceID        string
}

// Pack is a one-time credit pack sold through card checkout.
type Pack struct {
	Key     string
	Credits int64
	PriceID string
}

// CryptoPack is a one-time credit pack sold through hosted crypto
// checkout. Credits are topped up with BonusCredits on confirmation.
type CryptoPack struct {
	Key          string
	Credits      int64
	PriceCents   int64
	BonusCredits int64
}

// CryptoBonusRate is the extra credit fraction awarded on crypto top-ups.
const CryptoBonusRate = 0.20

// PriceRefs carries the provider price IDs for every sellable item.
type PriceRefs struct {
	StarterPriceID string
	CreatorPriceID string
	ProPriceID     string

	PackSmallPriceID  string
	PackMediumPriceID string
	PackPowerPriceID  string
}

// PriceRefsFromEnv reads price references from the environment.
func PriceRefsFromEnv() PriceRefs {
	return PriceRefs{
		StarterPriceID:    config.GetEnv("STRIPE_STARTER_PRICE_ID", ""),
		CreatorPriceID:    config.GetEnv("STRIPE_CREATOR_PRICE_ID", ""),
		ProPriceID:        config.GetEnv("STRIPE_PRO_PRICE_ID", ""),
		PackSmallPriceID:  config.GetEnv("STRIPE_PACK_SMALL_PRICE_ID", ""),
		PackMediumPriceID: config.GetEnv("STRIPE_PACK_MEDIUM_PRICE_ID", ""),
		PackPowerPriceID:  config.GetEnv("STRIPE_PACK_POWER_PRICE_ID", ""),
	}
}

// Catalog resolves plans and packs by name, key, or provider price ID.
type Catalog struct {
	plans       []Plan
	packs       []Pack
	cryptoPacks []CryptoPack

	plansByName    map[string]Plan
	plansByPriceID map[string]Plan
	packsByKey     map[string]Pack
	packsByPriceID map[string]Pack
	cryptoByKey    map[string]CryptoPack
}

// New builds the catalog from price references. It fails fast when a
// price ID is empty or assigned to more than one item, so a
// misconfigured deployment cannot credit the wrong product.
func New(refs PriceRefs) (*Catalog, error) {
	c := &Catalog{
		plans: []Plan{
			{Name: "starter", MonthlyCredits: 60, PriceID: refs.StarterPriceID},
			{Name: "creator", MonthlyCredits: 150, PriceID: refs.CreatorPriceID},
			{Name: "pro", MonthlyCredits: 360, PriceID: refs.ProPriceID},
		},
		packs: []Pack{
			{Key: "small", Credits: 25, PriceID: refs.PackSmallPriceID},
			{Key: "medium", Credits: 75, PriceID: refs.PackMediumPriceID},
			{Key: "power", Credits: 150, PriceID: refs.PackPowerPriceID},
		},
		cryptoPacks: []CryptoPack{
			newCryptoPack("30", 30, 900),
			newCryptoPack("100", 100, 2900),
			newCryptoPack("300", 300, 7900),
			newCryptoPack("1000", 1000, 24900),
		},
		plansByName:    make(map[string]Plan),
		plansByPriceID: make(map[string]Plan),
		packsByKey:     make(map[string]Pack),
		packsByPriceID: make(map[string]Pack),
		cryptoByKey:    make(map[string]CryptoPack),
	}

	seen := make(map[string]string)
	for _, p := range c.plans {
		if p.PriceID == "" {
			return nil, fmt.Errorf("plan %q has no price ID configured", p.Name)
		}
		if prev, dup := seen[p.PriceID]; dup {
			return nil, fmt.Errorf("price ID %q assigned to both %q and plan %q", p.PriceID, prev, p.Name)
		}
		seen[p.PriceID] = "plan " + p.Name
		c.plansByName[p.Name] = p
		c.plansByPriceID[p.PriceID] = p
	}
	for _, p := range c.packs {
		if p.PriceID == "" {
			return nil, fmt.Errorf("credit pack %q has no price ID configured", p.Key)
		}
		if prev, dup := seen[p.PriceID]; dup {
			return nil, fmt.Errorf("price ID %q assigned to both %q and pack %q", p.PriceID, prev, p.Key)
		}
		seen[p.PriceID] = "pack " + p.Key
		c.packsByKey[p.Key] = p
		c.packsByPriceID[p.PriceID] = p
	}
	for _, p := range c.cryptoPacks {
		c.cryptoByKey[p.Key] = p
	}

	return c, nil
}

func newCryptoPack(key string, credits, priceCents int64) CryptoPack {
	return CryptoPack{
		Key:          key,
		Credits:      credits,
		PriceCents:   priceCents,
		BonusCredits: int64(float64(credits) * CryptoBonusRate),
	}
}

// PlanByName looks up a subscription plan by its name.
func (c *Catalog) PlanByName(name string) (Plan, error) {
	if p, ok := c.plansByName[name]; ok {
		return p, nil
	}
	return Plan{}, fmt.Errorf("%w: %s", ErrUnknownPlan, name)
}

// PlanByPriceID looks up a subscription plan by its provider price ID.
func (c *Catalog) PlanByPriceID(priceID string) (Plan, error) {
	if p, ok := c.plansByPriceID[priceID]; ok {
		return p, nil
	}
	return Plan{}, fmt.Errorf("%w: %s", ErrUnknownPriceRef, priceID)
}

// PackByKey looks up a one-time credit pack by its key.
func (c *Catalog) PackByKey(key string) (Pack, error) {
	if p, ok := c.packsByKey[key]; ok {
		return p, nil
	}
	return Pack{}, fmt.Errorf("%w: %s", ErrUnknownPack, key)
}

// PackByPriceID looks up a one-time credit pack by its provider price ID.
func (c *Catalog) PackByPriceID(priceID string) (Pack, error) {
	if p, ok := c.packsByPriceID[priceID]; ok {
		return p, nil
	}
	return Pack{}, fmt.Errorf("%w: %s", ErrUnknownPriceRef, priceID)
}

// CryptoPackByKey looks up a crypto credit pack by its key.
func (c *Catalog) CryptoPackByKey(key string) (CryptoPack, error) {
	if p, ok := c.cryptoByKey[key]; ok {
		return p, nil
	}
	return CryptoPack{}, fmt.Errorf("%w: %s", ErrUnknownPack, key)
}

// Plans returns all subscription plans in display order.
func (c *Catalog) Plans() []Plan { return c.plans }

// Packs returns all one-time credit packs in display order.
func (c *Catalog) Packs() []Pack { return c.packs }

// CryptoPacks returns all crypto credit packs in display order.
func (c *Catalog) CryptoPacks() []CryptoPack { return c.cryptoPacks }
