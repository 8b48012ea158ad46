package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	billingapi "github.com/clipforge/backend/pkg/api/billing"
)

// HandleGetPlans lists the subscription plans.
func HandleGetPlans(c *gin.Context) {
	plans := make([]billingapi.PlanInfo, 0, len(cat.Plans()))
	for _, p := range cat.Plans() {
		plans = append(plans, billingapi.PlanInfo{
			Name:           p.Name,
			MonthlyCredits: p.MonthlyCredits,
			PriceID:        p.PriceID,
		})
	}
	c.JSON(http.StatusOK, billingapi.CatalogResponse{Plans: plans})
}

// HandleGetPacks lists one-time credit packs, card and crypto.
func HandleGetPacks(c *gin.Context) {
	packs := make([]billingapi.PackInfo, 0, len(cat.Packs()))
	for _, p := range cat.Packs() {
		packs = append(packs, billingapi.PackInfo{
			Key:     p.Key,
			Credits: p.Credits,
		})
	}

	cryptoPacks := make([]billingapi.PackInfo, 0, len(cat.CryptoPacks()))
	for _, p := range cat.CryptoPacks() {
		cryptoPacks = append(cryptoPacks, billingapi.PackInfo{
			Key:          p.Key,
			Credits:      p.Credits,
			BonusCredits: p.BonusCredits,
			PriceCents:   p.PriceCents,
		})
	}

	c.JSON(http.StatusOK, billingapi.CatalogResponse{
		CreditPacks: packs,
		CryptoPacks: cryptoPacks,
	})
}
