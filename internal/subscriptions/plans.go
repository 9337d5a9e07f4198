package subscriptions

import (
	"github.com/shopspring/decimal"

	"github.com/osei-labs/marketplace-backend/pkg/enums"
)

// Plan is one entry of the fixed plan catalog. AdsAllowed nil means the plan
// grants unlimited ads.
type Plan struct {
	Type         enums.PlanType
	Name         string
	PriceMinor   int64
	DurationDays int
	AdsAllowed   *int
}

// PriceMajor converts the stored minor units to a decimal in major units.
func (p Plan) PriceMajor() decimal.Decimal {
	return decimal.New(p.PriceMinor, -2)
}

func adsQuota(n int) *int {
	return &n
}

// catalog is the single authoritative plan table. Prices are GHS minor units.
var catalog = []Plan{
	{Type: enums.PlanTypeStarter, Name: "Starter", PriceMinor: 2000, DurationDays: 7, AdsAllowed: adsQuota(10)},
	{Type: enums.PlanTypeRising, Name: "Rising Seller", PriceMinor: 5000, DurationDays: 14, AdsAllowed: adsQuota(25)},
	{Type: enums.PlanTypePro, Name: "Pro Seller", PriceMinor: 12000, DurationDays: 30, AdsAllowed: adsQuota(60)},
	{Type: enums.PlanTypeBusiness, Name: "Business", PriceMinor: 30000, DurationDays: 90, AdsAllowed: nil},
}

// Catalog returns the plan list in display order.
func Catalog() []Plan {
	out := make([]Plan, len(catalog))
	copy(out, catalog)
	return out
}

// PlanFor looks up a plan by type.
func PlanFor(planType enums.PlanType) (Plan, bool) {
	for _, plan := range catalog {
		if plan.Type == planType {
			return plan, true
		}
	}
	return Plan{}, false
}
