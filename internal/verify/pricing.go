package verify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/billwatch/munibill/internal/models"
)

// EvaluateBands prices a quantity across ascending consumption bands using
// [min, max) semantics; the final band is unbounded when its max is nil.
// Returns the total in integer cents, rounded half up. Evaluation is a pure
// function of (quantity, bands) and is idempotent.
func EvaluateBands(quantity float64, bands []models.PriceBand) (int64, error) {
	if quantity < 0 {
		return 0, fmt.Errorf("negative quantity %.3f", quantity)
	}

	total := decimal.Zero
	for i, band := range bands {
		if band.RandPerUnit == nil {
			return 0, fmt.Errorf("band %d is missing its rate", i)
		}
		if band.Max != nil && *band.Max <= band.Min {
			return 0, fmt.Errorf("band %d has max %.3f <= min %.3f", i, *band.Max, band.Min)
		}

		if quantity <= band.Min {
			continue
		}

		upper := quantity
		if band.Max != nil && *band.Max < quantity {
			upper = *band.Max
		}

		inBand := decimal.NewFromFloat(upper - band.Min)
		total = total.Add(inBand.Mul(*band.RandPerUnit))
	}

	// Rand to cents.
	return total.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// ComputeExpectedCents applies a rule's pricing structure to a line item and
// returns the expected charge in cents. An error means the rule is unusable
// for this item (malformed pricing or a structure that needs data the item
// does not carry); the caller skips the rule rather than failing the run.
func ComputeExpectedCents(rule *models.TariffRule, item *models.LineItem, property *models.PropertyInfo) (int64, error) {
	if err := rule.Pricing.ValidatePricing(); err != nil {
		return 0, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	var cents int64
	var err error

	switch rule.Pricing.Kind {
	case models.PricingEnergyBands, models.PricingConsumptionBands, models.PricingTimeOfUse:
		if item.Quantity == nil {
			return 0, fmt.Errorf("rule %s: banded pricing needs a quantity", rule.ID)
		}
		cents, err = EvaluateBands(*item.Quantity, rule.Pricing.Bands)
	case models.PricingFlatRate:
		if item.Quantity == nil {
			return 0, fmt.Errorf("rule %s: flat-rate pricing needs a quantity", rule.ID)
		}
		q := decimal.NewFromFloat(*item.Quantity)
		cents = q.Mul(*rule.Pricing.FlatRandPerUnit).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	case models.PricingDemandCharge:
		if item.Quantity == nil {
			return 0, fmt.Errorf("rule %s: demand pricing needs a kVA quantity", rule.ID)
		}
		q := decimal.NewFromFloat(*item.Quantity)
		cents = q.Mul(*rule.Pricing.DemandRandPerKVA).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	case models.PricingRateInRand:
		if property == nil || property.MunicipalValuationCents <= 0 {
			return 0, fmt.Errorf("rule %s: rate-in-rand pricing needs the municipal valuation", rule.ID)
		}
		valuation := decimal.NewFromInt(property.MunicipalValuationCents).Div(decimal.NewFromInt(100))
		if rule.Pricing.RebateRand != nil {
			valuation = valuation.Sub(*rule.Pricing.RebateRand)
			if valuation.IsNegative() {
				valuation = decimal.Zero
			}
		}
		monthly := valuation.Mul(*rule.Pricing.RateInRand).Div(decimal.NewFromInt(12))
		cents = monthly.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	default:
		return 0, fmt.Errorf("rule %s: unknown pricing kind %q", rule.ID, rule.Pricing.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	if !rule.VATInclusive && !rule.VATRate.IsZero() {
		withVAT := decimal.NewFromInt(cents).Mul(decimal.NewFromInt(1).Add(rule.VATRate))
		cents = withVAT.Round(0).IntPart()
	}

	return cents, nil
}
