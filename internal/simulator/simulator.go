// Package simulator compares a customer's current electricity bill against
// the published tariffs of other operators. It performs no I/O: callers load
// tariffs and discount configurations and pass them in.
package simulator

import "mpgrupo/internal/models"

// Options tunes engine behaviour that is a business decision rather than arithmetic.
type Options struct {
	MissingPowerRate PowerRatePolicy
}

// Compare runs a full simulation: current cost, per-operator cost for every
// eligible tariff, and ranking by savings. The customer's own operator and
// operators without rates for the customer's cycle are left out.
func Compare(in models.CustomerInput, tariffs []models.OperatorTariff, discounts map[string]models.DiscountConfig, opts Options) models.Comparison {
	current := ComputeCurrentCost(in)
	self := in.NormalizedOperator()

	results := make([]models.ComparisonResult, 0, len(tariffs))
	for _, t := range tariffs {
		if self != "" && models.NormalizeOperatorName(t.Name) == self {
			continue
		}
		var discount *models.DiscountConfig
		if d, ok := discounts[t.ID]; ok {
			discount = &d
		}
		r, ok := ComputeOperatorCost(t, discount, in, current, opts)
		if !ok {
			continue
		}
		results = append(results, *r)
	}

	return models.Comparison{
		CurrentCost: current,
		Results:     RankResults(results),
	}
}

// ComputeCurrentCost is the customer's present cost for the billing period:
// reported daily power charge times days, plus kWh times price for every band
// of the input's cycle. An unknown cycle contributes no energy cost.
func ComputeCurrentCost(in models.CustomerInput) float64 {
	powerCost := in.CurrentDailyPowerCharge * float64(in.BillingDays)

	energyCost := 0.0
	for _, b := range in.Bands() {
		energyCost += b.KWh * b.Price
	}
	return powerCost + energyCost
}

// ComputeOperatorCost prices the customer's own consumption under tariff t.
// It returns false when t does not publish rates for the customer's cycle, or
// when the power-rate policy excludes an operator lacking the customer's tier.
func ComputeOperatorCost(t models.OperatorTariff, discount *models.DiscountConfig, in models.CustomerInput, currentCost float64, opts Options) (*models.ComparisonResult, bool) {
	prices, ok := t.EnergyPrices(in.Cycle())
	if !ok {
		return nil, false
	}

	daily, missing, ok := resolvePowerCharge(t, in.ContractedPower, opts.MissingPowerRate)
	if !ok {
		return nil, false
	}

	basePower := daily * float64(in.BillingDays)
	pct := ResolveDiscountPercents(discount, in.HasDirectDebit, in.HasElectronicInvoice)
	powerCost := applyPercent(basePower, pct.Power)

	// Summed in cycle band order, never map order, so output is bit-identical across runs.
	bands := in.Bands()
	bandCosts := make(map[models.BandKey]float64, len(bands))
	baseEnergy, energyCost := 0.0, 0.0
	for _, b := range bands {
		base := b.KWh * prices[b.Band]
		baseEnergy += base
		c := applyPercent(base, pct.Energy)
		bandCosts[b.Band] = c
		energyCost += c
	}

	subtotal := powerCost + energyCost
	r := &models.ComparisonResult{
		Operator:         t,
		DailyPowerCharge: daily,
		PowerRateMissing: missing,
		PowerCost:        powerCost,
		EnergyCosts:      bandCosts,
		EnergyCost:       energyCost,
		Discount:         pct,
		Subtotal:         subtotal,
		Savings:          currentCost - subtotal,
	}

	if discount != nil && !(in.HasDirectDebit && in.HasElectronicInvoice) {
		extra := PotentialSavingsWithDDFE(*discount, basePower, baseEnergy, subtotal)
		r.PotentialSavingsWithDDFE = &extra
	}

	if discount != nil && discount.HasTemporaryRebate() {
		promo := EvaluateTemporaryPromotion(*discount, subtotal, in.BillingDays, in.HasDirectDebit, in.HasElectronicInvoice)
		r.TemporaryPromotion = &promo
	}

	return r, true
}

func applyPercent(amount, pct float64) float64 {
	return amount * (1 - pct/100)
}

// AnnualProjection scales savings for a billing period to 365 days.
func AnnualProjection(savings float64, billingDays int) float64 {
	if billingDays <= 0 {
		return 0
	}
	return savings / float64(billingDays) * 365
}
