package simulator

import "mpgrupo/internal/models"

// ResolveDiscountPercents returns the power/energy discount a customer gets
// from an operator. The base tier always applies. With both direct debit and
// electronic invoice the combined DD+FE tier is added instead of the separate
// DD and FE tiers; otherwise DD and FE add independently.
func ResolveDiscountPercents(d *models.DiscountConfig, hasDD, hasFE bool) models.DiscountPercents {
	if d == nil {
		return models.DiscountPercents{}
	}

	p := models.DiscountPercents{Power: d.BasePower, Energy: d.BaseEnergy}
	if hasDD && hasFE {
		p.Power += d.DDFEPower
		p.Energy += d.DDFEEnergy
		return p
	}
	if hasDD {
		p.Power += d.DDPower
		p.Energy += d.DDEnergy
	}
	if hasFE {
		p.Power += d.FEPower
		p.Energy += d.FEEnergy
	}
	return p
}

// PotentialSavingsWithDDFE is the extra euro amount a customer would save by
// enrolling in both direct debit and electronic invoice.
//
// The hypothetical discount is the sum of the separate DD and FE tiers applied
// to the undiscounted costs, not the combined DD+FE tier the customer would be
// billed with. The two can differ; the figure is a hint, not a quote.
func PotentialSavingsWithDDFE(d models.DiscountConfig, basePowerCost, baseEnergyCost, subtotal float64) float64 {
	hypothetical := applyPercent(basePowerCost, d.DDPower+d.FEPower) +
		applyPercent(baseEnergyCost, d.DDEnergy+d.FEEnergy)
	return subtotal - hypothetical
}
