package simulator

import "mpgrupo/internal/models"

const daysPerMonth = 30

// EvaluateTemporaryPromotion normalises the period subtotal to a 30-day month
// and applies the operator's monthly rebate. The promotion is returned whether
// or not the customer currently meets its DD/FE requirements; Available says
// which.
func EvaluateTemporaryPromotion(d models.DiscountConfig, subtotal float64, billingDays int, hasDD, hasFE bool) models.TemporaryPromotion {
	monthly := subtotal
	if billingDays > 0 {
		monthly = subtotal / float64(billingDays) * daysPerMonth
	}

	return models.TemporaryPromotion{
		MonthlyRebate:         d.MonthlyRebate,
		DurationMonths:        d.RebateMonths,
		Description:           d.RebateDescription,
		TotalSavings:          d.MonthlyRebate * float64(d.RebateMonths),
		MonthlyCostBase:       monthly,
		MonthlyCostWithRebate: monthly - d.MonthlyRebate,
		RequiresDD:            d.RebateRequiresDD,
		RequiresFE:            d.RebateRequiresFE,
		Available:             (!d.RebateRequiresDD || hasDD) && (!d.RebateRequiresFE || hasFE),
	}
}
