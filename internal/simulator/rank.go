package simulator

import (
	"fmt"
	"math"
	"mpgrupo/internal/models"
	"sort"
	"strconv"
	"strings"
)

// RankResults orders results by savings, highest first. Ties keep their input
// order. Negative savings are kept as they are. The input slice is not modified.
func RankResults(results []models.ComparisonResult) []models.ComparisonResult {
	ranked := make([]models.ComparisonResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Savings > ranked[j].Savings
	})
	return ranked
}

// PowerRatePolicy decides what happens when an operator has no daily power
// charge for the customer's contracted power.
type PowerRatePolicy string

const (
	// PowerRateZero prices the power term at zero and keeps the operator.
	PowerRateZero PowerRatePolicy = "zero"
	// PowerRateExclude drops the operator from the comparison.
	PowerRateExclude PowerRatePolicy = "exclude"
	// PowerRateNearest uses the closest published tier; the lower tier wins ties.
	PowerRateNearest PowerRatePolicy = "nearest"
)

// ParsePowerRatePolicy accepts "zero", "exclude" or "nearest" (case-insensitive).
// Empty selects PowerRateZero.
func ParsePowerRatePolicy(s string) (PowerRatePolicy, error) {
	switch p := PowerRatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PowerRateZero:
		return PowerRateZero, nil
	case PowerRateExclude, PowerRateNearest:
		return p, nil
	}
	return PowerRateZero, fmt.Errorf("unknown power rate policy %q", s)
}

// resolvePowerCharge returns the daily charge to use, whether the exact tier
// was missing, and false when the operator must be skipped.
func resolvePowerCharge(t models.OperatorTariff, kva float64, policy PowerRatePolicy) (float64, bool, bool) {
	if v, ok := t.PowerCharge(kva); ok {
		return v, false, true
	}

	switch policy {
	case PowerRateExclude:
		return 0, true, false
	case PowerRateNearest:
		return nearestPowerCharge(t.PowerCharges, kva), true, true
	}
	return 0, true, true
}

func nearestPowerCharge(charges map[string]float64, kva float64) float64 {
	bestDist := math.Inf(1)
	bestTier := 0.0
	best := 0.0
	for key, v := range charges {
		tier, err := strconv.ParseFloat(key, 64)
		if err != nil {
			continue
		}
		dist := math.Abs(tier - kva)
		if dist < bestDist || (dist == bestDist && tier < bestTier) {
			bestDist, bestTier, best = dist, tier, v
		}
	}
	return best
}
