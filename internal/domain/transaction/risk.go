package transaction

import "math"

// Risk level labels shown next to a transaction
const (
	RiskLevelCritical  = "Critical"
	RiskLevelHigh      = "High"
	RiskLevelMedium    = "Medium"
	RiskLevelLowMedium = "Low-Medium"
	RiskLevelLow       = "Low"
)

// ClampUnit clamps x into [0, 1]. NaN maps to 0.
func ClampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// RiskLevel maps a risk score to a human-readable label
func RiskLevel(score float64) string {
	score = ClampUnit(score)
	switch {
	case score >= 0.8:
		return RiskLevelCritical
	case score >= 0.6:
		return RiskLevelHigh
	case score >= 0.4:
		return RiskLevelMedium
	case score >= 0.2:
		return RiskLevelLowMedium
	default:
		return RiskLevelLow
	}
}
