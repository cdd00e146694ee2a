package enums

import "fmt"

// PlanTier identifies the closed set of subscription tiers.
type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierPlus       PlanTier = "plus"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

var validPlanTiers = []PlanTier{
	PlanTierFree,
	PlanTierPlus,
	PlanTierPro,
	PlanTierEnterprise,
}

// IsValid reports whether the value matches the canonical plan tier enum.
func (p PlanTier) IsValid() bool {
	for _, candidate := range validPlanTiers {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanTier converts the raw string to PlanTier.
func ParsePlanTier(value string) (PlanTier, error) {
	for _, candidate := range validPlanTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan tier %q", value)
}
