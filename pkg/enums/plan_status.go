package enums

import "fmt"

// PlanStatus controls whether a plan is offered to subscribers.
type PlanStatus string

const (
	PlanStatusActive PlanStatus = "active"
	PlanStatusHidden PlanStatus = "hidden"
)

var validPlanStatuses = []PlanStatus{
	PlanStatusActive,
	PlanStatusHidden,
}

// IsValid reports whether the value matches the canonical plan status enum.
func (p PlanStatus) IsValid() bool {
	for _, candidate := range validPlanStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanStatus converts the raw string to PlanStatus.
func ParsePlanStatus(value string) (PlanStatus, error) {
	for _, candidate := range validPlanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan status %q", value)
}
