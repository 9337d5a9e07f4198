package enums

import "fmt"

// PlanType identifies a fixed entry in the plan catalog.
type PlanType string

const (
	PlanTypeStarter  PlanType = "starter"
	PlanTypeRising   PlanType = "rising"
	PlanTypePro      PlanType = "pro"
	PlanTypeBusiness PlanType = "business"
)

var validPlanTypes = []PlanType{
	PlanTypeStarter,
	PlanTypeRising,
	PlanTypePro,
	PlanTypeBusiness,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanType converts raw input into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	for _, candidate := range validPlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}
