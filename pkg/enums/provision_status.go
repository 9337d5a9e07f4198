package enums

import "fmt"

// ProvisionStatus tracks the subscription provisioning saga for a payment.
type ProvisionStatus string

const (
	ProvisionStatusPending   ProvisionStatus = "pending"
	ProvisionStatusCompleted ProvisionStatus = "completed"
	ProvisionStatusFailed    ProvisionStatus = "failed"
)

var validProvisionStatuses = []ProvisionStatus{
	ProvisionStatusPending,
	ProvisionStatusCompleted,
	ProvisionStatusFailed,
}

// String implements fmt.Stringer.
func (p ProvisionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p ProvisionStatus) IsValid() bool {
	for _, candidate := range validProvisionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvisionStatus converts raw input into a ProvisionStatus.
func ParseProvisionStatus(value string) (ProvisionStatus, error) {
	for _, candidate := range validProvisionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provision status %q", value)
}
