package enums

import "fmt"

// PaymentStatus is the settlement state recorded on an entry.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPending marks an entry with an outstanding status change request.
	PaymentStatusPending PaymentStatus = "pending"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPaid,
	PaymentStatusUnpaid,
	PaymentStatusPending,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsSettable reports whether the status may be written directly or proposed by a request.
// The pending sentinel is only ever set by the change request workflow.
func (p PaymentStatus) IsSettable() bool {
	return p == PaymentStatusPaid || p == PaymentStatusUnpaid
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
