package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event describes.
type OutboxAggregateType string

const (
	AggregateEntry               OutboxAggregateType = "entry"
	AggregateChangeRequest       OutboxAggregateType = "change_request"
	AggregatePaymentConfirmation OutboxAggregateType = "payment_confirmation"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEntry,
	AggregateChangeRequest,
	AggregatePaymentConfirmation,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a workflow transition published through the outbox.
type OutboxEventType string

const (
	EventChangeRequestCreated        OutboxEventType = "change_request_created"
	EventChangeRequestApproved       OutboxEventType = "change_request_approved"
	EventChangeRequestRejected       OutboxEventType = "change_request_rejected"
	EventPaymentConfirmationCreated  OutboxEventType = "payment_confirmation_created"
	EventPaymentConfirmationApproved OutboxEventType = "payment_confirmation_approved"
	EventPaymentConfirmationRejected OutboxEventType = "payment_confirmation_rejected"
)

var validOutboxEventTypes = []OutboxEventType{
	EventChangeRequestCreated,
	EventChangeRequestApproved,
	EventChangeRequestRejected,
	EventPaymentConfirmationCreated,
	EventPaymentConfirmationApproved,
	EventPaymentConfirmationRejected,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
