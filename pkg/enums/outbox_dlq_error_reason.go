package enums

import "fmt"

// OutboxDLQErrorReason records why a workflow event left the outbox for the DLQ.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUnroutable: no topic or publisher exists for the event type.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
	// OutboxDLQReasonNonRetryable: Pub/Sub refused the message permanently.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)

var outboxDLQErrorReasons = map[OutboxDLQErrorReason]struct{}{
	OutboxDLQReasonUnroutable:   {},
	OutboxDLQReasonNonRetryable: {},
	OutboxDLQReasonMaxAttempts:  {},
}

func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	_, ok := outboxDLQErrorReasons[r]
	return ok
}

// ParseOutboxDLQErrorReason converts a stored reason back into the enum.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	reason := OutboxDLQErrorReason(value)
	if !reason.IsValid() {
		return "", fmt.Errorf("invalid outbox dlq reason %q", value)
	}
	return reason, nil
}
