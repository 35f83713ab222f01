package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// ChangeRequestEvent describes a change request after a workflow transition.
type ChangeRequestEvent struct {
	RequestID      uuid.UUID               `json:"requestId"`
	EntryID        uuid.UUID               `json:"entryId"`
	SellerID       uuid.UUID               `json:"sellerId"`
	MarketID       uuid.UUID               `json:"marketId"`
	RequestedBy    uuid.UUID               `json:"requestedBy"`
	Origin         enums.ActorRole         `json:"origin"`
	Kind           enums.ChangeRequestKind `json:"kind"`
	ProposedStatus *enums.PaymentStatus    `json:"proposedStatus,omitempty"`
	PriorStatus    *enums.PaymentStatus    `json:"priorStatus,omitempty"`
	Status         enums.RequestStatus     `json:"status"`
	ResolvedBy     *uuid.UUID              `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time              `json:"resolvedAt,omitempty"`
}

// PaymentConfirmationEvent describes a payment confirmation after a workflow transition.
type PaymentConfirmationEvent struct {
	ConfirmationID uuid.UUID           `json:"confirmationId"`
	EntryID        uuid.UUID           `json:"entryId"`
	SellerID       uuid.UUID           `json:"sellerId"`
	MarketID       uuid.UUID           `json:"marketId"`
	RequestedBy    uuid.UUID           `json:"requestedBy"`
	TargetRole     enums.ActorRole     `json:"targetRole"`
	ProposedStatus enums.PaymentStatus `json:"proposedStatus"`
	PriorStatus    enums.PaymentStatus `json:"priorStatus"`
	Status         enums.RequestStatus `json:"status"`
	ReviewedBy     *uuid.UUID          `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time          `json:"reviewedAt,omitempty"`
}
