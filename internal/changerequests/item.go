package changerequests

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

// Item is the API shape of a change request.
type Item struct {
	ID             uuid.UUID               `json:"id"`
	EntryID        uuid.UUID               `json:"entry_id"`
	SellerID       uuid.UUID               `json:"seller_id"`
	MarketID       uuid.UUID               `json:"market_id"`
	RequestedBy    uuid.UUID               `json:"requested_by"`
	Origin         enums.ActorRole         `json:"origin"`
	Kind           enums.ChangeRequestKind `json:"kind"`
	ProposedStatus *enums.PaymentStatus    `json:"proposed_status,omitempty"`
	CurrentStatus  *enums.PaymentStatus    `json:"current_status,omitempty"`
	Status         enums.RequestStatus     `json:"status"`
	CreatedAt      time.Time               `json:"created_at"`
	ResolvedBy     *uuid.UUID              `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time              `json:"resolved_at,omitempty"`
}

func ToItem(m models.ChangeRequest) Item {
	return Item{
		ID:             m.ID,
		EntryID:        m.EntryID,
		SellerID:       m.SellerID,
		MarketID:       m.MarketID,
		RequestedBy:    m.RequestedBy,
		Origin:         m.Origin,
		Kind:           m.Kind,
		ProposedStatus: m.ProposedStatus,
		CurrentStatus:  m.CurrentStatus,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		ResolvedBy:     m.ResolvedBy,
		ResolvedAt:     m.ResolvedAt,
	}
}

func ToItems(rows []models.ChangeRequest) []Item {
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = ToItem(row)
	}
	return items
}

func toEvent(m *models.ChangeRequest) payloads.ChangeRequestEvent {
	return payloads.ChangeRequestEvent{
		RequestID:      m.ID,
		EntryID:        m.EntryID,
		SellerID:       m.SellerID,
		MarketID:       m.MarketID,
		RequestedBy:    m.RequestedBy,
		Origin:         m.Origin,
		Kind:           m.Kind,
		ProposedStatus: m.ProposedStatus,
		PriorStatus:    m.CurrentStatus,
		Status:         m.Status,
		ResolvedBy:     m.ResolvedBy,
		ResolvedAt:     m.ResolvedAt,
	}
}
