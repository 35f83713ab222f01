package paymentconfirmations

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

// Item is the API shape of a payment confirmation, display fields included.
type Item struct {
	ID             uuid.UUID           `json:"id"`
	EntryID        uuid.UUID           `json:"entry_id"`
	SellerID       uuid.UUID           `json:"seller_id"`
	MarketID       uuid.UUID           `json:"market_id"`
	RequestedBy    uuid.UUID           `json:"requested_by"`
	TargetRole     enums.ActorRole     `json:"target_role"`
	ProposedStatus enums.PaymentStatus `json:"proposed_status"`
	CurrentStatus  enums.PaymentStatus `json:"current_status"`
	Status         enums.RequestStatus `json:"status"`
	SellerName     string              `json:"seller_name"`
	ProductType    string              `json:"product"`
	Quantity       string              `json:"quantity"`
	Price          string              `json:"price"`
	MarketName     string              `json:"market"`
	ReviewedBy     *uuid.UUID          `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func ToItem(m models.PaymentConfirmation) Item {
	return Item{
		ID:             m.ID,
		EntryID:        m.EntryID,
		SellerID:       m.SellerID,
		MarketID:       m.MarketID,
		RequestedBy:    m.RequestedBy,
		TargetRole:     m.TargetRole,
		ProposedStatus: m.ProposedStatus,
		CurrentStatus:  m.CurrentStatus,
		Status:         m.Status,
		SellerName:     m.SellerName,
		ProductType:    m.ProductType,
		Quantity:       m.Quantity,
		Price:          m.Price,
		MarketName:     m.MarketName,
		ReviewedBy:     m.ReviewedBy,
		ReviewedAt:     m.ReviewedAt,
		CreatedAt:      m.CreatedAt,
	}
}

func ToItems(rows []models.PaymentConfirmation) []Item {
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = ToItem(row)
	}
	return items
}

func toEvent(m *models.PaymentConfirmation) payloads.PaymentConfirmationEvent {
	return payloads.PaymentConfirmationEvent{
		ConfirmationID: m.ID,
		EntryID:        m.EntryID,
		SellerID:       m.SellerID,
		MarketID:       m.MarketID,
		RequestedBy:    m.RequestedBy,
		TargetRole:     m.TargetRole,
		ProposedStatus: m.ProposedStatus,
		PriorStatus:    m.CurrentStatus,
		Status:         m.Status,
		ReviewedBy:     m.ReviewedBy,
		ReviewedAt:     m.ReviewedAt,
	}
}
