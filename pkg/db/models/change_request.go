package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// ChangeRequest is a mutation to an entry proposed by the side that does not own it.
// SellerID is copied from the entry at creation so resolution authority survives a delete.
type ChangeRequest struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntryID        uuid.UUID               `gorm:"column:entry_id;type:uuid;not null"`
	SellerID       uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	MarketID       uuid.UUID               `gorm:"column:market_id;type:uuid;not null"`
	RequestedBy    uuid.UUID               `gorm:"column:requested_by;type:uuid;not null"`
	Origin         enums.ActorRole         `gorm:"column:origin;type:text;not null"`
	Kind           enums.ChangeRequestKind `gorm:"column:kind;type:text;not null"`
	ProposedStatus *enums.PaymentStatus    `gorm:"column:proposed_status;type:text"`
	CurrentStatus  *enums.PaymentStatus    `gorm:"column:current_status;type:text"`
	Status         enums.RequestStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	ResolvedBy     *uuid.UUID              `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt     *time.Time              `gorm:"column:resolved_at"`
}
