package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// PaymentConfirmation asks TargetRole to confirm a payment status change on an entry.
// The seller, product and market columns are display copies taken at creation.
type PaymentConfirmation struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntryID        uuid.UUID           `gorm:"column:entry_id;type:uuid;not null"`
	SellerID       uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	MarketID       uuid.UUID           `gorm:"column:market_id;type:uuid;not null"`
	RequestedBy    uuid.UUID           `gorm:"column:requested_by;type:uuid;not null"`
	TargetRole     enums.ActorRole     `gorm:"column:target_role;type:text;not null"`
	ProposedStatus enums.PaymentStatus `gorm:"column:proposed_status;type:text;not null"`
	CurrentStatus  enums.PaymentStatus `gorm:"column:current_status;type:text;not null"`
	Status         enums.RequestStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	SellerName     string              `gorm:"column:seller_name;not null;default:''"`
	ProductType    string              `gorm:"column:product_type;not null;default:''"`
	Quantity       string              `gorm:"column:quantity;not null;default:''"`
	Price          string              `gorm:"column:price;not null;default:''"`
	MarketName     string              `gorm:"column:market_name;not null;default:''"`
	ReviewedBy     *uuid.UUID          `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt     *time.Time          `gorm:"column:reviewed_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}
