package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Entry is a transaction a seller recorded with a market.
type Entry struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	SellerName        string              `gorm:"column:seller_name;not null;default:''"`
	MarketID          uuid.UUID           `gorm:"column:market_id;type:uuid;not null"`
	MarketName        string              `gorm:"column:market_name;not null"`
	CounterpartyPhone string              `gorm:"column:counterparty_phone;not null;default:''"`
	ProductType       string              `gorm:"column:product_type;not null"`
	Quantity          string              `gorm:"column:quantity;not null"`
	Price             string              `gorm:"column:price;not null"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	RecordDate        time.Time           `gorm:"column:record_date;type:date;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
