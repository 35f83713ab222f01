package entries

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// ListResult is one page of entries plus the cursor for the next page.
type ListResult struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor"`
}

// Item is the API shape of an entry.
type Item struct {
	ID                uuid.UUID           `json:"id"`
	SellerID          uuid.UUID           `json:"seller_id"`
	SellerName        string              `json:"seller_name"`
	MarketID          uuid.UUID           `json:"market_id"`
	MarketName        string              `json:"market"`
	CounterpartyPhone string              `json:"phone"`
	ProductType       string              `json:"product"`
	Quantity          string              `json:"quantity"`
	Price             string              `json:"price"`
	Amount            decimal.Decimal     `json:"amount"`
	PaymentStatus     enums.PaymentStatus `json:"status"`
	RecordDate        string              `json:"date"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// ToItem converts a stored entry into its API shape.
func ToItem(m models.Entry) Item {
	return Item{
		ID:                m.ID,
		SellerID:          m.SellerID,
		SellerName:        m.SellerName,
		MarketID:          m.MarketID,
		MarketName:        m.MarketName,
		CounterpartyPhone: m.CounterpartyPhone,
		ProductType:       m.ProductType,
		Quantity:          m.Quantity,
		Price:             m.Price,
		Amount:            m.Amount,
		PaymentStatus:     m.PaymentStatus,
		RecordDate:        m.RecordDate.Format(DateLayout),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toItems(rows []models.Entry) []Item {
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = ToItem(row)
	}
	return items
}

func nextCursor(rows []models.Entry, limit int) ([]models.Entry, string) {
	return pkgpagination.Trim(rows, limit, func(e models.Entry) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
}
