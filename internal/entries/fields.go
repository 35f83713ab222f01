package entries

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of record dates.
const DateLayout = "2006-01-02"

// UI field names accepted by Update mapped onto entry columns.
var fieldColumns = map[string]string{
	"market":   "market_name",
	"phone":    "counterparty_phone",
	"product":  "product_type",
	"quantity": "quantity",
	"price":    "price",
	"status":   "payment_status",
	"date":     "record_date",
}

// ColumnFor returns the storage column behind a UI field name.
func ColumnFor(field string) (string, bool) {
	col, ok := fieldColumns[field]
	return col, ok
}

// AmountFromPrice keeps the digits of a locale formatted price. An empty result is zero.
func AmountFromPrice(price string) decimal.Decimal {
	var b strings.Builder
	for _, r := range price {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// ParseDate parses a record date in DateLayout.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

func today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
