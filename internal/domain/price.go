package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetPrice is one daily close.
type AssetPrice struct {
	Symbol string
	Price  decimal.Decimal
	Date   time.Time
}

// Closes extracts the prices of an ascending series.
func Closes(series []AssetPrice) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(series))
	for _, p := range series {
		out = append(out, p.Price)
	}
	return out
}
