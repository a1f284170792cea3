package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AllocationEntry struct {
	Symbol string          `json:"symbol"`
	Weight decimal.Decimal `json:"weight"`
}

// Allocation is a final target allocation, sorted by weight descending and
// then by symbol.
type Allocation []AllocationEntry

func (a Allocation) ToWeightMap() WeightMap {
	out := NewWeightMap()
	for _, entry := range a {
		out.Add(entry.Symbol, entry.Weight)
	}
	return out
}

func (a Allocation) Symbols() []string {
	out := make([]string, 0, len(a))
	for _, entry := range a {
		out = append(out, entry.Symbol)
	}
	return out
}

// AllocationOnDay is one entry of a multi-date evaluation. Err is set instead
// of Allocation when the strategy could not be evaluated on Date.
type AllocationOnDay struct {
	Date       time.Time
	Allocation Allocation
	Err        error
}
