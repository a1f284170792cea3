package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// WeightTolerance is how far a final allocation may drift from summing to 1.
var WeightTolerance = decimal.New(1, -9)

// WeightMap maps normalized tickers to weights.
type WeightMap map[string]decimal.Decimal

func NewWeightMap() WeightMap {
	return WeightMap{}
}

func SingleWeight(ticker string) WeightMap {
	return WeightMap{NormalizeTicker(ticker): decimal.NewFromInt(1)}
}

func (w WeightMap) Add(ticker string, weight decimal.Decimal) {
	symbol := NormalizeTicker(ticker)
	if existing, ok := w[symbol]; ok {
		w[symbol] = existing.Add(weight)
		return
	}
	w[symbol] = weight
}

// Merge adds every weight of other, multiplied by scale, into w.
func (w WeightMap) Merge(other WeightMap, scale decimal.Decimal) {
	for symbol, weight := range other {
		w.Add(symbol, weight.Mul(scale))
	}
}

func (w WeightMap) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, symbol := range w.Symbols() {
		sum = sum.Add(w[symbol])
	}
	return sum
}

func (w WeightMap) Copy() WeightMap {
	out := make(WeightMap, len(w))
	for symbol, weight := range w {
		out[symbol] = weight
	}
	return out
}

// Symbols returns the keys in ascending order.
func (w WeightMap) Symbols() []string {
	symbols := make([]string, 0, len(w))
	for symbol := range w {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Pruned drops zero and negative entries.
func (w WeightMap) Pruned() WeightMap {
	out := make(WeightMap, len(w))
	for symbol, weight := range w {
		if weight.IsPositive() {
			out[symbol] = weight
		}
	}
	return out
}

// Normalized rescales a copy of w so the weights sum to 1. The caller decides
// what an empty map means, so a non-positive sum is reported with ok=false.
func (w WeightMap) Normalized() (WeightMap, bool) {
	sum := w.Sum()
	if !sum.IsPositive() {
		return nil, false
	}
	if sum.Equal(decimal.NewFromInt(1)) {
		return w.Copy(), true
	}
	out := make(WeightMap, len(w))
	for symbol, weight := range w {
		out[symbol] = weight.Div(sum)
	}
	return out, true
}

func (w WeightMap) SumsToOne(tolerance decimal.Decimal) bool {
	return w.Sum().Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(tolerance)
}

func (w WeightMap) Equal(other WeightMap) bool {
	if len(w) != len(other) {
		return false
	}
	for symbol, weight := range w {
		o, ok := other[symbol]
		if !ok || !o.Equal(weight) {
			return false
		}
	}
	return true
}
