package l3_service

import (
	"fmt"
	"sort"
	"symphony/internal/domain"

	"github.com/shopspring/decimal"
)

const MaxPrecision = 16

type ComputeTargetAllocationInput struct {
	Weights domain.WeightMap
	// Precision is the number of decimal places each final weight keeps.
	Precision int
}

type allocationUnits struct {
	symbol    string
	units     decimal.Decimal
	remainder decimal.Decimal
}

// ComputeTargetAllocation turns the evaluated weights into the final
// allocation. Weights are rounded to 10^-precision by largest remainder, so
// the rounded weights still sum to exactly 1.
func ComputeTargetAllocation(in ComputeTargetAllocationInput) (domain.Allocation, error) {
	if in.Precision < 0 || in.Precision > MaxPrecision {
		return nil, fmt.Errorf("precision must be between 0 and %d, got %d", MaxPrecision, in.Precision)
	}

	weights := in.Weights.Pruned()
	if len(weights) == 0 {
		return nil, domain.EmptySelectionError{Node: "root", Reason: "no positive weights"}
	}
	sum := weights.Sum()
	if !weights.SumsToOne(domain.WeightTolerance) {
		return nil, domain.WeightSumMismatchError{
			Sum:       sum,
			Tolerance: domain.WeightTolerance,
		}
	}

	total := decimal.New(1, int32(in.Precision))
	entries := make([]allocationUnits, 0, len(weights))
	assigned := decimal.Zero
	for _, symbol := range weights.Symbols() {
		exact := weights[symbol].Mul(total).Div(sum)
		units := exact.Floor()
		entries = append(entries, allocationUnits{
			symbol:    symbol,
			units:     units,
			remainder: exact.Sub(units),
		})
		assigned = assigned.Add(units)
	}

	// hand out the leftover units to the largest remainders, ties going to
	// the alphabetically first symbol
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].remainder.Equal(entries[j].remainder) {
			return entries[i].remainder.GreaterThan(entries[j].remainder)
		}
		return entries[i].symbol < entries[j].symbol
	})
	deficit := total.Sub(assigned).IntPart()
	one := decimal.NewFromInt(1)
	for i := int64(0); i < deficit; i++ {
		e := &entries[i%int64(len(entries))]
		e.units = e.units.Add(one)
	}
	// only reachable through rounding noise in the division above
	for i := int64(0); i < -deficit; i++ {
		for j := len(entries) - 1; j >= 0; j-- {
			if entries[j].units.IsPositive() {
				entries[j].units = entries[j].units.Sub(one)
				break
			}
		}
	}

	out := domain.Allocation{}
	for _, e := range entries {
		if !e.units.IsPositive() {
			continue
		}
		out = append(out, domain.AllocationEntry{
			Symbol: e.symbol,
			Weight: e.units.Shift(int32(-in.Precision)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Weight.Equal(out[j].Weight) {
			return out[i].Weight.GreaterThan(out[j].Weight)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}
