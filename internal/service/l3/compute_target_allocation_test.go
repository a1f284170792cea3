package l3_service

import (
	"errors"
	"symphony/internal/domain"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func weightsOf(w map[string]string) domain.WeightMap {
	out := domain.NewWeightMap()
	for symbol, weight := range w {
		out[symbol] = decimal.RequireFromString(weight)
	}
	return out
}

func allocationOf(entries ...string) domain.Allocation {
	out := domain.Allocation{}
	for i := 0; i < len(entries); i += 2 {
		out = append(out, domain.AllocationEntry{
			Symbol: entries[i],
			Weight: decimal.RequireFromString(entries[i+1]),
		})
	}
	return out
}

func TestComputeTargetAllocation(t *testing.T) {
	third := decimal.NewFromInt(1).Div(decimal.NewFromInt(3))

	t.Run("happy path", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   weightsOf(map[string]string{"SLV": "0.3", "GLD": "0.5", "PDBC": "0.2"}),
			Precision: 6,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(allocationOf("GLD", "0.5", "SLV", "0.3", "PDBC", "0.2"), allocation))
	})

	t.Run("largest remainder keeps the sum at one", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   domain.WeightMap{"C": third, "A": third, "B": third},
			Precision: 2,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(allocationOf("A", "0.34", "B", "0.33", "C", "0.33"), allocation))
		require.True(t, allocation.ToWeightMap().Sum().Equal(decimal.NewFromInt(1)))
	})

	t.Run("remainder ties go to the first symbol", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   weightsOf(map[string]string{"Y": "0.875", "X": "0.125"}),
			Precision: 2,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(allocationOf("Y", "0.87", "X", "0.13"), allocation))
	})

	t.Run("larger remainder wins over symbol order", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   weightsOf(map[string]string{"A": "0.124", "B": "0.126", "C": "0.75"}),
			Precision: 2,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(allocationOf("C", "0.75", "B", "0.13", "A", "0.12"), allocation))
	})

	t.Run("entries rounded to zero are dropped", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   domain.WeightMap{"C": third, "A": third, "B": third},
			Precision: 0,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(allocationOf("A", "1"), allocation))
	})

	t.Run("zero and negative weights are pruned", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   weightsOf(map[string]string{"SPY": "1", "BIL": "0"}),
			Precision: 4,
		})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(allocationOf("SPY", "1"), allocation))
	})

	t.Run("weights within tolerance", func(t *testing.T) {
		allocation, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   domain.WeightMap{"A": third, "B": third, "C": third},
			Precision: 16,
		})
		require.NoError(t, err)
		require.Len(t, allocation, 3)
		require.True(t, allocation.ToWeightMap().Sum().Equal(decimal.NewFromInt(1)))
	})

	t.Run("weights off by more than tolerance", func(t *testing.T) {
		_, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   weightsOf(map[string]string{"A": "0.5", "B": "0.4"}),
			Precision: 2,
		})
		mismatchErr := domain.WeightSumMismatchError{}
		require.True(t, errors.As(err, &mismatchErr))
		require.True(t, mismatchErr.Sum.Equal(decimal.RequireFromString("0.9")))
	})

	t.Run("nothing to allocate", func(t *testing.T) {
		_, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
			Weights:   weightsOf(map[string]string{"A": "0"}),
			Precision: 2,
		})
		require.ErrorAs(t, err, &domain.EmptySelectionError{})
	})

	t.Run("precision out of range", func(t *testing.T) {
		for _, precision := range []int{-1, 17} {
			_, err := ComputeTargetAllocation(ComputeTargetAllocationInput{
				Weights:   weightsOf(map[string]string{"A": "1"}),
				Precision: precision,
			})
			require.ErrorContains(t, err, "precision must be between 0 and 16")
		}
	})
}
