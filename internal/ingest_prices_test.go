package internal

import (
	"symphony/internal/db/models/postgres/public/model"
	"symphony/internal/domain"
	"symphony/internal/util"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func Test_ingestStart(t *testing.T) {
	start := util.NewDate(2020, 1, 1)

	t.Run("nothing stored", func(t *testing.T) {
		require.Equal(t, start, ingestStart(nil, start))
		require.Equal(t, DefaultIngestStart, ingestStart(nil, time.Time{}))
	})

	t.Run("resumes after the latest close", func(t *testing.T) {
		latest := util.NewDate(2024, 3, 1)
		require.Equal(t, util.NewDate(2024, 3, 2), ingestStart(&latest, start))
	})

	t.Run("explicit start after the latest close", func(t *testing.T) {
		latest := util.NewDate(2019, 6, 3)
		require.Equal(t, start, ingestStart(&latest, start))
	})
}

func Test_newAdjustedPriceModels(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	day := util.NewDate(2024, 3, 1)

	models := newAdjustedPriceModels([]domain.AssetPrice{
		{Symbol: "spy", Date: day.AddDate(0, 0, -1), Price: decimal.NewFromInt(100)},
		{Symbol: "spy", Date: day, Price: decimal.NewFromInt(101)},
		{Symbol: "spy", Date: day.Add(15 * time.Hour), Price: decimal.NewFromInt(102)},
		{Symbol: "spy", Date: day.AddDate(0, 0, 3), Price: decimal.Zero},
	}, now)

	require.Equal(t, "", cmp.Diff([]model.AdjustedPrice{
		{Symbol: "SPY", Date: day.AddDate(0, 0, -1), Price: decimal.NewFromInt(100), CreatedAt: now},
		{Symbol: "SPY", Date: day, Price: decimal.NewFromInt(102), CreatedAt: now},
	}, models, cmpopts.IgnoreFields(model.AdjustedPrice{}, "AdjustedPriceID")))
}
