package util

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSampleTradingDays(t *testing.T) {
	days := []time.Time{
		NewDate(2024, 1, 29),
		NewDate(2024, 1, 30),
		NewDate(2024, 1, 31),
		NewDate(2024, 2, 1),
		NewDate(2024, 2, 2),
		NewDate(2024, 2, 5),
	}

	t.Run("daily keeps everything", func(t *testing.T) {
		require.Equal(t, "", cmp.Diff(days, SampleTradingDays(days, SampleDaily)))
	})

	t.Run("weekly keeps last day of each week", func(t *testing.T) {
		require.Equal(
			t,
			"",
			cmp.Diff(
				[]time.Time{NewDate(2024, 2, 2), NewDate(2024, 2, 5)},
				SampleTradingDays(days, SampleWeekly),
			),
		)
	})

	t.Run("monthly keeps last day of each month", func(t *testing.T) {
		require.Equal(
			t,
			"",
			cmp.Diff(
				[]time.Time{NewDate(2024, 1, 31), NewDate(2024, 2, 5)},
				SampleTradingDays(days, SampleMonthly),
			),
		)
	})
}

func TestNewSamplingInterval(t *testing.T) {
	interval, err := NewSamplingInterval("Weekly")
	require.NoError(t, err)
	require.Equal(t, SampleWeekly, interval)

	_, err = NewSamplingInterval("hourly")
	require.Error(t, err)
}
