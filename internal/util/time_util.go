package util

import (
	"fmt"
	"strings"
	"time"
)

func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DateOnly drops the clock part so dates compare by calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func DateLte(t1, t2 time.Time) bool {
	return t1.Before(t2) || t1.Format(time.DateOnly) == t2.Format(time.DateOnly)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return d, nil
}

type SamplingInterval string

const (
	SampleDaily   SamplingInterval = "daily"
	SampleWeekly  SamplingInterval = "weekly"
	SampleMonthly SamplingInterval = "monthly"
)

func NewSamplingInterval(s string) (SamplingInterval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily":
		return SampleDaily, nil
	case "weekly":
		return SampleWeekly, nil
	case "monthly":
		return SampleMonthly, nil
	}
	return "", fmt.Errorf("unknown sampling interval %q", s)
}

// SampleTradingDays keeps the last trading day of each week or month. Daily
// sampling keeps every day. Input must be ascending.
func SampleTradingDays(tradingDays []time.Time, interval SamplingInterval) []time.Time {
	if interval == SampleDaily || len(tradingDays) == 0 {
		out := make([]time.Time, len(tradingDays))
		copy(out, tradingDays)
		return out
	}

	bucket := func(t time.Time) string {
		if interval == SampleWeekly {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%d-%d", y, w)
		}
		return t.Format("2006-01")
	}

	out := []time.Time{}
	for i, day := range tradingDays {
		if i == len(tradingDays)-1 || bucket(tradingDays[i+1]) != bucket(day) {
			out = append(out, day)
		}
	}
	return out
}
