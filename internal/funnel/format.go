package funnel

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder is rendered for values that cannot be displayed.
const Placeholder = "—"

var printer = message.NewPrinter(language.English)

// Percentage returns num/den*100, or 0 when den is not positive.
func Percentage(num, den float64) float64 {
	if den > 0 {
		return num / den * 100
	}
	return 0
}

func invalid(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// roundTo rounds to the given number of decimals with halves going up
// (-2.5 → -2, 2.5 → 3).
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	// adding +0 normalizes negative zero
	return math.Floor(v*p+0.5)/p + 0
}

// FormatCurrency renders compact dollar amounts: $1.5M, $50K, $5,432, $500.
func FormatCurrency(v float64) string {
	if invalid(v) {
		return Placeholder
	}
	abs := math.Abs(v)
	switch {
	case abs >= 1e6:
		return fmt.Sprintf("$%.1fM", roundTo(v/1e6, 1))
	case abs >= 1e4:
		return fmt.Sprintf("$%.0fK", roundTo(v/1e3, 0))
	case abs >= 1000:
		return "$" + FormatAmount(v)
	default:
		return fmt.Sprintf("$%.0f", roundTo(v, 0))
	}
}

// FormatNumber renders an integer with thousands separators.
func FormatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatAmount rounds v to an integer and renders it with thousands
// separators, without a currency symbol.
func FormatAmount(v float64) string {
	if invalid(v) {
		return Placeholder
	}
	r := roundTo(v, 0)
	if math.Abs(r) >= maxExactInt {
		return printer.Sprint(number.Decimal(r, number.MaxFractionDigits(0)))
	}
	return printer.Sprintf("%d", int64(r))
}

// maxExactInt is 2^53; beyond it float64 no longer holds every integer and
// int64 conversion eventually overflows.
const maxExactInt = 1 << 53

// FormatPercent renders v with one decimal and a percent sign.
func FormatPercent(v float64) string {
	if invalid(v) {
		return Placeholder
	}
	return fmt.Sprintf("%.1f%%", roundTo(v, 1))
}

// Band classifies a metric against benchmark thresholds.
type Band string

const (
	BandPositive Band = "positive"
	BandNeutral  Band = "neutral"
	BandNegative Band = "negative"
)

func band(v, green, red float64) Band {
	if v > green {
		return BandPositive
	}
	if v < red {
		return BandNegative
	}
	return BandNeutral
}

// MeetingRateBand colors a meeting rate percentage.
func (t Thresholds) MeetingRateBand(rate float64) Band {
	return band(rate, t.MeetingRateGreen, t.MeetingRateRed)
}

// PipelinePerTouchBand colors a pipeline-per-touch amount.
func (t Thresholds) PipelinePerTouchBand(ppt float64) Band {
	return band(ppt, t.PipelinePerTouchGreen, t.PipelinePerTouchRed)
}

// MeetingToOppBand colors a meeting to opportunity percentage.
func (t Thresholds) MeetingToOppBand(rate float64) Band {
	return band(rate, t.MeetingToOppGreen, t.MeetingToOppRed)
}
