package funnel

import "math"

// Signal is a qualitative strength of efficiency variance.
type Signal string

const (
	SignalStrong   Signal = "strong"
	SignalModerate Signal = "moderate"
	SignalLow      Signal = "low"
)

// VarianceResult compares the best and worst pipeline-per-touch segments.
type VarianceResult struct {
	Ratio  float64 `json:"ratio" yaml:"ratio"`
	Signal Signal  `json:"signal" yaml:"signal"`
}

// Classify uses default cutoffs with the given minimum touches. The minimum
// is taken as is; 0 lets every segment qualify.
func Classify(rows []FunnelRow, minTouches int) *VarianceResult {
	return DefaultThresholds().classify(rows, minTouches)
}

// Classify rates how much pipeline per touch varies across segments with
// enough touches. It returns nil with fewer than two qualifying segments or
// when none has positive pipeline per touch.
func (t Thresholds) Classify(rows []FunnelRow) *VarianceResult {
	t = t.WithDefaults()
	return t.classify(rows, t.VarianceMinTouches)
}

func (t Thresholds) classify(rows []FunnelRow, minTouches int) *VarianceResult {
	var rates []float64
	for _, r := range rows {
		if r.Touches >= minTouches {
			rates = append(rates, r.PipelinePerTouch)
		}
	}
	if len(rates) < 2 {
		return nil
	}

	maxRate := math.Inf(-1)
	minPositive := math.Inf(1)
	for _, v := range rates {
		maxRate = math.Max(maxRate, v)
		if v > 0 {
			minPositive = math.Min(minPositive, v)
		}
	}
	if math.IsInf(minPositive, 1) {
		return nil
	}

	ratio := roundTo(maxRate/minPositive, 1)
	res := &VarianceResult{Ratio: ratio, Signal: SignalLow}
	switch {
	case ratio >= t.VarianceStrong:
		res.Signal = SignalStrong
	case ratio >= t.VarianceModerate:
		res.Signal = SignalModerate
	}
	return res
}

// ConcentrationRisk returns the top segment when its pipeline share exceeds
// threshold (a fraction, e.g. 0.5). Rows must be sorted by pipeline descending
// as Analyze returns them.
func ConcentrationRisk(rows []FunnelRow, threshold float64) (FunnelRow, bool) {
	if len(rows) == 0 {
		return FunnelRow{}, false
	}
	top := rows[0]
	if top.PipelineShare > threshold*100 {
		return top, true
	}
	return FunnelRow{}, false
}
