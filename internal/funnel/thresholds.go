package funnel

// Thresholds holds the tunable constants used across detection, aggregation
// and classification. The zero value is not useful; start from DefaultThresholds.
type Thresholds struct {
	// SampleSize bounds how many leading rows column detection inspects.
	SampleSize int `mapstructure:"sample_size" yaml:"sample_size" json:"sample_size"`
	// DimensionMinUnique and DimensionMaxUnique bound the distinct-value count
	// of a categorical column (inclusive).
	DimensionMinUnique int `mapstructure:"dimension_min_unique" yaml:"dimension_min_unique" json:"dimension_min_unique"`
	DimensionMaxUnique int `mapstructure:"dimension_max_unique" yaml:"dimension_max_unique" json:"dimension_max_unique"`
	// DropOffMinSegments and DropOffMaxSegments bound the number of keys a
	// dimension breakdown needs to be reported.
	DropOffMinSegments int `mapstructure:"dropoff_min_segments" yaml:"dropoff_min_segments" json:"dropoff_min_segments"`
	DropOffMaxSegments int `mapstructure:"dropoff_max_segments" yaml:"dropoff_max_segments" json:"dropoff_max_segments"`

	VarianceMinTouches int     `mapstructure:"variance_min_touches" yaml:"variance_min_touches" json:"variance_min_touches"`
	VarianceStrong     float64 `mapstructure:"variance_strong" yaml:"variance_strong" json:"variance_strong"`
	VarianceModerate   float64 `mapstructure:"variance_moderate" yaml:"variance_moderate" json:"variance_moderate"`

	// RecoveryRate is the assumed share of not-converted engaged contacts
	// that follow-up could turn into meetings.
	RecoveryRate float64 `mapstructure:"recovery_rate" yaml:"recovery_rate" json:"recovery_rate"`
	// ConcentrationRisk is the pipeline-share fraction above which the top
	// segment is flagged.
	ConcentrationRisk float64 `mapstructure:"concentration_risk" yaml:"concentration_risk" json:"concentration_risk"`

	MeetingRateGreen      float64 `mapstructure:"meeting_rate_green" yaml:"meeting_rate_green" json:"meeting_rate_green"`
	MeetingRateRed        float64 `mapstructure:"meeting_rate_red" yaml:"meeting_rate_red" json:"meeting_rate_red"`
	PipelinePerTouchGreen float64 `mapstructure:"pipeline_per_touch_green" yaml:"pipeline_per_touch_green" json:"pipeline_per_touch_green"`
	PipelinePerTouchRed   float64 `mapstructure:"pipeline_per_touch_red" yaml:"pipeline_per_touch_red" json:"pipeline_per_touch_red"`
	MeetingToOppGreen     float64 `mapstructure:"meeting_to_opp_green" yaml:"meeting_to_opp_green" json:"meeting_to_opp_green"`
	MeetingToOppRed       float64 `mapstructure:"meeting_to_opp_red" yaml:"meeting_to_opp_red" json:"meeting_to_opp_red"`

	// SummaryDimensions caps the breakdown sections in the narrative:
	// interaction status first, then at most SummaryDimensions-1 free dimensions.
	SummaryDimensions int `mapstructure:"summary_dimensions" yaml:"summary_dimensions" json:"summary_dimensions"`
	// MaxContextLength is the character ceiling callers enforce on the narrative.
	MaxContextLength int `mapstructure:"max_context_length" yaml:"max_context_length" json:"max_context_length"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SampleSize:            100,
		DimensionMinUnique:    2,
		DimensionMaxUnique:    40,
		DropOffMinSegments:    2,
		DropOffMaxSegments:    15,
		VarianceMinTouches:    20,
		VarianceStrong:        3,
		VarianceModerate:      1.5,
		RecoveryRate:          0.10,
		ConcentrationRisk:     0.5,
		MeetingRateGreen:      15,
		MeetingRateRed:        5,
		PipelinePerTouchGreen: 10000,
		PipelinePerTouchRed:   2000,
		MeetingToOppGreen:     70,
		MeetingToOppRed:       50,
		SummaryDimensions:     5,
		MaxContextLength:      200000,
	}
}

// WithDefaults fills zero fields from DefaultThresholds so partially
// populated configs behave sensibly.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.SampleSize <= 0 {
		t.SampleSize = d.SampleSize
	}
	if t.DimensionMinUnique <= 0 {
		t.DimensionMinUnique = d.DimensionMinUnique
	}
	if t.DimensionMaxUnique <= 0 {
		t.DimensionMaxUnique = d.DimensionMaxUnique
	}
	if t.DropOffMinSegments <= 0 {
		t.DropOffMinSegments = d.DropOffMinSegments
	}
	if t.DropOffMaxSegments <= 0 {
		t.DropOffMaxSegments = d.DropOffMaxSegments
	}
	if t.VarianceMinTouches <= 0 {
		t.VarianceMinTouches = d.VarianceMinTouches
	}
	if t.VarianceStrong <= 0 {
		t.VarianceStrong = d.VarianceStrong
	}
	if t.VarianceModerate <= 0 {
		t.VarianceModerate = d.VarianceModerate
	}
	if t.RecoveryRate <= 0 {
		t.RecoveryRate = d.RecoveryRate
	}
	if t.ConcentrationRisk <= 0 {
		t.ConcentrationRisk = d.ConcentrationRisk
	}
	if t.MeetingRateGreen == 0 && t.MeetingRateRed == 0 {
		t.MeetingRateGreen, t.MeetingRateRed = d.MeetingRateGreen, d.MeetingRateRed
	}
	if t.PipelinePerTouchGreen == 0 && t.PipelinePerTouchRed == 0 {
		t.PipelinePerTouchGreen, t.PipelinePerTouchRed = d.PipelinePerTouchGreen, d.PipelinePerTouchRed
	}
	if t.MeetingToOppGreen == 0 && t.MeetingToOppRed == 0 {
		t.MeetingToOppGreen, t.MeetingToOppRed = d.MeetingToOppGreen, d.MeetingToOppRed
	}
	if t.SummaryDimensions <= 0 {
		t.SummaryDimensions = d.SummaryDimensions
	}
	if t.MaxContextLength <= 0 {
		t.MaxContextLength = d.MaxContextLength
	}
	return t
}
