package funnel

import (
	"math"
	"sort"
	"strings"
)

// SegmentCount is one key of a drop-off breakdown.
type SegmentCount struct {
	Key   string `json:"key" yaml:"key"`
	Count int    `json:"count" yaml:"count"`
}

// Breakdown counts not-converted engaged contacts per segment. Counts keep
// discovery order.
type Breakdown struct {
	Label  string         `json:"label" yaml:"label"`
	Counts []SegmentCount `json:"counts" yaml:"counts"`
	Total  int            `json:"total" yaml:"total"`
}

// Sorted returns the counts ordered by count descending; ties keep
// discovery order.
func (b Breakdown) Sorted() []SegmentCount {
	out := append([]SegmentCount(nil), b.Counts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// DropOffResult describes engaged contacts that never booked a meeting.
type DropOffResult struct {
	Attended   int         `json:"attended" yaml:"attended"`
	NoMeeting  int         `json:"no_meeting" yaml:"no_meeting"`
	Breakdowns []Breakdown `json:"breakdowns" yaml:"breakdowns"`
}

// NoMeetingRate is the share of engaged contacts that did not convert.
func (d *DropOffResult) NoMeetingRate() float64 {
	if d == nil {
		return 0
	}
	return Percentage(float64(d.NoMeeting), float64(d.Attended))
}

// IsEngaged reports whether an interaction status shows real engagement.
func IsEngaged(status string) bool {
	return containsAny(strings.ToLower(status), "attended", "visited", "badge")
}

func countSegments(rows []Row, column string) []SegmentCount {
	var out []SegmentCount
	index := make(map[string]int)
	for _, r := range rows {
		key := r[column]
		if key == "" {
			key = BlankSegment
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, SegmentCount{Key: key})
		}
		out[i].Count++
	}
	return out
}

// AnalyzeDropOff uses default thresholds.
func AnalyzeDropOff(rows []Row, cols DetectedColumns) *DropOffResult {
	return DefaultThresholds().AnalyzeDropOff(rows, cols)
}

// AnalyzeDropOff finds engaged contacts without a booked meeting and breaks
// them down by channel and by each free dimension with a reportable number of
// segments. It returns nil when the interaction status or meeting-booked
// column is unknown.
func (t Thresholds) AnalyzeDropOff(rows []Row, cols DetectedColumns) *DropOffResult {
	t = t.WithDefaults()
	status, ok := cols.Column(RoleInteractionStatus)
	if !ok {
		return nil
	}
	meeting, ok := cols.Column(RoleMeetingBooked)
	if !ok {
		return nil
	}

	var attended, noMeeting []Row
	for _, r := range rows {
		if !IsEngaged(r[status]) {
			continue
		}
		attended = append(attended, r)
		if !IsAffirmative(r[meeting]) {
			noMeeting = append(noMeeting, r)
		}
	}

	res := &DropOffResult{Attended: len(attended), NoMeeting: len(noMeeting)}
	if channel, ok := cols.Column(RoleChannel); ok {
		res.Breakdowns = append(res.Breakdowns, Breakdown{
			Label:  "By Channel",
			Counts: countSegments(noMeeting, channel),
			Total:  len(noMeeting),
		})
	}
	for _, dim := range cols.Dimensions {
		counts := countSegments(noMeeting, dim)
		if len(counts) < t.DropOffMinSegments || len(counts) > t.DropOffMaxSegments {
			continue
		}
		res.Breakdowns = append(res.Breakdowns, Breakdown{
			Label:  "By " + dim,
			Counts: counts,
			Total:  len(noMeeting),
		})
	}
	return res
}

// RecoveryEstimate projects the pipeline recoverable if rate of the
// not-converted contacts booked meetings at the current pipeline per meeting.
// It reports false when there is no drop-off or no meeting baseline.
func RecoveryEstimate(d *DropOffResult, totals Totals, rate float64) (float64, bool) {
	if d == nil || totals.Meetings == 0 {
		return 0, false
	}
	recovered := math.Round(float64(d.NoMeeting) * rate)
	return recovered * (totals.Pipeline / float64(totals.Meetings)), true
}
