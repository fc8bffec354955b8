package funnel

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// BlankSegment names the group of rows with no value for the grouping column.
const BlankSegment = "(blank)"

// FunnelRow aggregates one segment of a grouping dimension.
type FunnelRow struct {
	Name          string  `json:"name" yaml:"name"`
	Touches       int     `json:"touches" yaml:"touches"`
	Meetings      int     `json:"meetings" yaml:"meetings"`
	Opportunities int     `json:"opportunities" yaml:"opportunities"`
	Pipeline      float64 `json:"pipeline" yaml:"pipeline"`
	ClosedWon     float64 `json:"closed_won" yaml:"closed_won"`
	WonCount      int     `json:"won_count" yaml:"won_count"`
	ClosedLost    int     `json:"closed_lost" yaml:"closed_lost"`

	MeetingRate        float64 `json:"meeting_rate" yaml:"meeting_rate"`
	MeetingToOpp       float64 `json:"meeting_to_opp" yaml:"meeting_to_opp"`
	PipelinePerTouch   float64 `json:"pipeline_per_touch" yaml:"pipeline_per_touch"`
	PipelinePerMeeting float64 `json:"pipeline_per_meeting" yaml:"pipeline_per_meeting"`
	WinRate            float64 `json:"win_rate" yaml:"win_rate"`
	AvgDeal            float64 `json:"avg_deal" yaml:"avg_deal"`
	PipelineShare      float64 `json:"pipeline_share" yaml:"pipeline_share"`
	TouchShare         float64 `json:"touch_share" yaml:"touch_share"`
}

// Totals sums the raw counters of a funnel.
type Totals struct {
	Touches       int     `json:"touches" yaml:"touches"`
	Meetings      int     `json:"meetings" yaml:"meetings"`
	Opportunities int     `json:"opportunities" yaml:"opportunities"`
	Pipeline      float64 `json:"pipeline" yaml:"pipeline"`
	ClosedWon     float64 `json:"closed_won" yaml:"closed_won"`
}

// MeetingRate is meetings per touch as a percentage.
func (t Totals) MeetingRate() float64 {
	return Percentage(float64(t.Meetings), float64(t.Touches))
}

// MeetingToOpp is opportunities per meeting as a percentage.
func (t Totals) MeetingToOpp() float64 {
	return Percentage(float64(t.Opportunities), float64(t.Meetings))
}

// PipelinePerTouch is 0 when there are no touches.
func (t Totals) PipelinePerTouch() float64 {
	if t.Touches == 0 {
		return 0
	}
	return t.Pipeline / float64(t.Touches)
}

// IsAffirmative reports whether a meeting-booked cell counts as booked.
func IsAffirmative(v string) bool {
	return strings.EqualFold(v, "yes")
}

type segment struct {
	name string
	rows []Row
}

// groupRows partitions rows by dimension value in discovery order.
func groupRows(rows []Row, dimension string) []segment {
	var out []segment
	index := make(map[string]int)
	for _, r := range rows {
		key := r[dimension]
		if key == "" {
			key = BlankSegment
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, segment{name: key})
		}
		out[i].rows = append(out[i].rows, r)
	}
	return out
}

// Analyze groups rows by dimension and computes one FunnelRow per segment,
// sorted by pipeline descending. Metrics that depend on an unassigned role
// stay zero.
func Analyze(rows []Row, cols DetectedColumns, dimension string) []FunnelRow {
	groups := groupRows(rows, dimension)
	out := make([]FunnelRow, 0, len(groups))
	for _, g := range groups {
		out = append(out, aggregate(g, cols))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Pipeline > out[j].Pipeline })

	var totalPipeline float64
	var totalTouches int
	for _, r := range out {
		totalPipeline += r.Pipeline
		totalTouches += r.Touches
	}
	for i := range out {
		out[i].PipelineShare = Percentage(out[i].Pipeline, totalPipeline)
		out[i].TouchShare = Percentage(float64(out[i].Touches), float64(totalTouches))
	}
	return out
}

func aggregate(g segment, cols DetectedColumns) FunnelRow {
	fr := FunnelRow{Name: g.name, Touches: len(g.rows)}
	meeting := cols.col(RoleMeetingBooked)
	oppID := cols.col(RoleOppID)
	pipeline := cols.col(RolePipeline)
	won := cols.col(RoleClosedWon)
	stage := cols.col(RoleOppStage)

	for _, r := range g.rows {
		if meeting != "" && IsAffirmative(r[meeting]) {
			fr.Meetings++
		}
		if oppID != "" && r[oppID] != "" {
			fr.Opportunities++
		}
		if pipeline != "" {
			fr.Pipeline += ParseNumber(r[pipeline])
		}
		if won != "" {
			v := ParseNumber(r[won])
			fr.ClosedWon += v
			if v > 0 {
				fr.WonCount++
			}
		}
		if stage != "" && strings.Contains(strings.ToLower(r[stage]), "lost") {
			fr.ClosedLost++
		}
	}

	fr.MeetingRate = Percentage(float64(fr.Meetings), float64(fr.Touches))
	fr.MeetingToOpp = Percentage(float64(fr.Opportunities), float64(fr.Meetings))
	if fr.Touches > 0 {
		fr.PipelinePerTouch = fr.Pipeline / float64(fr.Touches)
	}
	if fr.Meetings > 0 {
		fr.PipelinePerMeeting = fr.Pipeline / float64(fr.Meetings)
	}
	fr.WinRate = Percentage(float64(fr.WonCount), float64(fr.Opportunities))
	if fr.WonCount > 0 {
		fr.AvgDeal = fr.ClosedWon / float64(fr.WonCount)
	}
	return fr
}

// ComputeTotals sums the counters across rows.
func ComputeTotals(rows []FunnelRow) Totals {
	var t Totals
	for _, r := range rows {
		t.Touches += r.Touches
		t.Meetings += r.Meetings
		t.Opportunities += r.Opportunities
		t.Pipeline += r.Pipeline
		t.ClosedWon += r.ClosedWon
	}
	return t
}

// ParseNumber parses the leading numeric prefix of s, returning 0 when there
// is none. "12.5k" yields 12.5; "$12" and "" yield 0.
func ParseNumber(s string) float64 {
	v, ok := leadingNumber(s)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// leadingNumber scans optional whitespace, a sign, digits with an optional
// fraction, and an optional exponent, then parses that prefix.
func leadingNumber(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k > j {
			end = k
		}
	}
	// range errors still carry ±Inf or 0, matching parseFloat
	v, _ := strconv.ParseFloat(s[:end], 64)
	return v, true
}
