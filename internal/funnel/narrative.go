package funnel

import (
	"fmt"
	"strings"
)

// SummaryDimensions returns the columns broken down in the narrative:
// interaction status (when assigned) followed by at most limit-1 free
// dimensions. The free slots do not grow when status is unassigned. A
// non-positive limit keeps every dimension.
func SummaryDimensions(cols DetectedColumns, limit int) []string {
	free := cols.Dimensions
	if limit > 0 && len(free) > limit-1 {
		free = free[:limit-1]
	}
	var dims []string
	if h, ok := cols.Column(RoleInteractionStatus); ok {
		dims = append(dims, h)
	}
	return append(dims, free...)
}

// Summarize renders the data context with default bounds.
func Summarize(rows []Row, cols DetectedColumns, funnel []FunnelRow, totals Totals, dropOff *DropOffResult) string {
	return DefaultThresholds().Summarize(rows, cols, funnel, totals, dropOff)
}

// Summarize renders a fixed-structure plain-text digest of the dataset for a
// language model. The channel section is re-aggregated by channel when that
// role is known; otherwise funnel is used as given. The result is never
// truncated; callers enforce MaxContextLength.
func (t Thresholds) Summarize(rows []Row, cols DetectedColumns, funnel []FunnelRow, totals Totals, dropOff *DropOffResult) string {
	t = t.WithDefaults()
	channelFunnel := funnel
	if channel, ok := cols.Column(RoleChannel); ok {
		channelFunnel = Analyze(rows, cols, channel)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MARKETING PERFORMANCE DATA SUMMARY (%d records):\n\n", len(rows))

	b.WriteString("OVERALL FUNNEL:\n")
	fmt.Fprintf(&b, "%s touches → %s meetings (%.1f%%) → %s opportunities (%.1f%% mtg→opp) → $%s pipeline → $%s closed won\n\n",
		FormatNumber(totals.Touches),
		FormatNumber(totals.Meetings), roundTo(totals.MeetingRate(), 1),
		FormatNumber(totals.Opportunities), roundTo(totals.MeetingToOpp(), 1),
		FormatAmount(totals.Pipeline), FormatAmount(totals.ClosedWon))

	b.WriteString("CHANNEL FUNNEL (sorted by pipeline):\n")
	lines := make([]string, 0, len(channelFunnel))
	for _, r := range channelFunnel {
		lines = append(lines, fmt.Sprintf("%s: %d touches (%.1f%%), %d mtgs (%.1f%% rate), %d opps (%.1f%% mtg→opp), $%s pipeline (%.1f%%), $%s/touch, $%s closed won (%.1f%% win rate)",
			r.Name, r.Touches, roundTo(r.TouchShare, 1),
			r.Meetings, roundTo(r.MeetingRate, 1),
			r.Opportunities, roundTo(r.MeetingToOpp, 1),
			FormatAmount(r.Pipeline), roundTo(r.PipelineShare, 1),
			FormatAmount(r.PipelinePerTouch),
			FormatAmount(r.ClosedWon), roundTo(r.WinRate, 1)))
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nDIMENSION BREAKDOWNS:")

	for _, dim := range SummaryDimensions(cols, t.SummaryDimensions) {
		fmt.Fprintf(&b, "\n%s:\n", dim)
		segs := Analyze(rows, cols, dim)
		lines = lines[:0]
		for _, r := range segs {
			lines = append(lines, fmt.Sprintf("  %s: %d touches, %.1f%% mtg rate, $%s pipeline, $%s/touch, $%s won",
				r.Name, r.Touches, roundTo(r.MeetingRate, 1),
				FormatAmount(r.Pipeline), FormatAmount(r.PipelinePerTouch), FormatAmount(r.ClosedWon)))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	b.WriteString("\n")

	if dropOff != nil && dropOff.Attended > 0 {
		b.WriteString("\nDROP-OFF ANALYSIS:\n")
		fmt.Fprintf(&b, "%d engaged contacts (attended/visited/badge scan), %d (%.1f%%) did NOT book a meeting.\n",
			dropOff.Attended, dropOff.NoMeeting, roundTo(dropOff.NoMeetingRate(), 1))
		for _, bd := range dropOff.Breakdowns {
			parts := make([]string, 0, len(bd.Counts))
			for _, c := range bd.Sorted() {
				parts = append(parts, fmt.Sprintf("%s=%d", c.Key, c.Count))
			}
			fmt.Fprintf(&b, "%s: %s\n", bd.Label, strings.Join(parts, ", "))
		}
	}

	fmt.Fprintf(&b, "\nDETECTED FIELDS: Channel=%s, Meeting Booked=%s, Pipeline=%s, Closed Won=%s, Opp Stage=%s, Interaction Status=%s\n",
		orNone(cols, RoleChannel), orNone(cols, RoleMeetingBooked), orNone(cols, RolePipeline),
		orNone(cols, RoleClosedWon), orNone(cols, RoleOppStage), orNone(cols, RoleInteractionStatus))
	fmt.Fprintf(&b, "Dimensions available: %s", strings.Join(cols.Dimensions, ", "))
	return b.String()
}

func orNone(cols DetectedColumns, role Role) string {
	if h, ok := cols.Column(role); ok {
		return h
	}
	return "none"
}
