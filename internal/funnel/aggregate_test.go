package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var touchHeaders = []string{
	"Member Id", "Channel", "Meeting Booked", "Opportunity ID",
	"Pipeline", "Closed Won", "Opportunity Stage", "Interaction Status", "Region",
}

func touchRows() []Row {
	return []Row{
		{"Channel": "Email", "Meeting Booked": "Yes", "Opportunity ID": "o1", "Pipeline": "300", "Closed Won": "300", "Opportunity Stage": "Closed Won", "Interaction Status": "Attended", "Region": "EU"},
		{"Channel": "Email", "Meeting Booked": "No", "Pipeline": "", "Interaction Status": "Sent", "Region": "EU"},
		{"Channel": "Events", "Meeting Booked": "yes", "Opportunity ID": "o2", "Pipeline": "700", "Closed Won": "0", "Opportunity Stage": "Closed Lost", "Interaction Status": "Visited Booth", "Region": "US"},
		{"Channel": "Events", "Meeting Booked": "No", "Pipeline": "n/a", "Interaction Status": "Badge Scanned", "Region": ""},
		{"Channel": "", "Meeting Booked": "No", "Interaction Status": "Attended", "Region": "US"},
	}
}

func detectTouches(t *testing.T) DetectedColumns {
	t.Helper()
	cols := Detect(touchHeaders, touchRows())
	require.True(t, cols.Has(RoleMeetingBooked))
	require.True(t, cols.Has(RoleOppID))
	require.True(t, cols.Has(RolePipeline))
	require.True(t, cols.Has(RoleClosedWon))
	require.True(t, cols.Has(RoleOppStage))
	require.True(t, cols.Has(RoleInteractionStatus))
	return cols
}

func TestAnalyze_GroupsAndCounts(t *testing.T) {
	rows := []Row{{"channel": "Email"}, {"channel": "Email"}, {"channel": "Events"}}
	out := Analyze(rows, DetectedColumns{}, "channel")
	require.Len(t, out, 2)
	assert.Equal(t, "Email", out[0].Name)
	assert.Equal(t, 2, out[0].Touches)
	assert.Equal(t, "Events", out[1].Name)
	assert.Equal(t, 1, out[1].Touches)
}

func TestAnalyze_MeetingRate(t *testing.T) {
	cols := DetectedColumns{}.WithRole(RoleMeetingBooked, "m")
	rows := []Row{{"m": "Yes"}, {"m": "No"}, {"m": "Yes"}, {"m": "No"}}
	out := Analyze(rows, cols, "missing")
	require.Len(t, out, 1)
	assert.Equal(t, BlankSegment, out[0].Name)
	assert.Equal(t, 4, out[0].Touches)
	assert.Equal(t, 2, out[0].Meetings)
	assert.InDelta(t, 50.0, out[0].MeetingRate, 1e-9)
}

func TestAnalyze_SortAndShares(t *testing.T) {
	cols := DetectedColumns{}.WithRole(RolePipeline, "p")
	rows := []Row{{"c": "A", "p": "300"}, {"c": "B", "p": "700"}}
	out := Analyze(rows, cols, "c")
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Name)
	assert.InDelta(t, 70.0, out[0].PipelineShare, 1e-9)
	assert.InDelta(t, 30.0, out[1].PipelineShare, 1e-9)
	assert.InDelta(t, 50.0, out[0].TouchShare, 1e-9)
}

func TestAnalyze_StableOnTies(t *testing.T) {
	rows := []Row{{"c": "first"}, {"c": "second"}, {"c": "third"}}
	out := Analyze(rows, DetectedColumns{}, "c")
	require.Len(t, out, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{out[0].Name, out[1].Name, out[2].Name})
	for _, r := range out {
		assert.Equal(t, 0.0, r.PipelineShare)
	}
}

func TestAnalyze_FullMetrics(t *testing.T) {
	cols := detectTouches(t)
	out := Analyze(touchRows(), cols, "Channel")
	require.Len(t, out, 3)

	events, email, blank := out[0], out[1], out[2]
	assert.Equal(t, "Events", events.Name)
	assert.Equal(t, 2, events.Touches)
	assert.Equal(t, 1, events.Meetings)
	assert.Equal(t, 1, events.Opportunities)
	assert.Equal(t, 700.0, events.Pipeline)
	assert.Equal(t, 0, events.WonCount)
	assert.Equal(t, 1, events.ClosedLost)
	assert.Equal(t, 350.0, events.PipelinePerTouch)
	assert.Equal(t, 700.0, events.PipelinePerMeeting)
	assert.Equal(t, 100.0, events.MeetingToOpp)
	assert.Equal(t, 0.0, events.WinRate)
	assert.Equal(t, 0.0, events.AvgDeal)

	assert.Equal(t, "Email", email.Name)
	assert.Equal(t, 1, email.WonCount)
	assert.Equal(t, 300.0, email.ClosedWon)
	assert.Equal(t, 100.0, email.WinRate)
	assert.Equal(t, 300.0, email.AvgDeal)

	assert.Equal(t, BlankSegment, blank.Name)
	assert.Equal(t, 1, blank.Touches)
	assert.Equal(t, 0.0, blank.MeetingToOpp)
}

func TestAnalyze_Invariants(t *testing.T) {
	cols := detectTouches(t)
	rows := touchRows()
	for _, dim := range []string{"Channel", "Region", "Interaction Status", "absent"} {
		out := Analyze(rows, cols, dim)
		var touches int
		var share float64
		for _, r := range out {
			touches += r.Touches
			share += r.PipelineShare
			assert.LessOrEqual(t, r.Meetings, r.Touches)
			assert.LessOrEqual(t, r.WonCount, r.Opportunities)
		}
		assert.Equal(t, len(rows), touches, dim)
		assert.InDelta(t, 100.0, share, 1e-9, dim)
	}
}

func TestAnalyze_UnassignedRolesStayZero(t *testing.T) {
	out := Analyze(touchRows(), DetectedColumns{}, "Channel")
	for _, r := range out {
		assert.Zero(t, r.Meetings)
		assert.Zero(t, r.Opportunities)
		assert.Zero(t, r.Pipeline)
		assert.Zero(t, r.ClosedWon)
		assert.Zero(t, r.ClosedLost)
		assert.Zero(t, r.MeetingRate)
	}
}

func TestComputeTotals(t *testing.T) {
	cols := detectTouches(t)
	tot := ComputeTotals(Analyze(touchRows(), cols, "Channel"))
	assert.Equal(t, Totals{Touches: 5, Meetings: 2, Opportunities: 2, Pipeline: 1000, ClosedWon: 300}, tot)
	assert.InDelta(t, 40.0, tot.MeetingRate(), 1e-9)
	assert.InDelta(t, 100.0, tot.MeetingToOpp(), 1e-9)
	assert.InDelta(t, 200.0, tot.PipelinePerTouch(), 1e-9)
	assert.Zero(t, Totals{}.PipelinePerTouch())
}
