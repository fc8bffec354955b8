package funnel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDropOff_RequiresStatusAndMeeting(t *testing.T) {
	rows := touchRows()
	assert.Nil(t, AnalyzeDropOff(rows, DetectedColumns{}))
	assert.Nil(t, AnalyzeDropOff(rows, DetectedColumns{}.WithRole(RoleInteractionStatus, "Interaction Status")))
	assert.Nil(t, AnalyzeDropOff(rows, DetectedColumns{}.WithRole(RoleMeetingBooked, "Meeting Booked")))
}

func TestAnalyzeDropOff_CountsAndBreakdowns(t *testing.T) {
	cols := detectTouches(t)
	res := AnalyzeDropOff(touchRows(), cols)
	require.NotNil(t, res)

	// engaged: Attended, Visited Booth, Badge Scanned, Attended
	assert.Equal(t, 4, res.Attended)
	// not converted: Badge Scanned (Events) and Attended (blank channel)
	assert.Equal(t, 2, res.NoMeeting)
	assert.InDelta(t, 50.0, res.NoMeetingRate(), 1e-9)

	require.Len(t, res.Breakdowns, 2)
	byChannel := res.Breakdowns[0]
	assert.Equal(t, "By Channel", byChannel.Label)
	assert.Equal(t, 2, byChannel.Total)
	assert.Equal(t, []SegmentCount{{Key: "Events", Count: 1}, {Key: BlankSegment, Count: 1}}, byChannel.Counts)

	byRegion := res.Breakdowns[1]
	assert.Equal(t, "By Region", byRegion.Label)
	assert.Equal(t, []SegmentCount{{Key: BlankSegment, Count: 1}, {Key: "US", Count: 1}}, byRegion.Counts)
}

func TestAnalyzeDropOff_DimensionSegmentBounds(t *testing.T) {
	cols := DetectedColumns{Dimensions: []string{"One", "Many"}}.
		WithRole(RoleInteractionStatus, "s").
		WithRole(RoleMeetingBooked, "m")
	var rows []Row
	for i := 0; i < 16; i++ {
		rows = append(rows, Row{"s": "attended", "m": "no", "One": "x", "Many": fmt.Sprintf("k%d", i)})
	}
	res := AnalyzeDropOff(rows, cols)
	require.NotNil(t, res)
	assert.Equal(t, 16, res.NoMeeting)
	// one key is too few, sixteen is too many
	assert.Empty(t, res.Breakdowns)

	res = AnalyzeDropOff(rows[:15], cols)
	require.Len(t, res.Breakdowns, 1)
	assert.Equal(t, "By Many", res.Breakdowns[0].Label)
}

func TestBreakdownSorted(t *testing.T) {
	b := Breakdown{Counts: []SegmentCount{{"a", 1}, {"b", 3}, {"c", 1}, {"d", 2}}}
	assert.Equal(t, []SegmentCount{{"b", 3}, {"d", 2}, {"a", 1}, {"c", 1}}, b.Sorted())
	// original order untouched
	assert.Equal(t, "a", b.Counts[0].Key)
}

func TestRecoveryEstimate(t *testing.T) {
	d := &DropOffResult{Attended: 100, NoMeeting: 45}
	v, ok := RecoveryEstimate(d, Totals{Meetings: 10, Pipeline: 50000}, 0.1)
	require.True(t, ok)
	// round(4.5) = 5 meetings at $5,000 each
	assert.InDelta(t, 25000.0, v, 1e-9)

	_, ok = RecoveryEstimate(d, Totals{}, 0.1)
	assert.False(t, ok)
	_, ok = RecoveryEstimate(nil, Totals{Meetings: 1}, 0.1)
	assert.False(t, ok)
}

func TestIsEngaged(t *testing.T) {
	for _, s := range []string{"Attended", "visited booth", "BADGE SCAN"} {
		assert.True(t, IsEngaged(s), s)
	}
	for _, s := range []string{"", "Registered", "No Show"} {
		assert.False(t, IsEngaged(s), s)
	}
}
