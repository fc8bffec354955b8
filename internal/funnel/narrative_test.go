package funnel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const wantNarrative = `MARKETING PERFORMANCE DATA SUMMARY (5 records):

OVERALL FUNNEL:
5 touches → 2 meetings (40.0%) → 2 opportunities (100.0% mtg→opp) → $1,000 pipeline → $300 closed won

CHANNEL FUNNEL (sorted by pipeline):
Events: 2 touches (40.0%), 1 mtgs (50.0% rate), 1 opps (100.0% mtg→opp), $700 pipeline (70.0%), $350/touch, $0 closed won (0.0% win rate)
Email: 2 touches (40.0%), 1 mtgs (50.0% rate), 1 opps (100.0% mtg→opp), $300 pipeline (30.0%), $150/touch, $300 closed won (100.0% win rate)
(blank): 1 touches (20.0%), 0 mtgs (0.0% rate), 0 opps (0.0% mtg→opp), $0 pipeline (0.0%), $0/touch, $0 closed won (0.0% win rate)

DIMENSION BREAKDOWNS:
Interaction Status:
  Visited Booth: 1 touches, 100.0% mtg rate, $700 pipeline, $700/touch, $0 won
  Attended: 2 touches, 50.0% mtg rate, $300 pipeline, $150/touch, $300 won
  Sent: 1 touches, 0.0% mtg rate, $0 pipeline, $0/touch, $0 won
  Badge Scanned: 1 touches, 0.0% mtg rate, $0 pipeline, $0/touch, $0 won
Region:
  US: 2 touches, 50.0% mtg rate, $700 pipeline, $350/touch, $0 won
  EU: 2 touches, 50.0% mtg rate, $300 pipeline, $150/touch, $300 won
  (blank): 1 touches, 0.0% mtg rate, $0 pipeline, $0/touch, $0 won

DROP-OFF ANALYSIS:
4 engaged contacts (attended/visited/badge scan), 2 (50.0%) did NOT book a meeting.
By Channel: Events=1, (blank)=1
By Region: (blank)=1, US=1

DETECTED FIELDS: Channel=Channel, Meeting Booked=Meeting Booked, Pipeline=Pipeline, Closed Won=Closed Won, Opp Stage=Opportunity Stage, Interaction Status=Interaction Status
Dimensions available: Region`

func TestSummarize_FullLayout(t *testing.T) {
	cols := detectTouches(t)
	rows := touchRows()
	fun := Analyze(rows, cols, "Channel")
	got := Summarize(rows, cols, fun, ComputeTotals(fun), AnalyzeDropOff(rows, cols))
	assert.Equal(t, wantNarrative, got)
}

func TestSummarize_NoChannelNoDropOff(t *testing.T) {
	cols := DetectedColumns{}.WithRole(RolePipeline, "p")
	rows := []Row{{"seg": "A", "p": "10"}}
	fun := Analyze(rows, cols, "seg")
	got := Summarize(rows, cols, fun, Totals{}, nil)

	assert.Contains(t, got, "0 touches → 0 meetings (0.0%) → 0 opportunities (0.0% mtg→opp)")
	assert.Contains(t, got, "\nA: 1 touches (100.0%)")
	assert.NotContains(t, got, "DROP-OFF ANALYSIS")
	assert.Contains(t, got, "DETECTED FIELDS: Channel=none, Meeting Booked=none, Pipeline=p,")
	assert.True(t, strings.HasSuffix(got, "Dimensions available: "))
}

func TestSummarize_SkipsEmptyDropOff(t *testing.T) {
	cols := DetectedColumns{}
	got := Summarize(nil, cols, nil, Totals{}, &DropOffResult{})
	assert.NotContains(t, got, "DROP-OFF ANALYSIS")
	assert.Contains(t, got, "(0 records)")
}

func TestSummaryDimensions(t *testing.T) {
	cols := DetectedColumns{Dimensions: []string{"a", "b", "c", "d", "e"}}.WithRole(RoleInteractionStatus, "status")
	assert.Equal(t, []string{"status", "a", "b", "c", "d"}, SummaryDimensions(cols, 5))
	assert.Equal(t, []string{"status", "a", "b", "c", "d", "e"}, SummaryDimensions(cols, 0))
	assert.Equal(t, []string{"a", "b"}, SummaryDimensions(DetectedColumns{Dimensions: []string{"a", "b"}}, 5))
}

func TestSummaryDimensions_NoStatusKeepsFreeCap(t *testing.T) {
	cols := DetectedColumns{Dimensions: []string{"a", "b", "c", "d", "e"}}
	assert.Equal(t, []string{"a", "b", "c", "d"}, SummaryDimensions(cols, 5))
	assert.Empty(t, SummaryDimensions(cols, 1))

	rows := []Row{{"a": "x", "b": "x", "c": "x", "d": "x", "e": "x"}}
	got := Summarize(rows, cols, nil, Totals{}, nil)
	assert.Contains(t, got, "\nd:\n")
	assert.NotContains(t, got, "\ne:\n")
}

func TestSummarize_HonorsConfiguredDimensionCap(t *testing.T) {
	cols := detectTouches(t)
	rows := touchRows()
	th := DefaultThresholds()
	th.SummaryDimensions = 1
	got := th.Summarize(rows, cols, nil, Totals{}, nil)
	assert.Contains(t, got, "\nInteraction Status:\n")
	assert.NotContains(t, got, "\nRegion:\n")
}
