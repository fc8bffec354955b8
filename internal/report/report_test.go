package report

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/funnelscope/internal/dataset"
	"github.com/KaramelBytes/funnelscope/internal/funnel"
)

const touchesCSV = `Member Id,Channel,Meeting Booked,Opportunity ID,Pipeline,Closed Won,Interaction Status,Region,Tier
1,Email,Yes,o1,1000,0,Attended,US,A
2,Email,No,,,,Attended,EU,B
3,Events,Yes,o2,5000,5000,Visited Booth,US,A
4,Events,No,,,,Badge Scanned,EU,B
5,Paid,No,,,,Sent,US,C
6,Paid,No,,,,Sent,EU,C
`

func loadTouches(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(touchesCSV), "touches.csv", dataset.Options{})
	require.NoError(t, err)
	return ds
}

func lowBar() funnel.Thresholds {
	th := funnel.DefaultThresholds()
	th.VarianceMinTouches = 1
	return th
}

func names(rows []funnel.FunnelRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func TestBuild(t *testing.T) {
	r, err := Build(context.Background(), loadTouches(t), Options{Thresholds: lowBar()})
	require.NoError(t, err)

	_, err = uuid.Parse(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, "touches.csv", r.Source)
	assert.Equal(t, 6, r.Rows)

	assert.Equal(t, "Channel", r.Dimension)
	assert.Equal(t, []string{"Events", "Email", "Paid"}, names(r.Funnel))
	assert.Equal(t, funnel.Totals{Touches: 6, Meetings: 2, Opportunities: 2, Pipeline: 6000, ClosedWon: 5000}, r.Totals)
	require.NotNil(t, r.Concentration)
	assert.Equal(t, "Events", r.Concentration.Name)

	assert.Equal(t, "Region", r.CrossCut)
	assert.Equal(t, []string{"US", "EU"}, names(r.CrossFunnel))
	require.NotNil(t, r.CrossVariance)
	assert.Equal(t, funnel.SignalLow, r.CrossVariance.Signal)

	require.Len(t, r.Variances, 4)
	want := []struct {
		dim    string
		ratio  float64
		signal funnel.Signal
	}{
		{"Channel", 5, funnel.SignalStrong},
		{"Interaction Status", 10, funnel.SignalStrong},
		{"Region", 1, funnel.SignalLow},
		{"Tier", 1, funnel.SignalLow},
	}
	for i, w := range want {
		v := r.Variances[i]
		assert.Equal(t, w.dim, v.Dimension)
		require.NotNil(t, v.Variance, w.dim)
		assert.Equal(t, w.ratio, v.Variance.Ratio, w.dim)
		assert.Equal(t, w.signal, v.Variance.Signal, w.dim)
	}

	require.NotNil(t, r.DropOff)
	assert.Equal(t, 4, r.DropOff.Attended)
	assert.Equal(t, 2, r.DropOff.NoMeeting)
	require.NotNil(t, r.Recovery)
	assert.Zero(t, *r.Recovery)

	assert.True(t, strings.HasPrefix(r.Context, "MARKETING PERFORMANCE DATA SUMMARY (6 records):"))
	assert.Positive(t, r.ContextTokens)
	assert.False(t, r.ContextTooLong)
}

func TestBuild_DefaultVarianceNeedsTouches(t *testing.T) {
	r, err := Build(context.Background(), loadTouches(t), Options{})
	require.NoError(t, err)
	assert.Nil(t, r.CrossVariance)
	for _, v := range r.Variances {
		assert.Nil(t, v.Variance, v.Dimension)
	}
}

func TestBuild_ExplicitDimensions(t *testing.T) {
	r, err := Build(context.Background(), loadTouches(t), Options{Dimension: "Region"})
	require.NoError(t, err)
	assert.Equal(t, []string{"US", "EU"}, names(r.Funnel))
	assert.Equal(t, "Tier", r.CrossCut)

	_, err = Build(context.Background(), loadTouches(t), Options{Dimension: "Nope"})
	assert.Error(t, err)
	_, err = Build(context.Background(), loadTouches(t), Options{CrossCut: "Nope"})
	assert.Error(t, err)
}

func TestBuild_NoChannelFallsBackToFirstHeader(t *testing.T) {
	ds, err := dataset.ReadCSV(strings.NewReader("Region,Pipeline\nUS,10\nEU,5\n"), "x", dataset.Options{})
	require.NoError(t, err)
	r, err := Build(context.Background(), ds, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Region", r.Dimension)
	assert.Empty(t, r.CrossCut)
	assert.Nil(t, r.DropOff)
	assert.Nil(t, r.Recovery)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, Options{})
	assert.Error(t, err)
	_, err = Build(context.Background(), &dataset.Dataset{}, Options{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, loadTouches(t), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContext(t *testing.T) {
	ds := loadTouches(t)
	got, err := Context(ds, funnel.Thresholds{})
	require.NoError(t, err)
	r, err := Build(context.Background(), ds, Options{})
	require.NoError(t, err)
	assert.Equal(t, r.Context, got)
}

func TestFlags(t *testing.T) {
	assert.True(t, IsTop(funnel.FunnelRow{PipelineShare: 30.1}))
	assert.False(t, IsTop(funnel.FunnelRow{PipelineShare: 30}))
	assert.True(t, IsWarn(funnel.FunnelRow{TouchShare: 25, PipelineShare: 5}))
	assert.False(t, IsWarn(funnel.FunnelRow{TouchShare: 25, PipelineShare: 10}))
	assert.False(t, IsWarn(funnel.FunnelRow{TouchShare: 20, PipelineShare: 0}))
}

func TestText(t *testing.T) {
	r, err := Build(context.Background(), loadTouches(t), Options{Thresholds: lowBar()})
	require.NoError(t, err)
	out := r.Text()

	for _, s := range []string{
		"[FUNNEL REPORT]",
		"Source: touches.csv",
		"[DETECTED COLUMNS]",
		"[FUNNEL BY CHANNEL]",
		"⚠ Concentration risk: Events holds 83.3% of pipeline",
		"[CROSS-CUT BY REGION]",
		"Pipeline/touch variance: 1.0x (low)",
		"[DIMENSION VARIANCE]",
		"[DROP-OFF]",
		"4 engaged contacts, 2 (50.0%) did not book a meeting.",
		"By Channel: Email=1, Events=1",
		"low-yield",
	} {
		assert.Contains(t, out, s)
	}
	assert.NotContains(t, out, "[TOTALS]\n\n")
}

func TestMarkdown(t *testing.T) {
	r, err := Build(context.Background(), loadTouches(t), Options{Thresholds: lowBar()})
	require.NoError(t, err)
	out := r.Markdown()

	assert.Contains(t, out, "- channel: Channel\n")
	assert.Contains(t, out, "| Segment | Touches |")
	assert.Contains(t, out, "| Events | 2 | 33.3% |")
	assert.Contains(t, out, "> ⚠ Concentration risk: Events holds 83.3% of pipeline.")
	assert.Contains(t, out, "- Interaction Status (4 segments): 10.0x (strong)")
	assert.Contains(t, out, "- By Channel: Email=1, Events=1")
	assert.NotContains(t, out, "opp_stage")
}
