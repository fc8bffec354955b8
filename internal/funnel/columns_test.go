package funnel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_TypicalExport(t *testing.T) {
	headers := []string{
		"Campaign Member ID", "Contact ID", "Channel", "Campaign Name",
		"Meeting Booked", "Pipeline Revenue", "Closed Won ARR", "Opportunity Stage",
		"Opportunity ID", "Interaction Status", "Region", "Score",
	}
	sample := []Row{
		{"Meeting Booked": "Yes", "Region": "EMEA", "Score": "10"},
		{"Meeting Booked": "No", "Region": "NA", "Score": "20"},
	}
	cols := Detect(headers, sample)

	want := map[Role]string{
		RoleID:                "Campaign Member ID",
		RoleContactID:         "Contact ID",
		RoleChannel:           "Channel",
		RoleCampaign:          "Campaign Name",
		RoleMeetingBooked:     "Meeting Booked",
		RolePipeline:          "Pipeline Revenue",
		RoleClosedWon:         "Closed Won ARR",
		RoleOppStage:          "Opportunity Stage",
		RoleOppID:             "Opportunity ID",
		RoleInteractionStatus: "Interaction Status",
	}
	for role, header := range want {
		got, ok := cols.Column(role)
		assert.True(t, ok, "role %s unassigned", role)
		assert.Equal(t, header, got, "role %s", role)
	}
	assert.Equal(t, []string{"Region"}, cols.Dimensions)
}

func TestDetect_MeetingRequiresBooleanValues(t *testing.T) {
	headers := []string{"Email", "Meeting Booked"}
	sample := []Row{
		{"Email": "a@x.io", "Meeting Booked": "Scheduled"},
		{"Email": "b@x.io", "Meeting Booked": "Pending"},
	}
	cols := Detect(headers, sample)
	assert.False(t, cols.Has(RoleMeetingBooked))
	// rejected header falls through to dimension detection
	assert.Contains(t, cols.Dimensions, "Meeting Booked")
}

func TestDetect_MeetingAcceptsTrueFalseCaseInsensitive(t *testing.T) {
	cols := Detect([]string{"x", "Meeting"}, []Row{{"Meeting": "TRUE"}, {"Meeting": ""}})
	h, ok := cols.Column(RoleMeetingBooked)
	require.True(t, ok)
	assert.Equal(t, "Meeting", h)
}

func TestDetect_RejectedMeetingHeaderSkipsLaterRules(t *testing.T) {
	// "Meeting Status" would match interaction status, but the meeting rule
	// claims the header first and rejects it on content.
	cols := Detect([]string{"x", "Meeting Status"}, []Row{{"Meeting Status": "Attended"}, {"Meeting Status": "Visited"}})
	assert.False(t, cols.Has(RoleMeetingBooked))
	assert.False(t, cols.Has(RoleInteractionStatus))
	assert.Equal(t, []string{"Meeting Status"}, cols.Dimensions)
}

func TestDetect_FirstMatchWinsAndRoleExclusive(t *testing.T) {
	headers := []string{"Lead Source", "UTM Medium", "Status", "Lead Status"}
	sample := []Row{{"Lead Source": "a", "UTM Medium": "b"}, {"Lead Source": "c", "UTM Medium": "d"}}
	cols := Detect(headers, sample)

	ch, _ := cols.Column(RoleChannel)
	st, _ := cols.Column(RoleInteractionStatus)
	assert.Equal(t, "Lead Source", ch)
	assert.Equal(t, "Status", st)
	// second channel candidate stays free and becomes a dimension
	assert.Equal(t, []string{"UTM Medium"}, cols.Dimensions)
}

func TestDetect_IDOnlyAtFirstIndex(t *testing.T) {
	cols := Detect([]string{"Name", "Record Id"}, []Row{{"Name": "a"}})
	assert.False(t, cols.Has(RoleID))

	cols = Detect([]string{"Record Id", "Name"}, []Row{{"Name": "a"}})
	h, ok := cols.Column(RoleID)
	require.True(t, ok)
	assert.Equal(t, "Record Id", h)
}

func TestDetect_OppStatusIsNotInteraction(t *testing.T) {
	cols := Detect([]string{"x", "Opp Status"}, []Row{{"Opp Status": "Open"}})
	assert.False(t, cols.Has(RoleInteractionStatus))
}

func TestDetect_EmptyInputs(t *testing.T) {
	cols := Detect(nil, []Row{{"a": "b"}})
	assert.Empty(t, cols.Assigned())
	assert.Empty(t, cols.Dimensions)

	cols = Detect([]string{"Channel", "Region"}, nil)
	assert.Empty(t, cols.Assigned())
	assert.Empty(t, cols.Dimensions)
}

func TestDetect_DimensionBounds(t *testing.T) {
	var sample []Row
	for i := 0; i < 41; i++ {
		sample = append(sample, Row{
			"Single":  "same",
			"Wide":    fmt.Sprintf("value-%d", i),
			"Numbers": fmt.Sprintf("%d", i%3),
			"Mixed":   []string{"12 units", "n/a", "7"}[i%3],
			"Forty":   fmt.Sprintf("v%d", i%40),
		})
	}
	cols := Detect([]string{"Single", "Wide", "Numbers", "Mixed", "Forty"}, sample)
	assert.Equal(t, []string{"Mixed", "Forty"}, cols.Dimensions)
}

func TestDetect_SampleSizeBoundsInspection(t *testing.T) {
	th := DefaultThresholds()
	th.SampleSize = 2
	sample := []Row{{"Meeting": "maybe"}, {"Meeting": "later"}, {"Meeting": "yes"}}
	cols := th.Detect([]string{"x", "Meeting"}, sample)
	assert.False(t, cols.Has(RoleMeetingBooked))

	cols = Detect([]string{"x", "Meeting"}, sample)
	assert.True(t, cols.Has(RoleMeetingBooked))
}

func TestDetect_Deterministic(t *testing.T) {
	headers := []string{"Id", "Channel", "Region", "Tier", "Meeting Booked"}
	sample := []Row{
		{"Channel": "Email", "Region": "EU", "Tier": "A", "Meeting Booked": "yes"},
		{"Channel": "Events", "Region": "US", "Tier": "B", "Meeting Booked": "no"},
	}
	first := Detect(headers, sample)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Detect(headers, sample))
	}
}

func TestDimensionOptions(t *testing.T) {
	cols := Detect(
		[]string{"Id", "Channel", "Campaign", "Interaction Status", "Region"},
		[]Row{{"Region": "EU"}, {"Region": "US"}},
	)
	assert.Equal(t, []string{"Channel", "Campaign", "Interaction Status", "Region"}, cols.DimensionOptions())
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "closedwonarr", normalizeHeader("Closed-Won ($ARR)"))
	assert.Equal(t, "utmmedium", normalizeHeader("  UTM_Medium "))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"abc", 0},
		{"$120", 0},
		{"120", 120},
		{" 12.5k", 12.5},
		{"1,200", 1},
		{"-3e2", -300},
		{"1e", 1},
		{".5", 0.5},
		{"Infinity", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseNumber(tt.in), "ParseNumber(%q)", tt.in)
	}
}
