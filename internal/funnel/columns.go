// Package funnel turns loosely structured marketing touch exports into funnel
// metrics. Every function here is pure: no I/O, no logging, no shared state.
package funnel

import (
	"encoding/json"
	"strings"
)

// Row is one record keyed by header name. Every value is text.
type Row map[string]string

// Role is a fixed semantic meaning a column can hold.
type Role int

const (
	RoleID Role = iota
	RoleContactID
	RoleChannel
	RoleCampaign
	RoleInteractionStatus
	RoleMeetingBooked
	RoleOppID
	RolePipeline
	RoleClosedWon
	RoleOppStage
	roleCount
)

var roleNames = [roleCount]string{
	RoleID:                "id",
	RoleContactID:         "contact_id",
	RoleChannel:           "channel",
	RoleCampaign:          "campaign",
	RoleInteractionStatus: "interaction_status",
	RoleMeetingBooked:     "meeting_booked",
	RoleOppID:             "opp_id",
	RolePipeline:          "pipeline",
	RoleClosedWon:         "closed_won",
	RoleOppStage:          "opp_stage",
}

func (r Role) String() string {
	if r >= 0 && r < roleCount {
		return roleNames[r]
	}
	return "unknown"
}

// Roles lists every role in declaration order.
func Roles() []Role {
	out := make([]Role, 0, roleCount)
	for r := Role(0); r < roleCount; r++ {
		out = append(out, r)
	}
	return out
}

// DetectedColumns maps roles to header names and lists categorical dimensions.
// A header holds at most one role and never appears in Dimensions as well.
type DetectedColumns struct {
	roles      [roleCount]string
	Dimensions []string
}

// Column returns the header assigned to role.
func (d DetectedColumns) Column(role Role) (string, bool) {
	if role < 0 || role >= roleCount {
		return "", false
	}
	h := d.roles[role]
	return h, h != ""
}

// Has reports whether role was assigned.
func (d DetectedColumns) Has(role Role) bool {
	_, ok := d.Column(role)
	return ok
}

func (d DetectedColumns) col(role Role) string { return d.roles[role] }

// Assigned returns role-assigned headers in role order.
func (d DetectedColumns) Assigned() []string {
	var out []string
	for _, h := range d.roles {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Mapping returns role name to header for every assigned role.
func (d DetectedColumns) Mapping() map[string]string {
	out := make(map[string]string, roleCount)
	for r, h := range d.roles {
		if h != "" {
			out[Role(r).String()] = h
		}
	}
	return out
}

// DimensionOptions lists the columns offered for grouping: channel,
// campaign and interaction status when assigned, then free dimensions.
func (d DetectedColumns) DimensionOptions() []string {
	var out []string
	for _, r := range []Role{RoleChannel, RoleCampaign, RoleInteractionStatus} {
		if h, ok := d.Column(r); ok {
			out = append(out, h)
		}
	}
	return append(out, d.Dimensions...)
}

type columnsView struct {
	Roles      map[string]string `json:"roles" yaml:"roles"`
	Dimensions []string          `json:"dimensions" yaml:"dimensions"`
}

func (d DetectedColumns) view() columnsView {
	dims := d.Dimensions
	if dims == nil {
		dims = []string{}
	}
	return columnsView{Roles: d.Mapping(), Dimensions: dims}
}

// MarshalJSON exposes the role mapping alongside dimensions.
func (d DetectedColumns) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.view())
}

// MarshalYAML mirrors MarshalJSON for yaml.v3.
func (d DetectedColumns) MarshalYAML() (any, error) {
	return d.view(), nil
}

// WithRole returns a copy of d with role assigned to header.
func (d DetectedColumns) WithRole(role Role, header string) DetectedColumns {
	out := d
	out.Dimensions = append([]string(nil), d.Dimensions...)
	if role >= 0 && role < roleCount {
		out.roles[role] = header
	}
	return out
}

type rule struct {
	role  Role
	match func(name string, index int) bool
	// accept validates column content once the name matched. A rejected
	// header is consumed: lower-priority rules are not tried for it.
	accept func(header string, sample []Row) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var detectionRules = []rule{
	{role: RoleID, match: func(n string, i int) bool {
		return containsAny(n, "memberid", "campaignmemberid") || (i == 0 && strings.Contains(n, "id"))
	}},
	{role: RoleContactID, match: func(n string, _ int) bool {
		return strings.Contains(n, "contactid")
	}},
	{role: RoleChannel, match: func(n string, _ int) bool {
		return containsAny(n, "channel", "source", "medium")
	}},
	{role: RoleCampaign, match: func(n string, _ int) bool {
		return strings.Contains(n, "campaign") && !strings.Contains(n, "member")
	}},
	{role: RoleMeetingBooked, match: func(n string, _ int) bool {
		return containsAny(n, "meetingbooked", "meeting")
	}, accept: hasBooleanValue},
	{role: RolePipeline, match: func(n string, _ int) bool {
		return strings.Contains(n, "pipeline") || (strings.Contains(n, "revenue") && strings.Contains(n, "share"))
	}},
	{role: RoleClosedWon, match: func(n string, _ int) bool {
		return containsAny(n, "closedwon", "woncarr", "wonarr") || (strings.Contains(n, "closed") && strings.Contains(n, "won"))
	}},
	{role: RoleOppStage, match: func(n string, _ int) bool {
		return containsAny(n, "opportunitystage", "oppstage", "stage")
	}},
	{role: RoleOppID, match: func(n string, _ int) bool {
		return containsAny(n, "opportunityid", "oppid")
	}},
	{role: RoleInteractionStatus, match: func(n string, _ int) bool {
		return strings.Contains(n, "interaction") || (strings.Contains(n, "status") && !strings.Contains(n, "opp"))
	}},
}

func hasBooleanValue(header string, sample []Row) bool {
	for _, r := range sample {
		switch strings.ToLower(r[header]) {
		case "yes", "no", "true", "false":
			return true
		}
	}
	return false
}

// normalizeHeader lower-cases h and drops everything but [a-z0-9].
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(h) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Detect infers column roles and dimensions using default thresholds.
func Detect(headers []string, sample []Row) DetectedColumns {
	return DefaultThresholds().Detect(headers, sample)
}

// Detect infers column roles from header names (first matching rule wins) and
// then marks unassigned categorical columns as dimensions.
func (t Thresholds) Detect(headers []string, sample []Row) DetectedColumns {
	t = t.WithDefaults()
	var out DetectedColumns
	if len(headers) == 0 || len(sample) == 0 {
		return out
	}
	if len(sample) > t.SampleSize {
		sample = sample[:t.SampleSize]
	}
	for i, h := range headers {
		name := normalizeHeader(h)
		for _, r := range detectionRules {
			if out.roles[r.role] != "" || !r.match(name, i) {
				continue
			}
			if r.accept == nil || r.accept(h, sample) {
				out.roles[r.role] = h
			}
			break
		}
	}

	assigned := make(map[string]struct{}, roleCount)
	for _, h := range out.roles {
		if h != "" {
			assigned[h] = struct{}{}
		}
	}
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, ok := assigned[h]; ok {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if t.isDimension(h, sample) {
			out.Dimensions = append(out.Dimensions, h)
		}
	}
	return out
}

func (t Thresholds) isDimension(header string, sample []Row) bool {
	unique := make(map[string]struct{})
	numeric := true
	nonEmpty := 0
	for _, r := range sample {
		v := r[header]
		if v == "" {
			continue
		}
		nonEmpty++
		unique[v] = struct{}{}
		if numeric {
			if _, ok := leadingNumber(v); !ok {
				numeric = false
			}
		}
	}
	if nonEmpty == 0 || numeric {
		return false
	}
	return len(unique) >= t.DimensionMinUnique && len(unique) <= t.DimensionMaxUnique
}

// Sample returns at most n leading rows.
func Sample(rows []Row, n int) []Row {
	if n <= 0 || len(rows) <= n {
		return rows
	}
	return rows[:n]
}
