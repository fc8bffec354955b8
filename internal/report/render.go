package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/KaramelBytes/funnelscope/internal/funnel"
)

var funnelHeader = []string{"Segment", "Touches", "Touch %", "Mtgs", "Mtg Rate", "Opps", "Mtg→Opp", "Pipeline", "Pipe %", "$/Touch", "Won", "Win Rate", "Flags"}

func mark(b funnel.Band) string {
	switch b {
	case funnel.BandPositive:
		return " ▲"
	case funnel.BandNegative:
		return " ▼"
	}
	return ""
}

func flags(r funnel.FunnelRow) string {
	var f []string
	if IsTop(r) {
		f = append(f, "top")
	}
	if IsWarn(r) {
		f = append(f, "low-yield")
	}
	return strings.Join(f, ",")
}

func funnelCells(r funnel.FunnelRow, t funnel.Thresholds) []string {
	return []string{
		r.Name,
		funnel.FormatNumber(r.Touches),
		funnel.FormatPercent(r.TouchShare),
		funnel.FormatNumber(r.Meetings),
		funnel.FormatPercent(r.MeetingRate) + mark(t.MeetingRateBand(r.MeetingRate)),
		funnel.FormatNumber(r.Opportunities),
		funnel.FormatPercent(r.MeetingToOpp) + mark(t.MeetingToOppBand(r.MeetingToOpp)),
		funnel.FormatCurrency(r.Pipeline),
		funnel.FormatPercent(r.PipelineShare),
		funnel.FormatCurrency(r.PipelinePerTouch) + mark(t.PipelinePerTouchBand(r.PipelinePerTouch)),
		funnel.FormatCurrency(r.ClosedWon),
		funnel.FormatPercent(r.WinRate),
		flags(r),
	}
}

func varianceLabel(v *funnel.VarianceResult) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1fx (%s)", v.Ratio, v.Signal)
}

func (r *Report) rowsLine() string {
	if r.Truncated {
		return fmt.Sprintf("Rows: %s (of %s, truncated)", funnel.FormatNumber(r.Rows), funnel.FormatNumber(r.TotalRows))
	}
	return "Rows: " + funnel.FormatNumber(r.Rows)
}

// Text renders the report as aligned plain-text tables.
func (r *Report) Text() string {
	t := r.thresholds.WithDefaults()
	var b strings.Builder

	b.WriteString("[FUNNEL REPORT]\n")
	fmt.Fprintf(&b, "Source: %s\n%s\n", r.Source, r.rowsLine())
	fmt.Fprintf(&b, "Report: %s (%s)\n\n", r.ID, r.GeneratedAt.Format(time.RFC3339))

	b.WriteString("[DETECTED COLUMNS]\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, role := range funnel.Roles() {
		h, ok := r.Columns.Column(role)
		if !ok {
			h = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", role, h)
	}
	tw.Flush()
	fmt.Fprintf(&b, "Dimensions: %s\n\n", orDash(strings.Join(r.Columns.Dimensions, ", ")))

	b.WriteString("[TOTALS]\n")
	tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Touches\t%s\n", funnel.FormatNumber(r.Totals.Touches))
	fmt.Fprintf(tw, "Meetings\t%s\n", funnel.FormatNumber(r.Totals.Meetings))
	fmt.Fprintf(tw, "Opportunities\t%s\n", funnel.FormatNumber(r.Totals.Opportunities))
	fmt.Fprintf(tw, "Pipeline\t%s\n", funnel.FormatCurrency(r.Totals.Pipeline))
	fmt.Fprintf(tw, "Closed won\t%s\n", funnel.FormatCurrency(r.Totals.ClosedWon))
	fmt.Fprintf(tw, "Meeting rate\t%s%s\n", funnel.FormatPercent(r.Totals.MeetingRate()), mark(t.MeetingRateBand(r.Totals.MeetingRate())))
	fmt.Fprintf(tw, "Mtg→Opp\t%s%s\n", funnel.FormatPercent(r.Totals.MeetingToOpp()), mark(t.MeetingToOppBand(r.Totals.MeetingToOpp())))
	fmt.Fprintf(tw, "Pipeline/touch\t%s%s\n", funnel.FormatCurrency(r.Totals.PipelinePerTouch()), mark(t.PipelinePerTouchBand(r.Totals.PipelinePerTouch())))
	tw.Flush()

	fmt.Fprintf(&b, "\n[FUNNEL BY %s]\n", strings.ToUpper(r.Dimension))
	writeTextTable(&b, r.Funnel, t)
	if r.Concentration != nil {
		fmt.Fprintf(&b, "⚠ Concentration risk: %s holds %s of pipeline\n", r.Concentration.Name, funnel.FormatPercent(r.Concentration.PipelineShare))
	}

	if r.CrossCut != "" {
		fmt.Fprintf(&b, "\n[CROSS-CUT BY %s]\n", strings.ToUpper(r.CrossCut))
		fmt.Fprintf(&b, "Pipeline/touch variance: %s\n", varianceLabel(r.CrossVariance))
		writeTextTable(&b, r.CrossFunnel, t)
	}

	if len(r.Variances) > 0 {
		b.WriteString("\n[DIMENSION VARIANCE]\n")
		tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		for _, v := range r.Variances {
			fmt.Fprintf(tw, "%s\t%d segments\t%s\n", v.Dimension, v.Segments, varianceLabel(v.Variance))
		}
		tw.Flush()
	}

	if r.DropOff != nil {
		b.WriteString("\n[DROP-OFF]\n")
		writeDropOff(&b, r, t, "")
	}
	return b.String()
}

func writeTextTable(w io.Writer, rows []funnel.FunnelRow, t funnel.Thresholds) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(funnelHeader, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(funnelCells(r, t), "\t"))
	}
	tw.Flush()
}

func writeDropOff(b *strings.Builder, r *Report, t funnel.Thresholds, bullet string) {
	d := r.DropOff
	fmt.Fprintf(b, "%s engaged contacts, %s (%s) did not book a meeting.\n",
		funnel.FormatNumber(d.Attended), funnel.FormatNumber(d.NoMeeting), funnel.FormatPercent(d.NoMeetingRate()))
	if r.Recovery != nil {
		fmt.Fprintf(b, "Recovering %.0f%% of them would add about %s pipeline.\n", t.RecoveryRate*100, funnel.FormatCurrency(*r.Recovery))
	}
	for _, bd := range d.Breakdowns {
		parts := make([]string, 0, len(bd.Counts))
		for _, c := range bd.Sorted() {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Key, c.Count))
		}
		fmt.Fprintf(b, "%s%s: %s\n", bullet, bd.Label, strings.Join(parts, ", "))
	}
}

// Markdown renders the report with pipe tables, suitable for prompts and docs.
func (r *Report) Markdown() string {
	t := r.thresholds.WithDefaults()
	var b strings.Builder

	b.WriteString("[FUNNEL REPORT]\n")
	fmt.Fprintf(&b, "Source: %s\n%s\n\n", r.Source, r.rowsLine())

	b.WriteString("[DETECTED COLUMNS]\n")
	for _, role := range funnel.Roles() {
		if h, ok := r.Columns.Column(role); ok {
			fmt.Fprintf(&b, "- %s: %s\n", role, h)
		}
	}
	if len(r.Columns.Dimensions) > 0 {
		fmt.Fprintf(&b, "- dimensions: %s\n", strings.Join(r.Columns.Dimensions, ", "))
	}

	b.WriteString("\n[TOTALS]\n")
	fmt.Fprintf(&b, "- %s touches → %s meetings (%s) → %s opportunities (%s mtg→opp)\n",
		funnel.FormatNumber(r.Totals.Touches), funnel.FormatNumber(r.Totals.Meetings), funnel.FormatPercent(r.Totals.MeetingRate()),
		funnel.FormatNumber(r.Totals.Opportunities), funnel.FormatPercent(r.Totals.MeetingToOpp()))
	fmt.Fprintf(&b, "- %s pipeline, %s per touch, %s closed won\n",
		funnel.FormatCurrency(r.Totals.Pipeline), funnel.FormatCurrency(r.Totals.PipelinePerTouch()), funnel.FormatCurrency(r.Totals.ClosedWon))

	fmt.Fprintf(&b, "\n[FUNNEL BY %s]\n", strings.ToUpper(r.Dimension))
	writeMarkdownTable(&b, r.Funnel, t)
	if r.Concentration != nil {
		fmt.Fprintf(&b, "\n> ⚠ Concentration risk: %s holds %s of pipeline.\n", r.Concentration.Name, funnel.FormatPercent(r.Concentration.PipelineShare))
	}

	if r.CrossCut != "" {
		fmt.Fprintf(&b, "\n[CROSS-CUT BY %s]\n", strings.ToUpper(r.CrossCut))
		fmt.Fprintf(&b, "Pipeline/touch variance: %s\n\n", varianceLabel(r.CrossVariance))
		writeMarkdownTable(&b, r.CrossFunnel, t)
	}

	if len(r.Variances) > 0 {
		b.WriteString("\n[DIMENSION VARIANCE]\n")
		for _, v := range r.Variances {
			fmt.Fprintf(&b, "- %s (%d segments): %s\n", v.Dimension, v.Segments, varianceLabel(v.Variance))
		}
	}

	if r.DropOff != nil {
		b.WriteString("\n[DROP-OFF]\n")
		writeDropOff(&b, r, t, "- ")
	}
	return b.String()
}

func writeMarkdownTable(b *strings.Builder, rows []funnel.FunnelRow, t funnel.Thresholds) {
	b.WriteString("| " + strings.Join(funnelHeader, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(funnelHeader)) + "\n")
	for _, r := range rows {
		cells := funnelCells(r, t)
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(c, "|", "\\|")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
