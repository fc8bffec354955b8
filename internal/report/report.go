// Package report runs the full funnel analysis over a dataset and renders it.
package report

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/funnelscope/internal/dataset"
	"github.com/KaramelBytes/funnelscope/internal/funnel"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

// Row flags shown next to funnel rows.
const (
	TopPipelineShare  = 30.0
	WarnTouchShare    = 20.0
	WarnPipelineShare = 10.0
)

// Options selects the breakdowns and bounds of a report.
type Options struct {
	// Dimension groups the primary funnel. Defaults to the channel column,
	// then the first header.
	Dimension string
	// CrossCut groups the secondary funnel. Defaults to the first free
	// dimension other than Dimension.
	CrossCut   string
	Thresholds funnel.Thresholds
}

// DimensionVariance is the pipeline-per-touch spread for one grouping column.
type DimensionVariance struct {
	Dimension string                 `json:"dimension" yaml:"dimension"`
	Segments  int                    `json:"segments" yaml:"segments"`
	Variance  *funnel.VarianceResult `json:"variance,omitempty" yaml:"variance,omitempty"`
}

// Report is the full analysis of one dataset.
type Report struct {
	ID          string                 `json:"id" yaml:"id"`
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Source      string                 `json:"source" yaml:"source"`
	Rows        int                    `json:"rows" yaml:"rows"`
	TotalRows   int                    `json:"total_rows" yaml:"total_rows"`
	Truncated   bool                   `json:"truncated" yaml:"truncated"`
	Columns     funnel.DetectedColumns `json:"columns" yaml:"columns"`
	Totals      funnel.Totals          `json:"totals" yaml:"totals"`

	Dimension     string             `json:"dimension" yaml:"dimension"`
	Funnel        []funnel.FunnelRow `json:"funnel" yaml:"funnel"`
	Concentration *funnel.FunnelRow  `json:"concentration_risk,omitempty" yaml:"concentration_risk,omitempty"`

	CrossCut       string                 `json:"cross_cut,omitempty" yaml:"cross_cut,omitempty"`
	CrossFunnel    []funnel.FunnelRow     `json:"cross_funnel,omitempty" yaml:"cross_funnel,omitempty"`
	CrossVariance  *funnel.VarianceResult `json:"cross_variance,omitempty" yaml:"cross_variance,omitempty"`
	Variances      []DimensionVariance    `json:"variances" yaml:"variances"`
	DropOff        *funnel.DropOffResult  `json:"drop_off,omitempty" yaml:"drop_off,omitempty"`
	Recovery       *float64               `json:"recovery_estimate,omitempty" yaml:"recovery_estimate,omitempty"`
	Context        string                 `json:"context" yaml:"context"`
	ContextTokens  int                    `json:"context_tokens" yaml:"context_tokens"`
	ContextTooLong bool                   `json:"context_too_long,omitempty" yaml:"context_too_long,omitempty"`

	thresholds funnel.Thresholds
}

// Build detects columns on the dataset sample and runs every analysis.
func Build(ctx context.Context, ds *dataset.Dataset, opt Options) (*Report, error) {
	if ds == nil || len(ds.Headers) == 0 {
		return nil, eris.New("dataset has no columns")
	}
	t := opt.Thresholds.WithDefaults()
	cols := t.Detect(ds.Headers, ds.Sample(t.SampleSize))

	dim, err := pickDimension(ds.Headers, cols, opt.Dimension)
	if err != nil {
		return nil, err
	}
	cross, err := pickCrossCut(ds.Headers, cols, dim, opt.CrossCut)
	if err != nil {
		return nil, err
	}

	r := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Source:      ds.Name,
		Rows:        len(ds.Rows),
		TotalRows:   ds.Total,
		Truncated:   ds.Truncated,
		Columns:     cols,
		Dimension:   dim,
		CrossCut:    cross,
		thresholds:  t,
	}
	r.Funnel = funnel.Analyze(ds.Rows, cols, dim)
	r.Totals = funnel.ComputeTotals(r.Funnel)
	if top, ok := funnel.ConcentrationRisk(r.Funnel, t.ConcentrationRisk); ok {
		r.Concentration = &top
	}
	if cross != "" {
		r.CrossFunnel = funnel.Analyze(ds.Rows, cols, cross)
		r.CrossVariance = t.Classify(r.CrossFunnel)
	}
	r.DropOff = t.AnalyzeDropOff(ds.Rows, cols)
	if est, ok := funnel.RecoveryEstimate(r.DropOff, r.Totals, t.RecoveryRate); ok {
		r.Recovery = &est
	}

	options := cols.DimensionOptions()
	r.Variances = make([]DimensionVariance, len(options))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range options {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := funnel.Analyze(ds.Rows, cols, d)
			r.Variances[i] = DimensionVariance{Dimension: d, Segments: len(rows), Variance: t.Classify(rows)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "dimension variance")
	}

	r.Context = t.Summarize(ds.Rows, cols, r.Funnel, r.Totals, r.DropOff)
	r.ContextTokens = utils.CountTokens(r.Context)
	r.ContextTooLong = len(r.Context) > t.MaxContextLength

	zap.L().Debug("report built",
		zap.String("id", r.ID),
		zap.String("source", r.Source),
		zap.String("dimension", dim),
		zap.String("cross_cut", cross),
		zap.Int("segments", len(r.Funnel)),
		zap.Int("context_chars", len(r.Context)),
	)
	return r, nil
}

// Context detects columns and returns only the narrative data context.
func Context(ds *dataset.Dataset, t funnel.Thresholds) (string, error) {
	if ds == nil || len(ds.Headers) == 0 {
		return "", eris.New("dataset has no columns")
	}
	t = t.WithDefaults()
	cols := t.Detect(ds.Headers, ds.Sample(t.SampleSize))
	dim, _ := pickDimension(ds.Headers, cols, "")
	rows := funnel.Analyze(ds.Rows, cols, dim)
	return t.Summarize(ds.Rows, cols, rows, funnel.ComputeTotals(rows), t.AnalyzeDropOff(ds.Rows, cols)), nil
}

func pickDimension(headers []string, cols funnel.DetectedColumns, want string) (string, error) {
	if want != "" {
		if !slices.Contains(headers, want) {
			return "", eris.Errorf("dimension %q is not a column", want)
		}
		return want, nil
	}
	if ch, ok := cols.Column(funnel.RoleChannel); ok {
		return ch, nil
	}
	return headers[0], nil
}

func pickCrossCut(headers []string, cols funnel.DetectedColumns, dim, want string) (string, error) {
	if want != "" {
		if !slices.Contains(headers, want) {
			return "", eris.Errorf("cross-cut %q is not a column", want)
		}
		return want, nil
	}
	for _, d := range cols.Dimensions {
		if d != dim {
			return d, nil
		}
	}
	return "", nil
}

// IsTop marks a segment carrying an outsized share of pipeline.
func IsTop(r funnel.FunnelRow) bool { return r.PipelineShare > TopPipelineShare }

// IsWarn marks a segment that absorbs touches without producing pipeline.
func IsWarn(r funnel.FunnelRow) bool {
	return r.TouchShare > WarnTouchShare && r.PipelineShare < WarnPipelineShare
}
