package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/funnelscope/internal/report"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

var (
	anaIngest     ingestFlags
	anaDimension  string
	anaCrossCut   string
	anaFormat     string
	anaOutputPath string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|dsn>",
	Short: "Report funnel conversion, concentration and drop-off for a touch export",
	Example: `  funnelscope analyze touches.csv
  funnelscope analyze touches.xlsx --sheet-name Q3 --dimension Region
  funnelscope analyze touches.csv --format markdown --output report.md
  funnelscope analyze ./crm.db --sql-driver sqlite --sql-query "select * from touches"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		render, err := renderer(anaFormat)
		if err != nil {
			return err
		}
		ds, err := anaIngest.load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		rep, err := report.Build(cmd.Context(), ds, report.Options{
			Dimension:  anaDimension,
			CrossCut:   anaCrossCut,
			Thresholds: thresholds(),
		})
		if err != nil {
			return err
		}
		zap.L().Debug("report built", zap.String("id", rep.ID), zap.String("dimension", rep.Dimension))

		b, err := render(rep)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), anaOutputPath, b)
	},
}

func renderer(format string) (func(*report.Report) ([]byte, error), error) {
	switch format {
	case "", "text":
		return func(r *report.Report) ([]byte, error) { return []byte(r.Text()), nil }, nil
	case "markdown", "md":
		return func(r *report.Report) ([]byte, error) { return []byte(r.Markdown()), nil }, nil
	case "json":
		return func(r *report.Report) ([]byte, error) {
			b, err := utils.PrettyJSON(r)
			if err != nil {
				return nil, err
			}
			return append(b, '\n'), nil
		}, nil
	case "yaml", "yml":
		return func(r *report.Report) ([]byte, error) {
			b, err := yaml.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("marshal yaml: %w", err)
			}
			return b, nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported --format: %s (use text|markdown|json|yaml)", format)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addIngestFlags(analyzeCmd, &anaIngest)
	analyzeCmd.Flags().StringVar(&anaDimension, "dimension", "", "column for the primary funnel (default: channel column, else first column)")
	analyzeCmd.Flags().StringVar(&anaCrossCut, "cross-cut", "", "column for the secondary funnel (default: first other dimension)")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "text", "output format: text|markdown|json|yaml")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report")
}
