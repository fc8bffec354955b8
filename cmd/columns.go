package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/funnelscope/internal/funnel"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

var (
	colIngest ingestFlags
	colJSON   bool
)

var columnsCmd = &cobra.Command{
	Use:   "columns <file|dsn>",
	Short: "Show which columns were detected for each funnel role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := colIngest.load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		t := thresholds()
		cols := t.Detect(ds.Headers, ds.Sample(t.SampleSize))

		out := cmd.OutOrStdout()
		if colJSON {
			b, err := utils.PrettyJSON(cols)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}

		fmt.Fprintf(out, "Source: %s (%d rows, %d columns)\n\n", ds.Name, len(ds.Rows), len(ds.Headers))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range funnel.Roles() {
			h, ok := cols.Column(r)
			if !ok {
				h = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\n", r, h)
		}
		tw.Flush()
		if opts := cols.DimensionOptions(); len(opts) > 0 {
			fmt.Fprintf(out, "\nDimensions: %s\n", strings.Join(opts, ", "))
		} else {
			fmt.Fprintln(out, "\nDimensions: none")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(columnsCmd)
	addIngestFlags(columnsCmd, &colIngest)
	columnsCmd.Flags().BoolVar(&colJSON, "json", false, "emit the mapping as JSON")
}
