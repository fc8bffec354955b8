package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/funnelscope/internal/ai"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect chat runtimes and the model catalog",
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show known models with context windows and pricing",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tCONTEXT\tIN/1K\tOUT/1K")
		for _, mi := range ai.Catalog() {
			fmt.Fprintf(tw, "%s\t%d\t$%.5f\t$%.5f\n", mi.Name, mi.ContextTokens, mi.InputPerK, mi.OutputPerK)
		}
		tw.Flush()
		fmt.Fprintf(out, "\nProviders: %v\n", ai.Providers())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
}
