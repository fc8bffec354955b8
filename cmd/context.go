package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	"github.com/KaramelBytes/funnelscope/internal/report"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

var (
	ctxIngest     ingestFlags
	ctxOutputPath string
	ctxQuiet      bool
)

var contextCmd = &cobra.Command{
	Use:   "context <file|dsn>",
	Short: "Print the data summary handed to the AI analyst",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := ctxIngest.load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		t := thresholds()
		summary, err := report.Context(ds, t)
		if err != nil {
			return err
		}
		if len(summary) > t.MaxContextLength {
			return fmt.Errorf("data context too long: %d characters (max %d); reduce rows with --max-rows or raise analysis.max_context_length",
				len(summary), t.MaxContextLength)
		}

		if err := writeResult(cmd.OutOrStdout(), ctxOutputPath, []byte(summary+"\n")); err != nil {
			return err
		}
		if !ctxQuiet {
			tk := utils.TokenBreakdown(map[string]string{
				"instructions": ai.BuildSystemPrompt(""),
				"data":         summary,
			})
			fmt.Fprintf(os.Stderr, "Tokens: total≈%d (instructions≈%d, data≈%d)\n",
				tk["instructions"]+tk["data"], tk["instructions"], tk["data"])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contextCmd)
	addIngestFlags(contextCmd, &ctxIngest)
	contextCmd.Flags().StringVarP(&ctxOutputPath, "output", "o", "", "optional path to write the summary")
	contextCmd.Flags().BoolVar(&ctxQuiet, "quiet", false, "suppress the token estimate")
}
