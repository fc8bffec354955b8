package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	"github.com/KaramelBytes/funnelscope/internal/server"
)

var (
	servePort     int
	serveProvider string
	serveModel    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis and chat HTTP API",
	Example: `  funnelscope serve --port 8080
  curl --data-binary @touches.csv localhost:8080/api/analyze?dimension=Region`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, providerName, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: serveProvider})
		if err != nil {
			return err
		}
		port := servePort
		if port <= 0 && cfg != nil {
			port = cfg.ServerPort
		}
		if port <= 0 {
			port = 8080
		}

		sc := server.Config{
			Runtime:    client,
			Model:      selectModel(cfg, providerName, serveModel),
			MaxTokens:  ai.DefaultAnthropicMaxTokens,
			MaxHistory: ai.DefaultMaxHistory,
			Thresholds: thresholds(),
			Logger:     zap.L(),
		}
		if cfg != nil {
			if cfg.MaxTokens > 0 {
				sc.MaxTokens = cfg.MaxTokens
			}
			if cfg.MaxAPIMessages > 0 {
				sc.MaxHistory = cfg.MaxAPIMessages
			}
			sc.Temperature = cfg.Temperature
			sc.ChatRate = cfg.ChatRatePerSec
			sc.ChatBurst = cfg.ChatBurst
			sc.MaxBodySize = int64(cfg.MaxUploadMB) << 20
			sc.CORSOrigins = cfg.CORSOrigins
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving on %s (provider=%s, model=%s)\n", addr, providerName, sc.Model)
		return server.New(sc).ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config, 8080)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "chat runtime: openrouter|anthropic|ollama (default from config)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "chat model (default from config)")
}
