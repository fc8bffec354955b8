package cmd

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	"github.com/KaramelBytes/funnelscope/internal/report"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

var (
	askIngest      ingestFlags
	askProvider    string
	askModel       string
	askMaxTokens   int
	askTemp        float64
	askDryRun      bool
	askHistory     string
	askJSON        bool
	askQuiet       bool
	askOllamaHost  string
	askTimeoutSec  int
	askOutputPath  string
	askPromptLimit int
)

var askCmd = &cobra.Command{
	Use:   "ask <file|dsn> <question>",
	Short: "Ask the AI analyst a question about a touch export",
	Example: `  funnelscope ask touches.csv "Which channel should get more budget?"
  funnelscope ask touches.csv "Why are events underperforming?" --provider anthropic
  funnelscope ask touches.csv "And by region?" --history chat.json --json
  funnelscope ask touches.csv "What stands out?" --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flag vars are package-level; reset values not given in this parse.
		provided := map[string]bool{}
		cmd.Flags().Visit(func(fl *pflag.Flag) { provided[fl.Name] = true })
		if !provided["provider"] {
			askProvider = ""
		}
		if !provided["model"] {
			askModel = ""
		}
		if !provided["max-tokens"] {
			askMaxTokens = 0
		}
		if !provided["dry-run"] {
			askDryRun = false
		}
		if !provided["history"] {
			askHistory = ""
		}
		if !provided["json"] {
			askJSON = false
		}
		if !provided["quiet"] {
			askQuiet = false
		}
		if !provided["output"] {
			askOutputPath = ""
		}
		if !provided["prompt-limit"] {
			askPromptLimit = 0
		}
		if askJSON {
			askQuiet = true
		}
		out := cmd.OutOrStdout()

		history, err := loadHistory(askHistory)
		if err != nil {
			return err
		}
		history = append(history, ai.Message{Role: ai.RoleUser, Content: args[1]})
		if err := ai.ValidateHistory(history); err != nil {
			return err
		}

		ds, err := askIngest.load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		t := thresholds()
		summary, err := report.Context(ds, t)
		if err != nil {
			return err
		}
		if len(summary) > t.MaxContextLength {
			return fmt.Errorf("data context too long: %d characters (max %d)", len(summary), t.MaxContextLength)
		}
		if askPromptLimit > 0 && utils.CountTokens(summary) > askPromptLimit {
			if !askQuiet {
				fmt.Fprintf(out, "⚠ Data summary exceeds limit (%d > %d tokens). Truncating before send...\n", utils.CountTokens(summary), askPromptLimit)
			}
			summary = utils.TruncateToTokenLimit(summary, askPromptLimit)
		}

		client, providerName, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: askProvider, OllamaHost: askOllamaHost})
		if err != nil {
			return err
		}
		model := selectModel(cfg, providerName, askModel)
		maxTokens := askMaxTokens
		if maxTokens <= 0 && cfg != nil {
			maxTokens = cfg.MaxTokens
		}
		if maxTokens <= 0 {
			maxTokens = ai.DefaultAnthropicMaxTokens
		}
		temp := askTemp
		if !provided["temp"] && cfg != nil && cfg.Temperature > 0 {
			temp = cfg.Temperature
		}
		maxHistory := ai.DefaultMaxHistory
		if cfg != nil && cfg.MaxAPIMessages > 0 {
			maxHistory = cfg.MaxAPIMessages
		}
		req := ai.ChatRequest(model, summary, history, maxHistory, maxTokens, temp)

		promptTokens := 0
		for _, m := range req.Messages {
			promptTokens += utils.CountTokens(m.Content)
		}
		if !askQuiet {
			fmt.Fprintf(out, "Tokens: prompt≈%d across %d messages\n", promptTokens, len(req.Messages))
			if mi, ok := ai.LookupModel(model); ok {
				if promptTokens+maxTokens > mi.ContextTokens {
					fmt.Fprintf(out, "⚠ Prompt (%d tokens) + max-tokens (%d) exceeds %s context window (~%d tokens).\n",
						promptTokens, maxTokens, mi.Name, mi.ContextTokens)
				}
				if cost, ok := ai.EstimateCostUSD(model, promptTokens, maxTokens); ok && cost > 0 {
					fmt.Fprintf(out, "Estimated max cost: ~$%.4f (in %.4f/out %.4f per 1K tokens)\n", cost, mi.InputPerK, mi.OutputPerK)
				}
			}
		}

		if askDryRun {
			sum := sha1.Sum([]byte(req.Messages[0].Content))
			if !askQuiet {
				fmt.Fprintln(out, "\n--dry-run: no API call will be made. Request preview below --")
				fmt.Fprintf(out, "Request ID (dry-run): sim_%x\n", sum[:6])
			}
			b, err := utils.PrettyJSON(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		}

		timeoutSec := askTimeoutSec
		if timeoutSec <= 0 {
			timeoutSec = 180
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
		defer cancel()

		if !askQuiet {
			fmt.Fprintf(out, "⚙ Asking %s (model=%s) ...\n", providerName, model)
		}
		start := time.Now()
		resp, err := client.Generate(ctx, req)
		if err != nil {
			return explainRuntimeError(err, providerName, model)
		}
		zap.L().Debug("analyst replied",
			zap.String("provider", providerName),
			zap.String("request_id", resp.RequestID),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Duration("elapsed", time.Since(start)),
		)
		content := resp.Content()
		if content == "" {
			return fmt.Errorf("no content returned from model")
		}
		return writeAnswer(out, content, answerOptions{
			JSON:         askJSON,
			Quiet:        askQuiet,
			Provider:     providerName,
			Model:        model,
			MaxTokens:    maxTokens,
			Temperature:  temp,
			PromptTokens: promptTokens,
			RequestID:    resp.RequestID,
			History:      append(history, ai.Message{Role: ai.RoleAssistant, Content: content}),
			OutputPath:   askOutputPath,
		})
	},
}

// loadHistory reads a JSON array of prior {role, content} messages.
func loadHistory(path string) ([]ai.Message, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var msgs []ai.Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return msgs, nil
}

type answerOptions struct {
	JSON         bool
	Quiet        bool
	Provider     string
	Model        string
	MaxTokens    int
	Temperature  float64
	PromptTokens int
	RequestID    string
	// History is the full conversation including the new answer; it is what
	// --output saves so the next --history call can continue from it.
	History    []ai.Message
	OutputPath string
}

func writeAnswer(w io.Writer, content string, opts answerOptions) error {
	if opts.JSON {
		b, err := utils.PrettyJSON(map[string]any{
			"provider":      opts.Provider,
			"model":         opts.Model,
			"max_tokens":    opts.MaxTokens,
			"temperature":   opts.Temperature,
			"prompt_tokens": opts.PromptTokens,
			"request_id":    opts.RequestID,
			"content":       content,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	} else if opts.Quiet {
		fmt.Fprintln(w, content)
	} else {
		if opts.RequestID != "" {
			fmt.Fprintf(w, "Request ID: %s\n", opts.RequestID)
		}
		fmt.Fprintln(w, "\n=== Analyst ===")
		fmt.Fprintln(w, content)
	}

	if opts.OutputPath == "" {
		return nil
	}
	b, err := utils.PrettyJSON(opts.History)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(opts.OutputPath, b); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	if !opts.Quiet {
		fmt.Fprintf(w, "\n💾 Saved conversation to %s\n", opts.OutputPath)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	addIngestFlags(askCmd, &askIngest)
	askCmd.Flags().StringVar(&askProvider, "provider", "", "chat runtime: openrouter|anthropic|ollama (default from config)")
	askCmd.Flags().StringVar(&askModel, "model", "", "override model (default from config)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "max tokens for the answer")
	askCmd.Flags().Float64Var(&askTemp, "temp", 0.3, "sampling temperature")
	askCmd.Flags().BoolVar(&askDryRun, "dry-run", false, "print the request without calling the runtime")
	askCmd.Flags().StringVar(&askHistory, "history", "", "JSON file with prior messages ([{role, content}])")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "emit the answer as JSON")
	askCmd.Flags().BoolVar(&askQuiet, "quiet", false, "suppress non-essential output")
	askCmd.Flags().StringVar(&askOllamaHost, "ollama-host", "", "override Ollama host (e.g., http://127.0.0.1:11434)")
	askCmd.Flags().IntVar(&askTimeoutSec, "timeout-sec", 180, "request timeout in seconds")
	askCmd.Flags().IntVar(&askPromptLimit, "prompt-limit", 0, "truncate the data summary to this many tokens before sending")
	askCmd.Flags().StringVarP(&askOutputPath, "output", "o", "", "save the conversation (history plus answer) as JSON")
}
