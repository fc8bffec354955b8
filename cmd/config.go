package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	cfgpkg "github.com/KaramelBytes/funnelscope/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set funnelscope configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "api_key: %s\n", mask(cfg.APIKey))
		fmt.Fprintf(out, "anthropic_api_key: %s\n", mask(cfg.AnthropicAPIKey))
		fmt.Fprintf(out, "default_provider: %s\n", cfg.DefaultProvider)
		fmt.Fprintf(out, "default_model: %s\n", cfg.DefaultModel)
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", cfg.Temperature)
		fmt.Fprintf(out, "max_api_messages: %d\n", cfg.MaxAPIMessages)
		fmt.Fprintf(out, "ollama_host: %s\n", cfg.OllamaHost)
		fmt.Fprintf(out, "server_port: %d\n", cfg.ServerPort)
		fmt.Fprintf(out, "chat_rate_per_sec: %.2f\n", cfg.ChatRatePerSec)

		t := cfg.Thresholds()
		fmt.Fprintln(out, "analysis:")
		fmt.Fprintf(out, "  sample_size: %d\n", t.SampleSize)
		fmt.Fprintf(out, "  variance_min_touches: %d\n", t.VarianceMinTouches)
		fmt.Fprintf(out, "  recovery_rate: %.2f\n", t.RecoveryRate)
		fmt.Fprintf(out, "  concentration_risk: %.1f\n", t.ConcentrationRisk)
		fmt.Fprintf(out, "  max_context_length: %d\n", t.MaxContextLength)
		fmt.Fprintf(out, "log: level=%s format=%s\n", cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "api_key":
		c.APIKey = val
	case "anthropic_api_key":
		c.AnthropicAPIKey = val
	case "anthropic_base_url":
		c.AnthropicBaseURL = val
	case "default_model":
		c.DefaultModel = val
	case "default_provider":
		p, ok := ai.NormalizeProvider(val)
		if !ok {
			return fmt.Errorf("invalid default_provider: %s (use %s)", val, strings.Join(ai.Providers(), " or "))
		}
		c.DefaultProvider = p
	case "ollama_host":
		c.OllamaHost = val
	case "models_catalog":
		c.ModelsCatalog = val
	case "max_tokens", "max_api_messages", "server_port", "analysis.sample_size",
		"analysis.variance_min_touches", "analysis.max_context_length":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		switch key {
		case "max_tokens":
			c.MaxTokens = i
		case "max_api_messages":
			c.MaxAPIMessages = i
		case "server_port":
			c.ServerPort = i
		case "analysis.sample_size":
			c.Analysis.SampleSize = i
		case "analysis.variance_min_touches":
			c.Analysis.VarianceMinTouches = i
		case "analysis.max_context_length":
			c.Analysis.MaxContextLength = i
		}
	case "temperature", "chat_rate_per_sec", "analysis.recovery_rate", "analysis.concentration_risk":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for %s: %v", key, val)
		}
		switch key {
		case "temperature":
			c.Temperature = f
		case "chat_rate_per_sec":
			c.ChatRatePerSec = f
		case "analysis.recovery_rate":
			c.Analysis.RecoveryRate = f
		case "analysis.concentration_risk":
			c.Analysis.ConcentrationRisk = f
		}
	case "log.level":
		c.Log.Level = val
	case "log.format":
		if val != "json" && val != "console" {
			return fmt.Errorf("invalid log.format: %s (use json or console)", val)
		}
		c.Log.Format = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
