package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	cfgpkg "github.com/KaramelBytes/funnelscope/internal/config"
	"github.com/KaramelBytes/funnelscope/internal/dataset"
	"github.com/KaramelBytes/funnelscope/internal/funnel"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

// ingestFlags are the source options shared by every command that reads a dataset.
type ingestFlags struct {
	Delimiter  string
	SheetName  string
	SheetIndex int
	SQLDriver  string
	SQLQuery   string
	MaxRows    int
}

func addIngestFlags(cmd *cobra.Command, f *ingestFlags) {
	cmd.Flags().StringVar(&f.Delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' | 'pipe' (default by extension)")
	cmd.Flags().StringVar(&f.SheetName, "sheet-name", "", "XLSX: sheet name to read")
	cmd.Flags().IntVar(&f.SheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	cmd.Flags().StringVar(&f.SQLDriver, "sql-driver", "", "read from a database instead of a file: sqlite|postgres (the argument is the DSN)")
	cmd.Flags().StringVar(&f.SQLQuery, "sql-query", "", "query returning one row per touch (with --sql-driver)")
	cmd.Flags().IntVar(&f.MaxRows, "max-rows", 500000, "maximum rows to read (0 = unlimited)")
}

func (f ingestFlags) options() (dataset.Options, error) {
	delim, err := dataset.ParseDelimiter(f.Delimiter)
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		MaxRows:    f.MaxRows,
		Delimiter:  delim,
		SheetName:  f.SheetName,
		SheetIndex: f.SheetIndex,
	}, nil
}

// load reads src as a file path, or as a DSN when --sql-driver is set.
func (f ingestFlags) load(ctx context.Context, src string) (*dataset.Dataset, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	var ds *dataset.Dataset
	if f.SQLDriver != "" {
		ds, err = dataset.LoadSQL(ctx, strings.ToLower(f.SQLDriver), src, f.SQLQuery, opt)
	} else {
		ds, err = dataset.Load(ctx, src, opt)
	}
	if err != nil {
		return nil, err
	}
	if len(ds.Headers) == 0 {
		return nil, fmt.Errorf("%s has no header row", src)
	}
	if ds.Truncated {
		fmt.Fprintf(os.Stderr, "⚠ Read the first %d of %d rows (raise --max-rows to include more)\n", len(ds.Rows), ds.Total)
	}
	return ds, nil
}

func thresholds() funnel.Thresholds {
	return cfg.Thresholds()
}

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	raw := strings.TrimSpace(opts.ProviderFlag)
	if raw == "" && cfg != nil {
		raw = cfg.DefaultProvider
	}
	providerName, ok := ai.NormalizeProvider(raw)
	if !ok {
		return nil, raw, fmt.Errorf("provider not supported: %s (use %s)", raw, strings.Join(ai.Providers(), "|"))
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
	if cfg != nil {
		rc.APIKey = cfg.APIKey
		rc.AnthropicAPIKey = cfg.AnthropicAPIKey
		rc.AnthropicBaseURL = cfg.AnthropicBaseURL
	}
	if rc.APIKey == "" {
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if rc.AnthropicAPIKey == "" {
		rc.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil && cfg.OllamaHost != "" {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
		if v := os.Getenv("FUNNELSCOPE_OLLAMA_TIMEOUT_SEC"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				rc.HTTPTimeout = time.Duration(n) * time.Second
			}
		} else if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s", providerName)
	}
	zap.L().Debug("runtime selected", zap.String("provider", providerName), zap.Duration("timeout", rc.HTTPTimeout))
	return client, providerName, nil
}

func selectModel(cfg *cfgpkg.Global, provider, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return cfg.ModelFor(provider)
}

// explainRuntimeError adds a user-facing hint to typed provider errors.
func explainRuntimeError(err error, provider, model string) error {
	var (
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
		unreach *ai.UnreachableError
	)
	switch {
	case errors.As(err, &unreach):
		return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct (config 'ollama_host'): %w", unreach.Host, err)
	case errors.As(err, &authErr):
		if provider == ai.ProviderAnthropic {
			return fmt.Errorf("authentication failed: set ANTHROPIC_API_KEY or anthropic_api_key in config: %w", err)
		}
		return fmt.Errorf("authentication failed: set OPENROUTER_API_KEY or api_key in config (~/.funnelscope/config.yaml): %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if provider == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name or run 'funnelscope models show': %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request invalid. Try fewer history messages or a smaller --max-tokens: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	}
	return fmt.Errorf("generation failed: %w", err)
}

// writeResult prints data to w, or saves it to path when one is given.
func writeResult(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := utils.SafeWriteFile(path, data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(w, "✓ Wrote %s\n", path)
	return nil
}
