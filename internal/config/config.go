package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/funnelscope/internal/funnel"
	"github.com/KaramelBytes/funnelscope/internal/utils"
)

// EnvPrefix is prepended to every environment override, e.g. FUNNELSCOPE_API_KEY.
const EnvPrefix = "FUNNELSCOPE"

// Global configuration structure.
type Global struct {
	APIKey           string  `mapstructure:"api_key" yaml:"api_key"`
	AnthropicAPIKey  string  `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"`
	AnthropicBaseURL string  `mapstructure:"anthropic_base_url" yaml:"anthropic_base_url,omitempty"`
	DefaultProvider  string  `mapstructure:"default_provider" yaml:"default_provider"`
	DefaultModel     string  `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens        int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxAPIMessages   int     `mapstructure:"max_api_messages" yaml:"max_api_messages"`
	// Optional JSON file merged into the model catalog.
	ModelsCatalog string `mapstructure:"models_catalog" yaml:"models_catalog,omitempty"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// HTTP API
	ServerPort     int      `mapstructure:"server_port" yaml:"server_port"`
	ChatRatePerSec float64  `mapstructure:"chat_rate_per_sec" yaml:"chat_rate_per_sec"`
	ChatBurst      int      `mapstructure:"chat_burst" yaml:"chat_burst"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	CORSOrigins    []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	Analysis funnel.Thresholds `mapstructure:"analysis" yaml:"analysis"`
	Log      LogConfig         `mapstructure:"log" yaml:"log"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Thresholds returns the analysis section with unset fields defaulted.
func (c *Global) Thresholds() funnel.Thresholds {
	if c == nil {
		return funnel.DefaultThresholds()
	}
	return c.Analysis.WithDefaults()
}

// ModelFor picks the configured model when provider is the default one,
// otherwise a sensible model for provider.
func (c *Global) ModelFor(provider string) string {
	if c != nil && c.DefaultModel != "" && (provider == "" || provider == c.DefaultProvider) {
		return c.DefaultModel
	}
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-20250514"
	case "ollama":
		return "llama3.1:8b"
	}
	return "openai/gpt-4o-mini"
}

// DefaultPath is ~/.funnelscope/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", eris.Wrap(err, "resolve home dir")
	}
	return filepath.Join(home, ".funnelscope", "config.yaml"), nil
}

// Save writes the given configuration to cfgFile, or DefaultPath when empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "marshal yaml")
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return eris.Wrap(err, "write config")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_base_url", "")
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("max_tokens", 2000)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_api_messages", 50)
	v.SetDefault("models_catalog", "")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
	// HTTP API
	v.SetDefault("server_port", 8080)
	v.SetDefault("chat_rate_per_sec", 1.0)
	v.SetDefault("chat_burst", 3)
	v.SetDefault("max_upload_mb", 50)
	v.SetDefault("cors_origins", []string{"*"})

	t := funnel.DefaultThresholds()
	for k, val := range map[string]any{
		"sample_size":              t.SampleSize,
		"dimension_min_unique":     t.DimensionMinUnique,
		"dimension_max_unique":     t.DimensionMaxUnique,
		"dropoff_min_segments":     t.DropOffMinSegments,
		"dropoff_max_segments":     t.DropOffMaxSegments,
		"variance_min_touches":     t.VarianceMinTouches,
		"variance_strong":          t.VarianceStrong,
		"variance_moderate":        t.VarianceModerate,
		"recovery_rate":            t.RecoveryRate,
		"concentration_risk":       t.ConcentrationRisk,
		"meeting_rate_green":       t.MeetingRateGreen,
		"meeting_rate_red":         t.MeetingRateRed,
		"pipeline_per_touch_green": t.PipelinePerTouchGreen,
		"pipeline_per_touch_red":   t.PipelinePerTouchRed,
		"meeting_to_opp_green":     t.MeetingToOppGreen,
		"meeting_to_opp_red":       t.MeetingToOppRed,
		"summary_dimensions":       t.SummaryDimensions,
		"max_context_length":       t.MaxContextLength,
	} {
		v.SetDefault("analysis."+k, val)
	}

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A missing file is not an error.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, eris.Wrap(err, "resolve home dir")
		}
		v.AddConfigPath(filepath.Join(home, ".funnelscope"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrap(err, "read config")
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, eris.Wrap(err, "unmarshal config")
	}
	// Provider-native env names, as the SDKs read them.
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if c.AnthropicAPIKey == "" {
		c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &c, nil
}

// InitLogger installs the global zap logger. Format "json" selects the
// production encoder; anything else logs to the console.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
	}
	lvl := cfg.Level
	if lvl == "" {
		lvl = "warn"
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return eris.Wrap(err, "parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
