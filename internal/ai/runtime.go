package ai

import "context"

// Runtime is implemented by chat backends such as OpenRouter, Anthropic and
// a local Ollama.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderOllama     = "ollama"
	ProviderLocal      = "local"
)

// NormalizeProvider maps user spellings to a registered provider name.
func NormalizeProvider(p string) (string, bool) {
	switch p {
	case "openrouter", "OpenRouter", "OPENROUTER", "":
		return ProviderOpenRouter, true
	case "anthropic", "Anthropic", "ANTHROPIC", "claude":
		return ProviderAnthropic, true
	case "ollama", "Ollama", "local", "LOCAL":
		return ProviderOllama, true
	}
	return "", false
}
