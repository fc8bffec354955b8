package ai

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/rotisserie/eris"
)

// ModelInfo is model metadata used for context-window and cost warnings.
// Prices are approximate.
type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var models = map[string]ModelInfo{
	"openai/gpt-4o-mini": {
		Name:          "openai/gpt-4o-mini",
		ContextTokens: 128000,
		InputPerK:     0.00015,
		OutputPerK:    0.0006,
	},
	"openai/gpt-4o": {
		Name:          "openai/gpt-4o",
		ContextTokens: 128000,
		InputPerK:     0.0025,
		OutputPerK:    0.01,
	},
	"anthropic/claude-sonnet-4": {
		Name:          "anthropic/claude-sonnet-4",
		ContextTokens: 200000,
		InputPerK:     0.003,
		OutputPerK:    0.015,
	},
	"google/gemini-2.5-flash": {
		Name:          "google/gemini-2.5-flash",
		ContextTokens: 1000000,
		InputPerK:     0.0003,
		OutputPerK:    0.0025,
	},
	DefaultAnthropicModel: {
		Name:          DefaultAnthropicModel,
		ContextTokens: 200000,
		InputPerK:     0.003,
		OutputPerK:    0.015,
	},
	"claude-3-5-haiku-20241022": {
		Name:          "claude-3-5-haiku-20241022",
		ContextTokens: 200000,
		InputPerK:     0.0008,
		OutputPerK:    0.004,
	},
	"llama3.1:8b": {
		Name:          "llama3.1:8b",
		ContextTokens: 131072,
	},
	"mistral-nemo:latest": {
		Name:          "mistral-nemo:latest",
		ContextTokens: 128000,
	},
	"phi3:mini-4k-instruct": {
		Name:          "phi3:mini-4k-instruct",
		ContextTokens: 4096,
	},
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
//
//	{ "openai/gpt-4o-mini": {"Name":"openai/gpt-4o-mini","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open model catalog")
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, eris.Wrapf(err, "decode model catalog %s", path)
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	for k, v := range m {
		models[k] = v
	}
}

// Catalog returns every known model sorted by name.
func Catalog() []ModelInfo {
	out := make([]ModelInfo, 0, len(models))
	for _, mi := range models {
		out = append(out, mi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
