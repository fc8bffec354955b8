package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Anthropic defaults.
const (
	DefaultAnthropicModel     = "claude-sonnet-4-20250514"
	DefaultAnthropicMaxTokens = 2000
)

// AnthropicClient is a Runtime backed by the official Anthropic SDK.
type AnthropicClient struct {
	client sdk.Client
	apiKey string
}

// NewAnthropicClient builds a client. baseURL may be empty.
func NewAnthropicClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(httpTimeout))
	}
	if retryMax > 0 {
		opts = append(opts, option.WithMaxRetries(retryMax-1))
	}
	return &AnthropicClient{client: sdk.NewClient(opts...), apiKey: apiKey}
}

// Generate maps system messages to system blocks and the rest to turns.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, eris.New("ANTHROPIC_API_KEY is missing")
	}
	if req.Model == "" {
		req.Model = DefaultAnthropicModel
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, eris.New("messages cannot be empty")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  toSDKMessages(turns),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &GenerateResponse{
		ID:      msg.ID,
		Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: text.String()}}},
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		RequestID: msg.ID,
	}, nil
}

func splitSystem(msgs []Message) ([]sdk.TextBlockParam, []Message) {
	var system []sdk.TextBlockParam
	turns := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, sdk.TextBlockParam{Text: m.Content})
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

// mapAnthropicError converts SDK status errors into the typed errors shared
// by every runtime.
func mapAnthropicError(err error) error {
	var se *sdk.Error
	if !errors.As(err, &se) {
		return eris.Wrap(err, "anthropic: create message")
	}
	apiErr := &APIError{StatusCode: se.StatusCode, Message: se.Error()}
	if se.Response != nil {
		apiErr.RequestID = se.Response.Header.Get("Request-Id")
	}
	resp := se.Response
	if resp == nil {
		resp = &http.Response{Header: http.Header{}}
	}
	return classifyAPIError(apiErr, resp)
}
