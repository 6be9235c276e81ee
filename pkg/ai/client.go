package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Usage is the token count reported by the provider for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ErrProviderUnavailable marks transient provider failures worth retrying.
var ErrProviderUnavailable = errors.New("ai provider unavailable")

// Client talks to an OpenAI-compatible chat completions endpoint. Pointed at
// OpenRouter by default so models from several vendors are reachable through
// one API surface.
type Client struct {
	inner openai.Client
	model string
}

func NewClient(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &Client{inner: openai.NewClient(opts...), model: model}
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends a single-turn prompt and returns the raw response text with
// the provider's token usage. Temperature is kept low so the JSON analysis
// output stays stable across runs.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int64) (string, Usage, error) {
	resp, err := c.inner.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
				return "", Usage{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
			return "", Usage{}, fmt.Errorf("ai completion rejected: %v", err)
		}
		return "", Usage{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("ai completion returned no choices")
	}
	usage := Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}
