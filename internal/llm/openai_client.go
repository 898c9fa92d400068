package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/okenna/parentcare/pkg/logging"
)

// OpenAIClient implements StreamingClient against any OpenAI-compatible
// chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	logger *logging.Logger
}

// NewOpenAIClient builds a client. baseURL is optional and supports
// OpenAI-compatible gateways.
func NewOpenAIClient(apiKey, baseURL string, logger *logging.Logger) *OpenAIClient {
	if strings.TrimSpace(apiKey) == "" {
		panic("llm: openai api key cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), logger: logger}
}

// CompleteStream opens a streaming chat completion and forwards deltas in
// provider order. Usage arrives on the terminal Done chunk.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("llm: model id is required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, sys := range req.System {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      messages,
		MaxTokens:     int(req.MaxTokens),
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)
		defer stream.Close()

		var usage TokenUsage
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				chunks <- StreamChunk{Done: true, Usage: usage}
				return
			}
			if err != nil {
				chunks <- StreamChunk{Err: err}
				return
			}
			if resp.Usage != nil {
				usage = TokenUsage{
					InputTokens:  int32(resp.Usage.PromptTokens),
					OutputTokens: int32(resp.Usage.CompletionTokens),
					TotalTokens:  int32(resp.Usage.TotalTokens),
				}
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					select {
					case chunks <- StreamChunk{Text: choice.Delta.Content}:
					case <-ctx.Done():
						chunks <- StreamChunk{Err: ctx.Err()}
						return
					}
				}
			}
		}
	}()

	return chunks, nil
}
