package generation

import (
	"context"
	"errors"
	"fmt"
	"io"

	"command-deck-server-go/internal/platform/logging"

	openai "github.com/sashabaranov/go-openai"
)

// APIConfig configures the HTTP backend. BaseURL points at an
// OpenAI-compatible endpoint; the Gemini compatibility surface works here
// unchanged.
type APIConfig struct {
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// APIBackend generates through the provider's HTTP API.
type APIBackend struct {
	cfg    APIConfig
	logger *logging.Logger
}

func NewAPIBackend(cfg APIConfig, logger *logging.Logger) *APIBackend {
	return &APIBackend{cfg: cfg, logger: logger}
}

// client builds a per-call client; construction is cheap and the secret
// changes between rotation attempts.
func (b *APIBackend) client(secret string) *openai.Client {
	clientConfig := openai.DefaultConfig(secret)
	if b.cfg.BaseURL != "" {
		clientConfig.BaseURL = b.cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

func (b *APIBackend) request(prompt string, contextItems []string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: b.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(prompt, contextItems)},
		},
		Temperature: b.cfg.Temperature,
		MaxTokens:   b.cfg.MaxTokens,
	}
}

func (b *APIBackend) Generate(ctx context.Context, secret, prompt string, contextItems []string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("no API key configured")
	}
	resp, err := b.client(secret).CreateChatCompletion(ctx, b.request(prompt, contextItems))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *APIBackend) Stream(ctx context.Context, secret, prompt string, contextItems []string) (<-chan StreamChunk, error) {
	if secret == "" {
		return nil, fmt.Errorf("no API key configured")
	}

	req := b.request(prompt, contextItems)
	req.Stream = true
	out := make(chan StreamChunk, 10)

	go func() {
		defer close(out)

		stream, err := b.client(secret).CreateChatCompletionStream(ctx, req)
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				out <- StreamChunk{Err: err}
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			content := response.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			select {
			case out <- StreamChunk{Text: content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
