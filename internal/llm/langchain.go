package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainCompleter calls any langchaingo model, typically a local
// OpenAI-compatible server such as Ollama or vLLM.
type LangChainCompleter struct {
	model llms.Model
}

// NewLangChainCompleter wraps an existing langchaingo model.
func NewLangChainCompleter(model llms.Model) *LangChainCompleter {
	return &LangChainCompleter{model: model}
}

// NewLocalCompleter connects to an OpenAI-compatible endpoint at baseURL.
// Use "none" as token for local services that don't require authentication.
func NewLocalCompleter(baseURL, model, token string) (*LangChainCompleter, error) {
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain client: %w", err)
	}
	return NewLangChainCompleter(client), nil
}

// Complete sends the prompt in JSON mode and returns the first choice.
func (c *LangChainCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	content := make([]llms.MessageContent, 0, 2)
	if p.System != "" {
		content = append(content, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(p.System)},
		})
	}
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(p.User)},
	})

	response, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		if llms.IsRateLimitError(err) {
			return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	if len(response.Choices) < 1 {
		return "", nil
	}
	return response.Choices[0].Content, nil
}
