package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/folio-cloud/foliorag/internal/domain"
)

// Message is one prior chat turn passed along with the current question.
type Message struct {
	Role    string
	Content string
}

// Completer generates chat replies grounded in retrieved portfolio context.
type Completer struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// ChatConfig holds the completion provider settings.
type ChatConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completion client.
func NewCompleter(cfg *ChatConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Completer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

const groundedPrompt = `You are the assistant on a personal portfolio site, answering questions ` +
	`about its owner. Answer using ONLY the portfolio excerpts below. If the excerpts do not ` +
	`cover the question, say so briefly instead of guessing.

Portfolio excerpts:
%s`

const ungroundedPrompt = `You are the assistant on a personal portfolio site. No portfolio ` +
	`content matched this question, so answer from general knowledge and mention that the ` +
	`portfolio does not cover it.`

// Complete generates a reply to question given the assembled retrieval
// context and prior turns. An empty retrieved string switches the system
// prompt to general-knowledge mode.
func (c *Completer) Complete(
	ctx context.Context, retrieved string, history []Message, question string,
) (string, error) {
	system := ungroundedPrompt
	if retrieved != "" {
		system = fmt.Sprintf(groundedPrompt, retrieved)
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", parseChatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrCompletionProviderError)
	}
	return resp.Choices[0].Message.Content, nil
}

// chatRole maps stored turn roles onto API roles, defaulting unknowns to user.
func chatRole(role string) string {
	switch role {
	case "assistant":
		return openai.ChatMessageRoleAssistant
	case "system":
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func parseChatError(err error) error {
	wrap := domain.ErrCompletionProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("completion request failed: %w", wrap)
}
