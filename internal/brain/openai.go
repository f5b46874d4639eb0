package brain

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/mayanshb/natasha/internal/reliability"
)

// OpenAIClient is an alternative generation backend. Instructions map to the
// system role, which keeps them out of the visible conversation.
type OpenAIClient struct {
	client *openai.Client
	model  string
	policy reliability.Policy
}

func NewOpenAIClient(cfg Config) *OpenAIClient {
	model := strings.TrimSpace(cfg.OpenAIModel)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		client: openai.NewClient(cfg.OpenAIAPIKey),
		model:  model,
		policy: cfg.Policy,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.Instructions) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.InputText,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}

	return reliability.Do(ctx, c.policy, func(ctx context.Context) (Response, error) {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				genErr := &GenerationError{Status: apiErr.HTTPStatusCode, BodySnippet: apiErr.Message}
				if !reliability.IsRetryableHTTPStatus(apiErr.HTTPStatusCode) {
					return Response{}, reliability.Permanent(genErr)
				}
				return Response{}, genErr
			}
			return Response{}, err
		}
		if len(resp.Choices) == 0 {
			return Response{}, nil
		}
		return Response{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
	})
}
