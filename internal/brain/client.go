package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mayanshb/natasha/internal/reliability"
)

// Request is one generation call. Instructions travel on a separate
// instruction channel and never appear in the visible conversation.
type Request struct {
	SessionID    string
	TurnID       string
	InputText    string
	Instructions string
}

// Response is the generated reply. Text is trimmed; an empty string is a
// valid (if unhelpful) reply and the caller decides how to handle it.
type Response struct {
	Text string
}

// Client produces a companion reply for a transcript.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GenerationError reports a non-success response from the generation backend.
type GenerationError struct {
	Status      int
	BodySnippet string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: status %d: %s", e.Status, e.BodySnippet)
}

// Config controls client construction.
type Config struct {
	Provider string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	OpenAIAPIKey string
	OpenAIModel  string

	Policy reliability.Policy
}

// New builds the configured generation client. Mode "auto" prefers Gemini
// when a key is present, then OpenAI, then the mock.
func New(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return NewGeminiClient(cfg), nil
		}
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIClient(cfg), nil
		}
		return NewMockClient(), nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, errors.New("gemini api key is required for gemini mode")
		}
		return NewGeminiClient(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported brain provider %q (expected auto|gemini|openai|mock)", cfg.Provider)
	}
}
