package brain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mayanshb/natasha/internal/reliability"
)

// GeminiClient calls the generateContent REST endpoint directly. The raw
// REST shape keeps status classification and defensive reply extraction in
// our hands instead of an SDK's.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	policy  reliability.Policy
	client  *http.Client
}

func NewGeminiClient(cfg Config) *GeminiClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.GeminiBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	model := strings.TrimSpace(cfg.GeminiModel)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{
		apiKey:  cfg.GeminiAPIKey,
		baseURL: baseURL,
		model:   model,
		policy:  cfg.Policy,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	body := map[string]any{
		"contents": []any{
			map[string]any{"parts": []any{map[string]any{"text": req.InputText}}},
		},
	}
	if strings.TrimSpace(req.Instructions) != "" {
		body["system_instruction"] = map[string]any{
			"parts": []any{map[string]any{"text": req.Instructions}},
		}
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	// Transport errors quote the full request URL, so the credential must
	// never ride in it.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		c.baseURL, url.PathEscape(c.model))

	return reliability.Do(ctx, c.policy, func(ctx context.Context) (Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return Response{}, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		res, err := c.client.Do(httpReq)
		if err != nil {
			return Response{}, fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			genErr := &GenerationError{Status: res.StatusCode, BodySnippet: string(snippet)}
			if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
				return Response{}, reliability.Permanent(genErr)
			}
			return Response{}, genErr
		}

		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}

		var obj map[string]any
		if err := sonic.Unmarshal(raw, &obj); err != nil {
			// A 2xx with an unreadable body is treated as an empty reply;
			// parsing problems stay out of the error taxonomy.
			return Response{}, nil
		}
		return Response{Text: strings.TrimSpace(extractReplyText(obj))}, nil
	})
}

// extractReplyText walks candidates[0].content.parts[0].text. It is total:
// any missing or differently-shaped field yields an empty string.
func extractReplyText(obj map[string]any) string {
	if obj == nil {
		return ""
	}
	if candidates, ok := obj["candidates"].([]any); ok && len(candidates) > 0 {
		if cand, ok := candidates[0].(map[string]any); ok {
			if content, ok := cand["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]any); ok {
						if text, ok := part["text"].(string); ok && text != "" {
							return text
						}
					}
				}
			}
		}
	}
	if text, ok := obj["text"].(string); ok {
		return text
	}
	return ""
}
