package speech

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

const synthesisErrorSnippetLimit = 4 << 10

// ElevenLabsConfig configures the REST synthesis client.
type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string

	Stability       float64
	SimilarityBoost float64

	Policy reliability.Policy
}

// ElevenLabsSynthesizer renders text to audio through the ElevenLabs
// text-to-speech REST endpoint.
type ElevenLabsSynthesizer struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_turbo_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	return &ElevenLabsSynthesizer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, voiceID, text string) ([]byte, string, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil, "", ErrNoVoiceSelected
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) +
		"?output_format=" + url.QueryEscape(s.cfg.OutputFormat)

	payload := map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        clampUnit(s.cfg.Stability),
			"similarity_boost": clampUnit(s.cfg.SimilarityBoost),
		},
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode synthesis request: %w", err)
	}

	audio, err := reliability.Do(ctx, s.cfg.Policy, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("xi-api-key", s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")

		res, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, synthesisErrorSnippetLimit))
			synthErr := &SynthesisError{Status: res.StatusCode, BodySnippet: string(snippet)}
			if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
				return nil, reliability.Permanent(synthErr)
			}
			return nil, synthErr
		}
		return io.ReadAll(res.Body)
	})
	if err != nil {
		return nil, "", err
	}
	return audio, s.cfg.OutputFormat, nil
}
