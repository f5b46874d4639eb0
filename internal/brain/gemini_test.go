package brain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/mayanshb/natasha/internal/reliability"
)

func geminiTestClient(baseURL string, policy reliability.Policy) *GeminiClient {
	return NewGeminiClient(Config{
		GeminiAPIKey:  "test-key",
		GeminiBaseURL: baseURL,
		GeminiModel:   "gemini-2.0-flash",
		Policy:        policy,
	})
}

func TestGeminiGenerateExtractsAndTrimsReply(t *testing.T) {
	var gotBody map[string]any
	var gotKeyHeader, gotRawQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKeyHeader = r.Header.Get("x-goog-api-key")
		gotRawQuery = r.URL.RawQuery
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Hey! How are you?  "}]}}]}`))
	}))
	defer ts.Close()

	c := geminiTestClient(ts.URL, reliability.Policy{Attempts: 1, Deadline: 2 * time.Second})
	resp, err := c.Generate(context.Background(), Request{
		InputText:    "Hello there",
		Instructions: "You are Natasha.",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "Hey! How are you?" {
		t.Fatalf("reply = %q, want trimmed %q", resp.Text, "Hey! How are you?")
	}

	if gotKeyHeader != "test-key" {
		t.Fatalf("x-goog-api-key = %q, want %q", gotKeyHeader, "test-key")
	}
	if strings.Contains(gotRawQuery, "key=") {
		t.Fatalf("credential in query string: %q", gotRawQuery)
	}
	if _, ok := gotBody["system_instruction"]; !ok {
		t.Fatalf("request body missing system_instruction channel: %v", gotBody)
	}
	contents, ok := gotBody["contents"].([]any)
	if !ok || len(contents) != 1 {
		t.Fatalf("request contents = %v, want single user message", gotBody["contents"])
	}
}

func TestGeminiGenerateNonSuccessYieldsGenerationError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad prompt"}`))
	}))
	defer ts.Close()

	c := geminiTestClient(ts.URL, reliability.Policy{Attempts: 1, Deadline: 2 * time.Second})
	_, err := c.Generate(context.Background(), Request{InputText: "hi"})

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if genErr.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", genErr.Status, http.StatusBadRequest)
	}
	if genErr.BodySnippet == "" {
		t.Fatalf("expected body snippet in error")
	}
}

func TestGeminiGenerateMalformedBodyYieldsEmptyReply(t *testing.T) {
	cases := map[string]string{
		"not json":        `garbage`,
		"missing fields":  `{"candidates":[{"content":{}}]}`,
		"wrong shapes":    `{"candidates":"nope"}`,
		"empty candidate": `{"candidates":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer ts.Close()

			c := geminiTestClient(ts.URL, reliability.Policy{Attempts: 1, Deadline: 2 * time.Second})
			resp, err := c.Generate(context.Background(), Request{InputText: "hi"})
			if err != nil {
				t.Fatalf("Generate() error = %v, want nil (defensive extraction)", err)
			}
			if resp.Text != "" {
				t.Fatalf("reply = %q, want empty", resp.Text)
			}
		})
	}
}

func TestGeminiGenerateErrorOmitsCredential(t *testing.T) {
	// Nothing listens on port 1, so the transport error quotes the URL.
	c := NewGeminiClient(Config{
		GeminiAPIKey:  "SECRET-KEY-12345",
		GeminiBaseURL: "http://127.0.0.1:1",
		Policy:        reliability.Policy{Attempts: 1, Deadline: 2 * time.Second},
	})
	_, err := c.Generate(context.Background(), Request{InputText: "hi"})
	if err == nil {
		t.Fatalf("expected a transport error")
	}
	if strings.Contains(err.Error(), "SECRET-KEY-12345") {
		t.Fatalf("credential leaked into error text: %v", err)
	}
}

func TestGeminiGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad prompt"}`))
	}))
	defer ts.Close()

	c := geminiTestClient(ts.URL, reliability.Policy{Attempts: 3, BaseDelay: time.Millisecond, Deadline: 5 * time.Second})
	_, err := c.Generate(context.Background(), Request{InputText: "hi"})

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("backend calls = %d, want 1 (400 is not retryable)", calls.Load())
	}
}

func TestGeminiGenerateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"back online"}]}}]}`))
	}))
	defer ts.Close()

	c := geminiTestClient(ts.URL, reliability.Policy{Attempts: 3, BaseDelay: time.Millisecond, Deadline: 5 * time.Second})
	resp, err := c.Generate(context.Background(), Request{InputText: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "back online" {
		t.Fatalf("reply = %q, want %q", resp.Text, "back online")
	}
	if calls.Load() != 3 {
		t.Fatalf("backend calls = %d, want 3", calls.Load())
	}
}

func TestGeminiGenerateTopLevelTextFallback(t *testing.T) {
	if got := extractReplyText(map[string]any{"text": "plain"}); got != "plain" {
		t.Fatalf("extractReplyText fallback = %q, want %q", got, "plain")
	}
	if got := extractReplyText(nil); got != "" {
		t.Fatalf("extractReplyText(nil) = %q, want empty", got)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(Config{Provider: "auto"})
	if err != nil {
		t.Fatalf("New(auto) error = %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("auto without keys should select mock, got %T", c)
	}

	c, err = New(Config{Provider: "auto", GeminiAPIKey: "k"})
	if err != nil {
		t.Fatalf("New(auto+gemini) error = %v", err)
	}
	if _, ok := c.(*GeminiClient); !ok {
		t.Fatalf("auto with gemini key should select gemini, got %T", c)
	}

	if _, err := New(Config{Provider: "gemini"}); err == nil {
		t.Fatalf("gemini mode without key should fail")
	}
	if _, err := New(Config{Provider: "steam-powered"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}
