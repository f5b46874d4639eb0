package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion voice service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	DefaultPersona  string
	CaptureLanguage string

	BrainProvider string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	OpenAIAPIKey string
	OpenAIModel  string

	GenerateTimeout     time.Duration
	GenerateAttempts    int
	GenerateBackoffBase time.Duration

	SpeechProvider string

	ElevenLabsAPIKey       string
	ElevenLabsBaseURL      string
	ElevenLabsModelID      string
	ElevenLabsOutputFormat string

	SynthesizeTimeout     time.Duration
	SynthesizeAttempts    int
	SynthesizeBackoffBase time.Duration

	VoiceStability       float64
	VoiceSimilarityBoost float64

	// FallbackMode selects where degraded speech is rendered: "client" uses the
	// browser speechSynthesis capability, "server" uses a local TTS command on
	// this host.
	FallbackMode       string
	LocalSpeechCommand string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "natasha"),
		AllowAnyOrigin:   false,
		DefaultPersona:   envOrDefault("APP_DEFAULT_PERSONA", "girlfriend"),
		CaptureLanguage:  envOrDefault("APP_CAPTURE_LANGUAGE", "en-US"),

		BrainProvider: envOrDefault("BRAIN_PROVIDER", "auto"),
		GeminiAPIKey:  stringsTrimSpace("GEMINI_API_KEY"),
		GeminiBaseURL: envOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:   envOrDefault("GEMINI_MODEL_ID", "gemini-2.0-flash"),
		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:   envOrDefault("OPENAI_MODEL_ID", "gpt-4o-mini"),

		SpeechProvider:    envOrDefault("SPEECH_PROVIDER", "auto"),
		ElevenLabsAPIKey:  stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL: envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsModelID: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_turbo_v2"),
		// mp3 plays directly in an <audio> element without any wrapping.
		ElevenLabsOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),

		FallbackMode:       envOrDefault("SPEECH_FALLBACK_MODE", "client"),
		LocalSpeechCommand: stringsTrimSpace("LOCAL_SPEECH_COMMAND"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,

		// Generation is a synchronous user-facing wait: short deadline, small
		// retry budget. Synthesis calls are slower and more expensive to retry.
		GenerateTimeout:       8 * time.Second,
		GenerateAttempts:      3,
		GenerateBackoffBase:   250 * time.Millisecond,
		SynthesizeTimeout:     12 * time.Second,
		SynthesizeAttempts:    2,
		SynthesizeBackoffBase: 300 * time.Millisecond,

		VoiceStability:       0.4,
		VoiceSimilarityBoost: 0.75,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.GenerateTimeout, err = durationFromEnv("GENERATE_TIMEOUT", cfg.GenerateTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateAttempts, err = intFromEnv("GENERATE_ATTEMPTS", cfg.GenerateAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateBackoffBase, err = durationFromEnv("GENERATE_BACKOFF_BASE", cfg.GenerateBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesizeTimeout, err = durationFromEnv("SYNTHESIZE_TIMEOUT", cfg.SynthesizeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesizeAttempts, err = intFromEnv("SYNTHESIZE_ATTEMPTS", cfg.SynthesizeAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesizeBackoffBase, err = durationFromEnv("SYNTHESIZE_BACKOFF_BASE", cfg.SynthesizeBackoffBase)
	if err != nil {
		return Config{}, err
	}

	cfg.VoiceStability, err = floatFromEnv("VOICE_STABILITY", cfg.VoiceStability)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceSimilarityBoost, err = floatFromEnv("VOICE_SIMILARITY_BOOST", cfg.VoiceSimilarityBoost)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.GenerateAttempts < 1 {
		return Config{}, fmt.Errorf("GENERATE_ATTEMPTS must be at least 1")
	}
	if cfg.SynthesizeAttempts < 1 {
		return Config{}, fmt.Errorf("SYNTHESIZE_ATTEMPTS must be at least 1")
	}
	if cfg.GenerateTimeout <= 0 || cfg.SynthesizeTimeout <= 0 {
		return Config{}, fmt.Errorf("generation and synthesis timeouts must be positive")
	}
	if cfg.VoiceStability < 0 || cfg.VoiceStability > 1 {
		return Config{}, fmt.Errorf("VOICE_STABILITY must be in [0,1]")
	}
	if cfg.VoiceSimilarityBoost < 0 || cfg.VoiceSimilarityBoost > 1 {
		return Config{}, fmt.Errorf("VOICE_SIMILARITY_BOOST must be in [0,1]")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.FallbackMode)) {
	case "client", "server":
	default:
		return Config{}, fmt.Errorf("SPEECH_FALLBACK_MODE must be client or server, got %q", cfg.FallbackMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
