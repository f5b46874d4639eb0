package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mayanshb/natasha/internal/brain"
	"github.com/mayanshb/natasha/internal/config"
	"github.com/mayanshb/natasha/internal/httpapi"
	"github.com/mayanshb/natasha/internal/observability"
	"github.com/mayanshb/natasha/internal/reliability"
	"github.com/mayanshb/natasha/internal/session"
	"github.com/mayanshb/natasha/internal/speech"
	"github.com/mayanshb/natasha/internal/turn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	brainClient, err := brain.New(brain.Config{
		Provider:      cfg.BrainProvider,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiBaseURL: cfg.GeminiBaseURL,
		GeminiModel:   cfg.GeminiModel,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		Policy: reliability.Policy{
			Attempts:  cfg.GenerateAttempts,
			BaseDelay: cfg.GenerateBackoffBase,
			Deadline:  cfg.GenerateTimeout,
		},
	})
	if err != nil {
		log.Fatalf("brain init failed: %v", err)
	}
	log.Printf("brain provider: %T", brainClient)

	var synthesizer speech.Synthesizer
	speechMode := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	if speechMode == "" {
		speechMode = "auto"
	}
	newElevenLabs := func() speech.Synthesizer {
		return speech.NewElevenLabsSynthesizer(speech.ElevenLabsConfig{
			APIKey:          cfg.ElevenLabsAPIKey,
			BaseURL:         cfg.ElevenLabsBaseURL,
			ModelID:         cfg.ElevenLabsModelID,
			OutputFormat:    cfg.ElevenLabsOutputFormat,
			Stability:       cfg.VoiceStability,
			SimilarityBoost: cfg.VoiceSimilarityBoost,
			Policy: reliability.Policy{
				Attempts:  cfg.SynthesizeAttempts,
				BaseDelay: cfg.SynthesizeBackoffBase,
				Deadline:  cfg.SynthesizeTimeout,
			},
		})
	}

	switch speechMode {
	case "elevenlabs":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			log.Fatalf("SPEECH_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		synthesizer = newElevenLabs()
		log.Printf("speech provider: elevenlabs")
	case "mock":
		synthesizer = speech.NewMockSynthesizer()
		log.Printf("speech provider: mock")
	case "auto":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" {
			synthesizer = newElevenLabs()
			log.Printf("speech provider: elevenlabs")
		} else {
			synthesizer = speech.NewMockSynthesizer()
			log.Printf("speech provider: mock (no elevenlabs key)")
		}
	default:
		log.Fatalf("invalid SPEECH_PROVIDER: %q (expected auto|elevenlabs|mock)", cfg.SpeechProvider)
	}

	var localFallback speech.Fallback
	if cfg.FallbackMode == "server" {
		lf := speech.NewLocalFallback(cfg.LocalSpeechCommand)
		if lf == nil {
			log.Printf("fallback: no host speech command found, degraded speech goes to the client")
		} else {
			localFallback = lf
			log.Printf("fallback: server-side speech command")
		}
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := turn.NewOrchestrator(brainClient, synthesizer, localFallback, sessions, metrics, turn.Config{
		FallbackMode: cfg.FallbackMode,
	})

	api := httpapi.New(cfg, sessions, orchestrator, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
