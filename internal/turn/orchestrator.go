package turn

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mayanshb/natasha/internal/brain"
	"github.com/mayanshb/natasha/internal/capture"
	"github.com/mayanshb/natasha/internal/observability"
	"github.com/mayanshb/natasha/internal/persona"
	"github.com/mayanshb/natasha/internal/protocol"
	"github.com/mayanshb/natasha/internal/reliability"
	"github.com/mayanshb/natasha/internal/session"
	"github.com/mayanshb/natasha/internal/speech"
)

// Connection status states pushed to the client.
const (
	StateReady     = "ready"
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
	StateError     = "error"
)

const (
	apologyBubble   = "⚠️ Something went wrong. Please try again."
	apologySpoken   = "Sorry, I couldn't generate the reply. Please try again."
	noSpeechDetail  = "Didn't catch that. Try speaking again."
	busyTurnDetail  = "Still replying to the previous message."
	micErrorDetail  = "Microphone capture failed."
)

// Config selects orchestrator behavior that is fixed at startup.
type Config struct {
	// FallbackMode is "client" (browser speechSynthesis) or "server"
	// (host text-to-speech command).
	FallbackMode string
}

// Orchestrator drives conversation turns: transcript in, generated reply
// out as a chat bubble plus synthesized speech.
type Orchestrator struct {
	brain    brain.Client
	synth    speech.Synthesizer
	local    speech.Fallback
	sessions *session.Manager
	metrics  *observability.Metrics
	cfg      Config
}

func NewOrchestrator(brainClient brain.Client, synth speech.Synthesizer, local speech.Fallback, sessions *session.Manager, metrics *observability.Metrics, cfg Config) *Orchestrator {
	return &Orchestrator{
		brain:    brainClient,
		synth:    synth,
		local:    local,
		sessions: sessions,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// connState is the per-websocket wiring for one session.
type connState struct {
	sess       *session.Session
	display    *connDisplay
	player     *connPlayer
	recognizer *connRecognizer
	controller *capture.Controller
	speaker    *speech.Speaker

	mu         sync.Mutex
	turnCancel context.CancelFunc
}

func (c *connState) setTurnCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.turnCancel = cancel
	c.mu.Unlock()
}

func (c *connState) cancelTurn() {
	c.mu.Lock()
	cancel := c.turnCancel
	c.turnCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunConnection services one websocket until ctx ends or inbound closes.
// Parsed client messages arrive on inbound; server messages are queued on
// out for the connection writer.
func (o *Orchestrator) RunConnection(ctx context.Context, sess *session.Session, inbound <-chan any, out chan<- any) {
	sink := &outbound{ctx: ctx, ch: out}

	c := &connState{
		sess:       sess,
		display:    &connDisplay{sessionID: sess.ID, out: sink},
		player:     newConnPlayer(sess.ID, sink),
		recognizer: newConnRecognizer(),
	}
	c.controller = capture.NewController(c.recognizer)

	var fallback speech.Fallback
	if o.cfg.FallbackMode == "server" && o.local != nil {
		fallback = o.local
	} else {
		fallback = &connFallback{sessionID: sess.ID, out: sink}
	}
	c.speaker = speech.NewSpeaker(o.synth, c.player, fallback)

	c.display.SetStatus(StateReady, "")

	for {
		select {
		case <-ctx.Done():
			c.cancelTurn()
			c.speaker.Stop()
			return
		case msg, ok := <-inbound:
			if !ok {
				c.cancelTurn()
				c.speaker.Stop()
				return
			}
			o.dispatch(ctx, c, msg)
		case result := <-c.controller.Results():
			c.controller.Finish()
			o.onCaptureResult(ctx, c, result)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, c *connState, msg any) {
	switch m := msg.(type) {
	case protocol.ClientTranscript:
		_ = o.sessions.Touch(c.sess.ID)
		text := strings.TrimSpace(m.Text)
		if c.controller.State() == capture.StateListening {
			c.recognizer.Deliver(text)
			return
		}
		// Push-to-talk clients send transcripts without a capture cycle.
		o.onCaptureResult(ctx, c, capture.Result{Transcript: text})
	case protocol.ClientControl:
		_ = o.sessions.Touch(c.sess.ID)
		o.dispatchControl(ctx, c, m)
	default:
		log.Printf("turn: ignoring unexpected inbound %T", msg)
	}
}

func (o *Orchestrator) dispatchControl(ctx context.Context, c *connState, m protocol.ClientControl) {
	switch m.Action {
	case protocol.ActionStartCapture:
		switch err := c.controller.Start(ctx); {
		case err == nil:
			c.display.SetStatus(StateListening, "")
		case errors.Is(err, capture.ErrAlreadyListening):
			// Repeated taps while listening are harmless.
		default:
			c.display.ShowError("capture_unsupported", "capture", err.Error(), false)
		}
	case protocol.ActionStopCapture:
		c.controller.Stop()
		// Recognition backends report their end right after a transcript;
		// the status must not drop back to ready under a running turn.
		if !o.turnInFlight(c.sess.ID) {
			c.display.SetStatus(StateReady, "")
		}
	case protocol.ActionCaptureError:
		if !c.recognizer.Fail(m.Detail) {
			c.display.ShowError("capture_failed", "capture", m.Detail, true)
			c.display.SetStatus(StateError, micErrorDetail)
		}
	case protocol.ActionPlaybackStarted, protocol.ActionPlaybackBlocked, protocol.ActionPlaybackEnded:
		c.player.OnPlaybackReport(m.Action, m.TurnID)
	case protocol.ActionStop:
		c.cancelTurn()
		c.controller.Stop()
		c.speaker.Stop()
		_ = o.sessions.EndTurn(c.sess.ID)
		c.display.SetStatus(StateReady, "")
	}
}

func (o *Orchestrator) turnInFlight(sessionID string) bool {
	sess, err := o.sessions.Get(sessionID)
	return err == nil && sess.ActiveTurnID != ""
}

func (o *Orchestrator) onCaptureResult(ctx context.Context, c *connState, result capture.Result) {
	if result.Err != nil {
		var capErr *capture.CaptureError
		detail := micErrorDetail
		if errors.As(result.Err, &capErr) {
			detail = capErr.Reason
		}
		c.display.ShowError("capture_failed", "capture", detail, true)
		c.display.SetStatus(StateError, micErrorDetail)
		o.metrics.Turns.WithLabelValues("capture_error").Inc()
		return
	}
	if result.Transcript == "" {
		c.display.SetStatus(StateReady, noSpeechDetail)
		return
	}

	turnID := uuid.NewString()
	if err := o.sessions.StartTurn(c.sess.ID, turnID); err != nil {
		log.Printf("turn: session %s rejected transcript: %v", c.sess.ID, err)
		c.display.SetStatus(StateThinking, busyTurnDetail)
		o.metrics.Turns.WithLabelValues("rejected_busy").Inc()
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	c.setTurnCancel(cancel)

	// The turn runs off the connection loop so playback reports keep
	// flowing while audio is in flight.
	go func() {
		defer cancel()
		defer func() { _ = o.sessions.EndTurn(c.sess.ID) }()
		o.runTurn(turnCtx, c, turnID, result.Transcript)
	}()
}

func (o *Orchestrator) runTurn(ctx context.Context, c *connState, turnID, transcript string) {
	c.display.ShowUserMessage(turnID, transcript)
	c.display.SetPending(turnID, true)
	c.display.SetStatus(StateThinking, "")
	c.player.setTurn(turnID)

	genStart := time.Now()
	resp, err := o.brain.Generate(ctx, brain.Request{
		SessionID:    c.sess.ID,
		TurnID:       turnID,
		InputText:    transcript,
		Instructions: c.sess.Instructions,
	})
	o.metrics.ObserveGenerationLatency(time.Since(genStart))

	c.display.SetPending(turnID, false)

	if err != nil {
		o.failTurn(ctx, c, turnID, err)
		return
	}
	if resp.Text == "" {
		log.Printf("turn %s: generation returned empty reply", turnID)
		c.display.SetStatus(StateReady, "")
		o.metrics.Turns.WithLabelValues("empty_reply").Inc()
		return
	}

	c.display.ShowAssistantMessage(turnID, resp.Text)
	c.display.SetStatus(StateSpeaking, "")

	synthStart := time.Now()
	err = c.speaker.Say(ctx, c.sess.VoiceID, resp.Text)
	o.metrics.ObserveSynthesisLatency(time.Since(synthStart))

	switch {
	case err == nil:
		o.metrics.Turns.WithLabelValues("ok").Inc()
	case errors.Is(err, context.Canceled):
		o.metrics.Turns.WithLabelValues("canceled").Inc()
	case errors.Is(err, speech.ErrEmptyAudio):
		// The reply still reaches the user through the degraded channel.
		log.Printf("turn %s: synthesis produced no audio", turnID)
		c.speaker.SayFallback(resp.Text)
		o.metrics.ProviderErrors.WithLabelValues("speech", "empty_audio").Inc()
		o.metrics.Turns.WithLabelValues("empty_audio").Inc()
	default:
		log.Printf("turn %s: synthesis failed: %v", turnID, err)
		c.display.ShowError("synthesis_failed", "speech", err.Error(), true)
		c.speaker.SayFallback(resp.Text)
		o.metrics.ProviderErrors.WithLabelValues("speech", providerErrorCode(err)).Inc()
		o.metrics.Turns.WithLabelValues("synthesis_error").Inc()
	}

	c.display.SetStatus(StateReady, "")
}

func (o *Orchestrator) failTurn(ctx context.Context, c *connState, turnID string, err error) {
	if errors.Is(err, context.Canceled) {
		c.display.SetStatus(StateReady, "")
		o.metrics.Turns.WithLabelValues("canceled").Inc()
		return
	}

	log.Printf("turn %s: generation failed: %v", turnID, err)
	c.display.ShowAssistantMessage(turnID, apologyBubble)
	c.display.ShowError("generation_failed", "brain", err.Error(), true)
	c.display.SetStatus(StateError, "Error generating reply")
	c.speaker.SayFallback(apologySpoken)

	o.metrics.ProviderErrors.WithLabelValues("brain", providerErrorCode(err)).Inc()
	o.metrics.Turns.WithLabelValues("generation_error").Inc()
}

func providerErrorCode(err error) string {
	var genErr *brain.GenerationError
	if errors.As(err, &genErr) {
		return httpStatusClass(genErr.Status)
	}
	var synthErr *speech.SynthesisError
	if errors.As(err, &synthErr) {
		return httpStatusClass(synthErr.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, reliability.ErrDeadlineExceeded) {
		return "timeout"
	}
	return "other"
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "other"
	}
}

// PreviewTTS synthesizes a short sample for voice selection. The voice may
// be given directly or resolved from a persona.
func (o *Orchestrator) PreviewTTS(ctx context.Context, voiceID, personaID, text string) ([]byte, string, error) {
	if strings.TrimSpace(voiceID) == "" {
		p, err := persona.Parse(personaID)
		if err != nil {
			return nil, "", err
		}
		voiceID = persona.ResolveVoice(p, "")
	}
	if strings.TrimSpace(text) == "" {
		text = "Hi, this is how I sound."
	}
	return o.synth.Synthesize(ctx, voiceID, text)
}
