package speech

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

// Speaker synthesizes a reply and plays it, keeping at most one clip in
// flight. Starting a new utterance cancels and releases the previous one.
type Speaker struct {
	synth    Synthesizer
	player   Player
	fallback Fallback

	mu     sync.Mutex
	cancel context.CancelFunc
	handle Handle
}

func NewSpeaker(synth Synthesizer, player Player, fallback Fallback) *Speaker {
	return &Speaker{synth: synth, player: player, fallback: fallback}
}

// Say renders text with the given voice and starts playback. It returns once
// playback has begun. When the playback backend refuses to start, the text
// is routed to the fallback channel and Say reports success.
func (s *Speaker) Say(ctx context.Context, voiceID, text string) error {
	if strings.TrimSpace(voiceID) == "" {
		return ErrNoVoiceSelected
	}

	s.interrupt()

	utterCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	audio, format, err := s.synth.Synthesize(utterCtx, voiceID, text)
	if err != nil {
		cancel()
		return err
	}
	if len(audio) == 0 {
		cancel()
		return ErrEmptyAudio
	}

	handle, err := s.player.Play(utterCtx, audio, format)
	if err != nil {
		cancel()
		if errors.Is(err, ErrPlaybackBlocked) {
			log.Printf("speech: playback blocked, routing to fallback")
			s.SayFallback(text)
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	go func() {
		select {
		case <-handle.Done():
		case <-utterCtx.Done():
		}
		handle.Release()
		s.mu.Lock()
		if s.handle == handle {
			s.handle = nil
		}
		s.mu.Unlock()
	}()
	return nil
}

// SayFallback speaks text through the degraded channel, if one is wired.
func (s *Speaker) SayFallback(text string) {
	if s.fallback == nil {
		return
	}
	s.fallback.Say(text)
}

// Stop cancels the in-flight utterance, if any.
func (s *Speaker) Stop() {
	s.interrupt()
}

func (s *Speaker) interrupt() {
	s.mu.Lock()
	cancel := s.cancel
	handle := s.handle
	s.cancel = nil
	s.handle = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		handle.Release()
	}
}
