package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSynth struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeSynth) Synthesize(_ context.Context, voiceID, text string) ([]byte, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.audio, "mock", nil
}

type fakePlayer struct {
	mu      sync.Mutex
	err     error
	handles []*MockHandle
}

func (f *fakePlayer) Play(_ context.Context, audio []byte, _ string) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := NewMockHandle()
	f.handles = append(f.handles, h)
	return h, nil
}

type recordingFallback struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingFallback) Say(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingFallback) spoken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func TestSpeakerSaysAndCompletes(t *testing.T) {
	player := &fakePlayer{}
	sp := NewSpeaker(&fakeSynth{audio: []byte("a")}, player, nil)

	if err := sp.Say(context.Background(), "voice-1", "hello"); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	if len(player.handles) != 1 {
		t.Fatalf("playbacks started = %d, want 1", len(player.handles))
	}
	player.handles[0].Complete()
}

func TestSpeakerBlankVoiceRejected(t *testing.T) {
	sp := NewSpeaker(&fakeSynth{audio: []byte("a")}, &fakePlayer{}, nil)
	if err := sp.Say(context.Background(), " ", "hello"); !errors.Is(err, ErrNoVoiceSelected) {
		t.Fatalf("Say() error = %v, want ErrNoVoiceSelected", err)
	}
}

func TestSpeakerEmptyAudioSurfaced(t *testing.T) {
	sp := NewSpeaker(&fakeSynth{audio: nil}, &fakePlayer{}, nil)
	if err := sp.Say(context.Background(), "voice-1", "hello"); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("Say() error = %v, want ErrEmptyAudio", err)
	}
}

func TestSpeakerSynthesisErrorPropagated(t *testing.T) {
	synthErr := &SynthesisError{Status: 500, BodySnippet: "boom"}
	sp := NewSpeaker(&fakeSynth{err: synthErr}, &fakePlayer{}, nil)

	err := sp.Say(context.Background(), "voice-1", "hello")
	var got *SynthesisError
	if !errors.As(err, &got) {
		t.Fatalf("Say() error = %v, want *SynthesisError", err)
	}
}

func TestSpeakerBlockedPlaybackRoutesToFallback(t *testing.T) {
	fb := &recordingFallback{}
	sp := NewSpeaker(&fakeSynth{audio: []byte("a")}, &fakePlayer{err: ErrPlaybackBlocked}, fb)

	if err := sp.Say(context.Background(), "voice-1", "hello love"); err != nil {
		t.Fatalf("Say() error = %v, want nil after fallback", err)
	}
	if got := fb.spoken(); len(got) != 1 || got[0] != "hello love" {
		t.Fatalf("fallback spoke %v, want the reply text", got)
	}
}

func TestSpeakerInterruptsPreviousUtterance(t *testing.T) {
	player := &fakePlayer{}
	sp := NewSpeaker(&fakeSynth{audio: []byte("a")}, player, nil)

	if err := sp.Say(context.Background(), "voice-1", "first"); err != nil {
		t.Fatalf("first Say() error = %v", err)
	}
	if err := sp.Say(context.Background(), "voice-1", "second"); err != nil {
		t.Fatalf("second Say() error = %v", err)
	}

	select {
	case <-player.handles[0].Done():
	case <-time.After(time.Second):
		t.Fatalf("first playback was not released by the second utterance")
	}
	player.handles[1].Complete()
}

func TestSpeakerStopReleasesHandle(t *testing.T) {
	player := &fakePlayer{}
	sp := NewSpeaker(&fakeSynth{audio: []byte("a")}, player, nil)

	if err := sp.Say(context.Background(), "voice-1", "hello"); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	sp.Stop()

	select {
	case <-player.handles[0].Done():
	case <-time.After(time.Second):
		t.Fatalf("Stop did not release the in-flight playback")
	}
}
