package speech

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPlaybackBlocked is returned when the playback backend refuses to
	// start, for example when the browser blocks autoplay.
	ErrPlaybackBlocked = errors.New("audio playback blocked")

	// ErrNoVoiceSelected is returned when synthesis is requested without a
	// resolved voice.
	ErrNoVoiceSelected = errors.New("no voice selected")

	// ErrEmptyAudio is returned when synthesis succeeded but produced no
	// audio bytes.
	ErrEmptyAudio = errors.New("synthesis produced no audio")
)

// SynthesisError carries a provider-level synthesis failure.
type SynthesisError struct {
	Status      int
	BodySnippet string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: status %d: %s", e.Status, e.BodySnippet)
}

// Synthesizer turns reply text into encoded audio. The returned string is
// the audio format label, e.g. "mp3_44100_128".
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, string, error)
}

// Handle tracks one in-flight playback.
type Handle interface {
	// Done closes when playback finishes or is abandoned.
	Done() <-chan struct{}
	// Release stops playback and frees any resources held by the clip.
	Release()
}

// Player starts playback of an encoded clip. Play returns once playback has
// actually begun, or ErrPlaybackBlocked when the backend refuses to start.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) (Handle, error)
}

// Fallback speaks text through a degraded channel when normal synthesis or
// playback is unavailable. Implementations never fail loudly.
type Fallback interface {
	Say(text string)
}
