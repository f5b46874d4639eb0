package speech

import (
	"context"
	"strings"
	"sync"
)

// MockSynthesizer produces deterministic fake audio for development runs
// without an API key.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Synthesize(_ context.Context, voiceID, text string) ([]byte, string, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, "", ErrNoVoiceSelected
	}
	if strings.TrimSpace(text) == "" {
		return nil, "mock", nil
	}
	return []byte("mock-audio:" + text), "mock", nil
}

// MockHandle is an always-completed playback handle for tests and mocks.
type MockHandle struct {
	once sync.Once
	done chan struct{}
}

func NewMockHandle() *MockHandle {
	h := &MockHandle{done: make(chan struct{})}
	return h
}

func (h *MockHandle) Done() <-chan struct{} { return h.done }

func (h *MockHandle) Release() {
	h.once.Do(func() { close(h.done) })
}

// Complete marks playback as finished.
func (h *MockHandle) Complete() {
	h.once.Do(func() { close(h.done) })
}
