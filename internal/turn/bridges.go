package turn

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/mayanshb/natasha/internal/capture"
	"github.com/mayanshb/natasha/internal/protocol"
	"github.com/mayanshb/natasha/internal/speech"
)

// playbackStartTimeout bounds how long we wait for the client to confirm
// that audio playback began before assuming it did.
const playbackStartTimeout = 2 * time.Second

// outbound pushes server messages onto a connection's write queue without
// blocking the turn when the connection is gone.
type outbound struct {
	ctx context.Context
	ch  chan<- any
}

func (o *outbound) send(msg any) {
	select {
	case o.ch <- msg:
	case <-o.ctx.Done():
	}
}

// connDisplay renders conversation state into the client's chat surface.
type connDisplay struct {
	sessionID string
	out       *outbound
}

func (d *connDisplay) ShowUserMessage(turnID, text string) {
	d.out.send(protocol.UserMessage{
		Type:      protocol.TypeUserMessage,
		SessionID: d.sessionID,
		TurnID:    turnID,
		Text:      text,
	})
}

func (d *connDisplay) ShowAssistantMessage(turnID, text string) {
	d.out.send(protocol.AssistantMessage{
		Type:      protocol.TypeAssistantMessage,
		SessionID: d.sessionID,
		TurnID:    turnID,
		Text:      text,
	})
}

func (d *connDisplay) SetPending(turnID string, active bool) {
	d.out.send(protocol.AssistantPending{
		Type:      protocol.TypeAssistantPending,
		SessionID: d.sessionID,
		TurnID:    turnID,
		Active:    active,
	})
}

func (d *connDisplay) SetStatus(state, detail string) {
	d.out.send(protocol.StatusEvent{
		Type:      protocol.TypeStatusEvent,
		SessionID: d.sessionID,
		State:     state,
		Detail:    detail,
	})
}

func (d *connDisplay) ShowError(code, source, detail string, retryable bool) {
	d.out.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: d.sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	})
}

// connFallback asks the browser to speak through its offline synthesis.
type connFallback struct {
	sessionID string
	out       *outbound
}

func (f *connFallback) Say(text string) {
	f.out.send(protocol.SpeakFallback{
		Type:      protocol.TypeSpeakFallback,
		SessionID: f.sessionID,
		Text:      text,
	})
}

// playbackHandle tracks one clip playing in the browser.
type playbackHandle struct {
	once sync.Once
	done chan struct{}
}

func newPlaybackHandle() *playbackHandle {
	return &playbackHandle{done: make(chan struct{})}
}

func (h *playbackHandle) Done() <-chan struct{} { return h.done }

func (h *playbackHandle) Release() {
	h.once.Do(func() { close(h.done) })
}

// connPlayer ships synthesized audio to the client and waits for the
// client's playback report. A silent client is assumed to have started.
type connPlayer struct {
	sessionID string
	turnID    string
	out       *outbound

	mu      sync.Mutex
	started chan string
	current *playbackHandle
}

func newConnPlayer(sessionID string, out *outbound) *connPlayer {
	return &connPlayer{sessionID: sessionID, out: out}
}

func (p *connPlayer) setTurn(turnID string) {
	p.mu.Lock()
	p.turnID = turnID
	p.mu.Unlock()
}

func (p *connPlayer) Play(ctx context.Context, audio []byte, format string) (speech.Handle, error) {
	handle := newPlaybackHandle()
	started := make(chan string, 1)

	p.mu.Lock()
	if p.current != nil {
		p.current.Release()
	}
	p.current = handle
	p.started = started
	turnID := p.turnID
	p.mu.Unlock()

	p.out.send(protocol.AssistantAudio{
		Type:        protocol.TypeAssistantAudio,
		SessionID:   p.sessionID,
		TurnID:      turnID,
		Format:      format,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
	})

	timer := time.NewTimer(playbackStartTimeout)
	defer timer.Stop()
	select {
	case action := <-started:
		if action == protocol.ActionPlaybackBlocked {
			handle.Release()
			return nil, speech.ErrPlaybackBlocked
		}
		return handle, nil
	case <-timer.C:
		// No report in time. Autoplay-permissive clients just play.
		return handle, nil
	case <-ctx.Done():
		handle.Release()
		return nil, ctx.Err()
	}
}

// OnPlaybackReport routes a client playback control message to the clip
// that is waiting on it. Reports carrying a different turn id belong to an
// older clip and are dropped.
func (p *connPlayer) OnPlaybackReport(action, turnID string) {
	p.mu.Lock()
	started := p.started
	current := p.current
	expected := p.turnID
	p.mu.Unlock()

	if turnID != "" && turnID != expected {
		return
	}

	switch action {
	case protocol.ActionPlaybackStarted, protocol.ActionPlaybackBlocked:
		if started != nil {
			select {
			case started <- action:
			default:
			}
		}
	case protocol.ActionPlaybackEnded:
		if current != nil {
			current.Release()
		}
	}
}

// connRecognizer treats the browser's speech recognition as the capture
// backend. Transcripts and recognition failures arrive over the websocket
// and complete the pending Recognize call.
type connRecognizer struct {
	mu      sync.Mutex
	pending chan recognition
}

type recognition struct {
	transcript string
	err        error
}

func newConnRecognizer() *connRecognizer {
	return &connRecognizer{}
}

func (r *connRecognizer) Recognize(ctx context.Context) (string, error) {
	ch := make(chan recognition, 1)
	r.mu.Lock()
	r.pending = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.pending == ch {
			r.pending = nil
		}
		r.mu.Unlock()
	}()

	select {
	case rec := <-ch:
		return rec.transcript, rec.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver completes the pending Recognize with a transcript. It reports
// whether a capture was actually waiting.
func (r *connRecognizer) Deliver(transcript string) bool {
	return r.complete(recognition{transcript: transcript})
}

// Fail completes the pending Recognize with a recognition failure.
func (r *connRecognizer) Fail(reason string) bool {
	return r.complete(recognition{err: &capture.CaptureError{Reason: reason}})
}

func (r *connRecognizer) complete(rec recognition) bool {
	r.mu.Lock()
	ch := r.pending
	r.pending = nil
	r.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- rec
	return true
}
