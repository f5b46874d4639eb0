package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientTranscript MessageType = "client_transcript"
	TypeClientControl    MessageType = "client_control"
	TypeUserMessage      MessageType = "user_message"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeAssistantPending MessageType = "assistant_pending"
	TypeAssistantAudio   MessageType = "assistant_audio"
	TypeSpeakFallback    MessageType = "speak_fallback"
	TypeStatusEvent      MessageType = "status_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted from the client.
const (
	ActionStartCapture    = "start_capture"
	ActionStopCapture     = "stop_capture"
	ActionCaptureError    = "capture_error"
	ActionPlaybackStarted = "playback_started"
	ActionPlaybackBlocked = "playback_blocked"
	ActionPlaybackEnded   = "playback_ended"
	ActionStop            = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientTranscript carries one recognized utterance from the browser's
// speech recognition session.
type ClientTranscript struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	TSMs      int64       `json:"ts_ms"`
}

// ClientControl carries capture and playback lifecycle signals. Detail is
// only meaningful for capture_error; TurnID ties playback reports to the
// clip they describe.
type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Detail    string      `json:"detail,omitempty"`
	TurnID    string      `json:"turn_id,omitempty"`
}

type UserMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
}

type AssistantMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
}

type AssistantPending struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Active    bool        `json:"active"`
}

type AssistantAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TurnID      string      `json:"turn_id"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

// SpeakFallback asks the client to render text through its offline
// speechSynthesis capability.
type SpeakFallback struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type StatusEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

var validActions = map[string]bool{
	ActionStartCapture:    true,
	ActionStopCapture:     true,
	ActionCaptureError:    true,
	ActionPlaybackStarted: true,
	ActionPlaybackBlocked: true,
	ActionPlaybackEnded:   true,
	ActionStop:            true,
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientTranscript:
		var msg ClientTranscript
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_transcript")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || !validActions[msg.Action] {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
