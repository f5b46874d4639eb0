package session

import "time"

// CreateRequest defines the payload for creating a new session.
type CreateRequest struct {
	UserName           string `json:"user_name"`
	PersonaID          string `json:"persona_id"`
	VoiceID            string `json:"voice_id"`
	CustomInstructions string `json:"custom_instructions"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserName        string    `json:"user_name"`
	Status          Status    `json:"status"`
	PersonaID       string    `json:"persona_id"`
	VoiceID         string    `json:"voice_id"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
