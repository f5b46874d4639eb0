package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mayanshb/natasha/internal/persona"
)

type voiceEntry struct {
	PersonaID   string `json:"persona_id"`
	DisplayName string `json:"display_name"`
	VoiceID     string `json:"voice_id"`
	Default     bool   `json:"default"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	defaultID := persona.Default().ID
	var voices []voiceEntry
	for _, p := range persona.All() {
		voices = append(voices, voiceEntry{
			PersonaID:   string(p.ID),
			DisplayName: p.DisplayName,
			VoiceID:     p.VoiceID,
			Default:     p.ID == defaultID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

type previewRequest struct {
	VoiceID   string `json:"voice_id"`
	PersonaID string `json:"persona_id"`
	Text      string `json:"text"`
}

func (s *Server) handlePreviewTTS(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	var req previewRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	audio, format, err := s.orchestrator.PreviewTTS(r.Context(), req.VoiceID, req.PersonaID, req.Text)
	if err != nil {
		respondError(w, http.StatusBadGateway, "preview_failed", err.Error())
		return
	}
	if len(audio) == 0 {
		respondError(w, http.StatusBadGateway, "preview_empty", "synthesis produced no audio")
		return
	}

	contentType := "application/octet-stream"
	if strings.HasPrefix(format, "mp3") {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}
