package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mayanshb/natasha/internal/config"
	"github.com/mayanshb/natasha/internal/observability"
	"github.com/mayanshb/natasha/internal/session"
)

func newTestServer(t *testing.T, name string, orch Orchestrator) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		DefaultPersona:           "girlfriend",
	}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics("test_httpapi_" + name + "_" + time.Now().Format("150405") + "_" + time.Now().Format("000000000"))
	srv := New(cfg, sessions, orch, metrics)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestCreateAndEndSession(t *testing.T) {
	ts := newTestServer(t, "lifecycle", nil)

	createReq := map[string]string{
		"user_name":  "Alex",
		"persona_id": "girlfriend",
	}
	body, _ := json.Marshal(createReq)
	res, err := http.Post(ts.URL+"/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var created map[string]any
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	sessionID, _ := created["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	if created["voice_id"] == "" {
		t.Fatalf("voice was not resolved from the persona: %+v", created)
	}

	endRes, err := http.Post(ts.URL+"/v1/session/"+sessionID+"/end", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("end session request error = %v", err)
	}
	defer endRes.Body.Close()
	if endRes.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", endRes.StatusCode, http.StatusOK)
	}

	missingRes, err := http.Post(ts.URL+"/v1/session/nope/end", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("end missing session request error = %v", err)
	}
	defer missingRes.Body.Close()
	if missingRes.StatusCode != http.StatusNotFound {
		t.Fatalf("end missing status = %d, want %d", missingRes.StatusCode, http.StatusNotFound)
	}
}

func TestCreateSessionRejectsUnknownPersona(t *testing.T) {
	ts := newTestServer(t, "persona", nil)

	body, _ := json.Marshal(map[string]string{"persona_id": "robot"})
	res, err := http.Post(ts.URL+"/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestUIRoutes(t *testing.T) {
	ts := newTestServer(t, "ui", nil)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	rootRes, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer rootRes.Body.Close()
	if rootRes.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("GET / status = %d, want %d", rootRes.StatusCode, http.StatusTemporaryRedirect)
	}
	if got := rootRes.Header.Get("Location"); got != "/ui/" {
		t.Fatalf("GET / location = %q, want %q", got, "/ui/")
	}

	uiRes, err := http.Get(ts.URL + "/ui/")
	if err != nil {
		t.Fatalf("GET /ui/ error = %v", err)
	}
	defer uiRes.Body.Close()
	if uiRes.StatusCode != http.StatusOK {
		t.Fatalf("GET /ui/ status = %d, want %d", uiRes.StatusCode, http.StatusOK)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(uiRes.Body); err != nil {
		t.Fatalf("reading /ui/ body failed: %v", err)
	}
	if !strings.Contains(body.String(), "id=\"mic\"") {
		t.Fatalf("GET /ui/ body missing expected content")
	}
}

func TestListVoices(t *testing.T) {
	ts := newTestServer(t, "voices", nil)

	res, err := http.Get(ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET /v1/voices error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload struct {
		Voices []voiceEntry `json:"voices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Voices) < 2 {
		t.Fatalf("voices = %+v, want at least girlfriend and boyfriend", payload.Voices)
	}
	defaults := 0
	for _, v := range payload.Voices {
		if v.VoiceID == "" {
			t.Fatalf("voice %q has no backing voice id", v.PersonaID)
		}
		if v.Default {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("default voices = %d, want exactly 1", defaults)
	}
}

type previewOrchestrator struct {
	audio []byte
}

func (p *previewOrchestrator) RunConnection(_ context.Context, _ *session.Session, _ <-chan any, _ chan<- any) {
}

func (p *previewOrchestrator) PreviewTTS(_ context.Context, voiceID, personaID, text string) ([]byte, string, error) {
	return p.audio, "mp3_44100_128", nil
}

func TestPreviewTTS(t *testing.T) {
	ts := newTestServer(t, "preview", &previewOrchestrator{audio: []byte("mp3")})

	body, _ := json.Marshal(map[string]string{"persona_id": "girlfriend", "text": "hello"})
	res, err := http.Post(ts.URL+"/v1/tts/preview", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/tts/preview error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := res.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("content type = %q, want audio/mpeg", got)
	}
}

func TestSessionWSRequiresKnownSession(t *testing.T) {
	ts := newTestServer(t, "ws", &previewOrchestrator{})

	res, err := http.Get(ts.URL + "/v1/session/ws?session_id=nope")
	if err != nil {
		t.Fatalf("GET ws error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
