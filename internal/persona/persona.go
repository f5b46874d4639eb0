package persona

import (
	"fmt"
	"strings"
)

// ID identifies one of the fixed companion personas.
type ID string

const (
	Girlfriend ID = "girlfriend"
	Boyfriend  ID = "boyfriend"
)

// Profile describes how a persona speaks and sounds. Profiles are fixed;
// per-session customization happens through BuildInstructions and the voice
// override on session creation. Voice-shaping parameters are global
// configuration, not per-persona.
type Profile struct {
	ID          ID
	DisplayName string
	RoleText    string
	VoiceID     string
}

var profiles = map[ID]Profile{
	Girlfriend: {
		ID:          Girlfriend,
		DisplayName: "Girlfriend",
		RoleText:    "a loving girlfriend",
		// ElevenLabs premade voice "Rachel".
		VoiceID: "21m00Tcm4TlvDq8ikWAM",
	},
	Boyfriend: {
		ID:          Boyfriend,
		DisplayName: "Boyfriend",
		RoleText:    "a caring boyfriend",
		// ElevenLabs premade voice "Antoni".
		VoiceID: "TxGEqnHWrfWFTfGW9XjX",
	},
}

// Default returns the persona used when none is specified.
func Default() Profile {
	return profiles[Girlfriend]
}

// Parse resolves a raw persona identifier. Empty input maps to the default;
// unknown identifiers are rejected.
func Parse(raw string) (Profile, error) {
	id := ID(strings.ToLower(strings.TrimSpace(raw)))
	if id == "" {
		return Default(), nil
	}
	p, ok := profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown persona %q (expected girlfriend|boyfriend)", raw)
	}
	return p, nil
}

// All lists the available profiles in a stable order.
func All() []Profile {
	return []Profile{profiles[Girlfriend], profiles[Boyfriend]}
}

// ResolveVoice picks the session voice: an explicit override wins, otherwise
// the persona default applies.
func ResolveVoice(p Profile, override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return p.VoiceID
}

// BuildInstructions produces the session system instructions sent to the
// reply generator. They stay out of the visible conversation and are fixed
// for the session once built.
func BuildInstructions(p Profile, userName, custom string) string {
	name := strings.TrimSpace(userName)
	if name == "" {
		name = "User"
	}
	b := fmt.Sprintf(
		"You are Natasha, %s for %s. Be warm, personal and emotional. "+
			"Keep replies short (1-2 sentences), conversational, and speak naturally so they can be converted to speech.",
		p.RoleText, name,
	)
	if c := strings.TrimSpace(custom); c != "" {
		b += " " + c
	}
	return b
}
