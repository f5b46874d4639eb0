package speech

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"time"
)

// localFallbackCandidates are tried in order when no command is configured.
var localFallbackCandidates = []string{"say", "espeak-ng", "espeak", "spd-say"}

// LocalFallback speaks through a host text-to-speech command. It is used
// when the server, rather than the client, owns the degraded speech path.
type LocalFallback struct {
	command string
	timeout time.Duration
}

// NewLocalFallback resolves the speech command. With an empty command it
// probes the usual host synthesizers and returns nil when none is present.
func NewLocalFallback(command string) *LocalFallback {
	command = strings.TrimSpace(command)
	if command == "" {
		for _, candidate := range localFallbackCandidates {
			if _, err := exec.LookPath(candidate); err == nil {
				command = candidate
				break
			}
		}
	}
	if command == "" {
		return nil
	}
	if _, err := exec.LookPath(command); err != nil {
		log.Printf("speech: local fallback command %q not found", command)
		return nil
	}
	return &LocalFallback{command: command, timeout: 30 * time.Second}
}

// Say speaks the text asynchronously. Failures are logged and swallowed so
// a broken fallback never takes down a turn.
func (f *LocalFallback) Say(text string) {
	if f == nil || strings.TrimSpace(text) == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, f.command, text)
		if err := cmd.Run(); err != nil {
			log.Printf("speech: local fallback %q failed: %v", f.command, err)
		}
	}()
}
