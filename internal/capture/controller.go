package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

var (
	// ErrUnsupported is returned when no recognizer backend is available,
	// for example when the connected client has no speech recognition.
	ErrUnsupported = errors.New("speech capture is not supported")

	// ErrAlreadyListening is returned when Start is called while a capture
	// is already running.
	ErrAlreadyListening = errors.New("capture already listening")
)

// CaptureError carries the recognizer failure reason reported by the backend.
type CaptureError struct {
	Reason string
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed: %s", e.Reason)
}

// State is the capture lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
)

// Recognizer produces a single transcript per invocation. Recognize blocks
// until the backend reports a final transcript, an error, or ctx is done.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// Result is one completed capture. An empty Transcript with a nil Err means
// the backend heard no speech.
type Result struct {
	Transcript string
	Err        error
}

// Controller runs one capture at a time and reports completions on Results.
// It moves Idle -> Listening on Start, Listening -> Processing when the
// recognizer returns, and Processing -> Idle on Finish.
type Controller struct {
	recognizer Recognizer

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	results chan Result
}

func NewController(recognizer Recognizer) *Controller {
	return &Controller{
		recognizer: recognizer,
		state:      StateIdle,
		results:    make(chan Result, 4),
	}
}

// Results delivers completed captures. Consumers must drain it promptly.
func (c *Controller) Results() <-chan Result {
	return c.results
}

// State reports the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a capture. It returns ErrUnsupported when no recognizer is
// wired and ErrAlreadyListening when a capture is already in flight.
func (c *Controller) Start(ctx context.Context) error {
	if c.recognizer == nil {
		return ErrUnsupported
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		log.Printf("capture: start ignored, state=%s", c.state)
		return ErrAlreadyListening
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.state = StateListening
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

func (c *Controller) run(ctx context.Context) {
	transcript, err := c.recognizer.Recognize(ctx)

	c.mu.Lock()
	if c.state == StateListening {
		c.state = StateProcessing
	}
	c.cancel = nil
	c.mu.Unlock()

	if err != nil {
		// A stop mid-listen is a normal end of capture, not a failure.
		if errors.Is(err, context.Canceled) {
			c.finishLocked()
			return
		}
		c.results <- Result{Err: err}
		return
	}

	c.results <- Result{Transcript: strings.TrimSpace(transcript)}
}

// Stop cancels an in-flight capture. Stopping an idle controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Finish returns the controller to Idle once the transcript has been
// handled. It is safe to call in any state.
func (c *Controller) Finish() {
	c.finishLocked()
}

func (c *Controller) finishLocked() {
	c.mu.Lock()
	c.state = StateIdle
	c.cancel = nil
	c.mu.Unlock()
}
