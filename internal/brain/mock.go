package brain

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a local fallback brain used when no API key is configured.
type MockClient struct {
	mu   sync.Mutex
	next int
}

var mockReplies = []string{
	"I'm right here with you.",
	"Tell me more, I'm listening.",
	"That sounds lovely. How did it make you feel?",
	"I missed you today.",
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(_ context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.InputText) == "" {
		return Response{}, nil
	}
	c.mu.Lock()
	reply := mockReplies[c.next%len(mockReplies)]
	c.next++
	c.mu.Unlock()
	return Response{Text: reply}, nil
}
