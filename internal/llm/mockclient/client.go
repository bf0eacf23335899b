package mockclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"codeloft/internal/llm"
)

// Client is a deterministic llm.Client used for tests and CI. Responses can
// be scripted ahead of time; with no script it echoes the last user message.
type Client struct {
	mu        sync.Mutex
	scripted  []llm.ChatResponse
	requests  []llm.ChatRequest
	errScript []error
}

// New returns an empty mock client.
func New() *Client {
	return &Client{}
}

// Enqueue appends a scripted response returned by the next Chat call.
func (c *Client) Enqueue(resp llm.ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripted = append(c.scripted, resp)
	c.errScript = append(c.errScript, nil)
}

// EnqueueError appends a scripted failure.
func (c *Client) EnqueueError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripted = append(c.scripted, llm.ChatResponse{})
	c.errScript = append(c.errScript, err)
}

// Requests returns a copy of every request seen so far.
func (c *Client) Requests() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	if len(c.scripted) > 0 {
		resp, err := c.scripted[0], c.errScript[0]
		c.scripted = c.scripted[1:]
		c.errScript = c.errScript[1:]
		if err != nil {
			return llm.ChatResponse{}, err
		}
		return resp, nil
	}

	content := "MOCK RESPONSE"
	if n := len(req.Messages); n > 0 {
		if last := strings.TrimSpace(req.Messages[n-1].Content); last != "" {
			content = fmt.Sprintf("MOCK RESPONSE: %s", last)
		}
	}
	return llm.ChatResponse{
		Choices: []llm.ChatChoice{{
			Index:        0,
			Message:      llm.Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: &llm.Usage{PromptTokens: 42, CompletionTokens: 7, TotalTokens: 49},
	}, nil
}
