package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeloft/internal/llm"
	"codeloft/internal/logging"
	"codeloft/internal/metrics"
	"codeloft/internal/prompts"
	"codeloft/internal/tooling"
)

const (
	// Hard limit on the size of a tool result fed back to the model.
	maxToolResultSize = 50000

	// FallbackResponse is returned when the agent hits the iteration cap
	// without producing a terminal text answer.
	FallbackResponse = "I wasn't able to produce a response for this request. Please try rephrasing your message."
)

// Router drives the tool-calling loop for one message: call the model, run
// the requested tools, feed the results back, until the model answers with
// plain text or the iteration cap is hit.
type Router struct {
	Client        llm.Client
	Model         string
	TitleModel    string
	Temperature   float64
	MaxIterations int
}

// Run executes the loop over the supplied history. history must end with the
// user message being processed. Returns the final assistant text.
func (r *Router) Run(ctx context.Context, history []llm.Message, registry *tooling.Registry) (string, error) {
	maxIter := r.MaxIterations
	if maxIter <= 0 {
		maxIter = 20
	}
	messages := append([]llm.Message(nil), history...)
	lastText := ""

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		metrics.AgentTurns.Inc()
		resp, err := r.Client.Chat(ctx, llm.ChatRequest{
			Model:       r.Model,
			System:      prompts.Agent,
			Messages:    messages,
			Tools:       registry.Definitions(),
			Temperature: r.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			// A malformed turn is not terminal; ask again.
			logging.ErrorLog("agent: provider returned no choices on iteration %d", iter)
			continue
		}
		choice := resp.Choices[0]
		if resp.Usage != nil {
			logging.DevLog("agent: token usage prompt=%d completion=%d total=%d",
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
		}
		messages = append(messages, choice.Message)
		if choice.Message.Content != "" {
			lastText = choice.Message.Content
		}

		if len(choice.Message.ToolCalls) == 0 {
			// Text with no tool calls ends the run.
			return choice.Message.Content, nil
		}

		for _, call := range choice.Message.ToolCalls {
			messages = append(messages, r.dispatch(ctx, registry, call))
		}
	}

	if lastText != "" {
		return lastText, nil
	}
	return FallbackResponse, nil
}

func (r *Router) dispatch(ctx context.Context, registry *tooling.Registry, call llm.ToolCall) llm.Message {
	metrics.ToolCalls.WithLabelValues(call.Function.Name).Inc()
	result := r.execute(ctx, registry, call)
	if len(result) > maxToolResultSize {
		result = result[:maxToolResultSize] + fmt.Sprintf(
			"\n\n[TRUNCATED: tool result too large (%d chars), showing first %d]",
			len(result), maxToolResultSize)
	}
	return llm.Message{
		Role:       "tool",
		Name:       call.Function.Name,
		Content:    result,
		ToolCallID: call.ID,
	}
}

func (r *Router) execute(ctx context.Context, registry *tooling.Registry, call llm.ToolCall) string {
	tool, ok := registry.Lookup(call.Function.Name)
	if !ok {
		logging.ErrorLog("agent: tool %s not registered", call.Function.Name)
		return fmt.Sprintf("Error:tool %s not registered", call.Function.Name)
	}
	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			logging.ErrorLog("agent: invalid args for %s: %v", call.Function.Name, err)
			return fmt.Sprintf("Error:invalid arguments for %s: %v", call.Function.Name, err)
		}
	}
	start := time.Now()
	logging.DevLog("agent: executing tool %s", call.Function.Name)
	result, err := tool.Call(ctx, args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "Error:cancelled"
		}
		logging.ErrorLog("agent: tool %s failed after %s: %v",
			call.Function.Name, time.Since(start).Round(time.Millisecond), err)
		return fmt.Sprintf("Error:%v", err)
	}
	logging.DevLog("agent: tool %s completed, %d bytes in %s",
		call.Function.Name, len(result), time.Since(start).Round(time.Millisecond))
	return result
}

// GenerateTitle asks the model for a short conversation title derived from
// the opening user message and the assistant's answer.
func (r *Router) GenerateTitle(ctx context.Context, userMessage, assistantMessage string) (string, error) {
	model := r.TitleModel
	if model == "" {
		model = r.Model
	}
	resp, err := r.Client.Chat(ctx, llm.ChatRequest{
		Model:  model,
		System: prompts.Title,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("User: %s\n\nAssistant: %s", userMessage, assistantMessage),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generate title: no choices returned")
	}
	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	title = strings.Trim(title, `"`)
	if title == "" {
		return "", errors.New("generate title: empty title")
	}
	if len(title) > 80 {
		title = strings.TrimSpace(title[:80])
	}
	return title, nil
}
