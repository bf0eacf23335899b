package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 8192

// AnthropicClient talks to the Anthropic Messages API and adapts it to the
// OpenAI-style Chat contract the agent layer works with.
type AnthropicClient struct {
	sdk anthropic.Client
}

// NewAnthropicClient builds a client. baseURL may be empty for the default
// endpoint.
func NewAnthropicClient(apiKey, baseURL string) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &AnthropicClient{sdk: anthropic.NewClient(opts...)}, nil
}

// Chat satisfies the Client interface.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if req.Model == "" {
		return ChatResponse{}, errors.New("model is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return ChatResponse{}, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			tool := anthropic.ToolParam{
				Name:        t.Function.Name,
				InputSchema: toInputSchema(t.Function.Parameters),
			}
			if t.Function.Description != "" {
				tool.Description = anthropic.String(t.Function.Description)
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("anthropic chat: %w", err)
	}
	return fromAnthropicMessage(resp), nil
}

func toAnthropicMessages(msgs []Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var pendingToolResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingToolResults) == 0 {
			return
		}
		out = append(out, anthropic.NewUserMessage(pendingToolResults...))
		pendingToolResults = nil
	}

	for _, m := range msgs {
		switch m.Role {
		case "tool":
			if m.ToolCallID == "" {
				return nil, errors.New("tool message missing tool_call_id")
			}
			isError := strings.HasPrefix(m.Content, "Error:")
			pendingToolResults = append(pendingToolResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isError))
		case "user":
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				var input any = map[string]any{}
				if args := strings.TrimSpace(call.Function.Arguments); args != "" {
					if err := json.Unmarshal([]byte(args), &input); err != nil {
						input = map[string]any{"raw": args}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Function.Name))
			}
			// The API rejects empty text blocks and empty messages; an
			// assistant turn with nothing to say is dropped.
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("unsupported message role: %q", m.Role)
		}
	}
	flush()
	return out, nil
}

func toInputSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{}
	schema.Type = schema.Type.Default()
	if props, ok := params["properties"]; ok {
		schema.Properties = props
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, item := range req {
			if s, ok := item.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func fromAnthropicMessage(msg *anthropic.Message) ChatResponse {
	var (
		content   strings.Builder
		toolCalls []ToolCall
	)
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if content.Len() > 0 {
				content.WriteString("\n")
			}
			content.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, ToolCall{
				ID:   variant.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      variant.Name,
					Arguments: string(variant.Input),
				},
			})
		}
	}
	return ChatResponse{
		Choices: []ChatChoice{{
			Index: 0,
			Message: Message{
				Role:      "assistant",
				Content:   content.String(),
				ToolCalls: toolCalls,
			},
			FinishReason: string(msg.StopReason),
		}},
		Usage: &Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}
