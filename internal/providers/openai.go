// Package providers adapts LLM backends to the schema.LLMProvider contract.
// All supported backends speak the OpenAI chat completions protocol, so one
// client covers them with a configurable base URL.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/silverkite/silverkite/internal/schema"
)

// Client is an OpenAI-protocol chat client.
type Client struct {
	api *openai.Client
}

// NewClient creates a Client. baseURL is optional; empty uses the OpenAI
// default endpoint.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// Chat sends one chat completion request and normalises the response.
func (c *Client) Chat(ctx context.Context, messages schema.Messages, tools []map[string]any, opts schema.ChatOptions) (schema.LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    toWireMessages(messages),
		Temperature: float32(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = toWireTools(tools)
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return schema.LLMResponse{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return schema.LLMResponse{}, fmt.Errorf("chat completion: empty choices")
	}

	choice := resp.Choices[0]
	out := schema.LLMResponse{
		FinishReason: string(choice.FinishReason),
		Usage: map[string]int{
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
			"total_tokens":  resp.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != "" {
		content := choice.Message.Content
		out.Content = &content
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]any{}
		}
		out.ToolCalls = append(out.ToolCalls, schema.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func toWireMessages(messages schema.Messages) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, messages.Len())
	for _, m := range messages.Messages {
		wire := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Text(),
			ToolCallID: m.ToolCallID,
		}
		if m.Role == "tool" {
			wire.Name = m.ToolName
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, wire)
	}
	return out
}

func toWireTools(tools []map[string]any) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  fn["parameters"],
			},
		})
	}
	return out
}
