// Package llm provides LLM integration via Ollama API.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// Client is an Ollama API client for LLM interactions.
type Client struct {
	client      *api.Client // Official Ollama Go client
	model       string      // LLM model name (e.g., "gemma3:1b")
	temperature float64     // sampling temperature for chat completions
}

// Config holds LLM client configuration. System prompt framing and
// conversation history are owned by AgentInvoker/ContextWindow, not the
// client, so this stays limited to transport/model settings.
type Config struct {
	Host        string
	Model       string
	Temperature float64
}

// NewClient creates a new Ollama client with optimized connection pooling.
// The HTTP client is configured for low-latency repeated requests to local LLM.
func NewClient(cfg *Config) (*Client, error) {
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	// Parse host URL
	host := strings.TrimSuffix(cfg.Host, "/")
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}

	// Create official Ollama client with optimized http.Client
	// Configure connection pooling to reduce latency on repeated requests
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  false,
		},
	}
	client := api.NewClient(parsedURL, httpClient)

	return &Client{
		client:      client,
		model:       cfg.Model,
		temperature: temperature,
	}, nil
}

// HealthCheck verifies the Ollama server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	// Use the Heartbeat method to check connectivity
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("cannot reach Ollama: %w", err)
	}
	return nil
}

// ToolSpec describes one callable tool offered to the model, in the shape
// the agent package's Selector produces (narrow enough to avoid a direct
// dependency from llm on internal/tools).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-schema-shaped parameter spec
}

// ToolCall is one function invocation the model asked for.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ChatResult is the outcome of a tool-augmented chat turn.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

func toAPITools(tools []ToolSpec) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, len(tools))
	for i, t := range tools {
		fn := api.ToolFunction{
			Name:        t.Name,
			Description: t.Description,
		}
		fn.Parameters.Type = "object"
		fn.Parameters.Properties = make(map[string]api.ToolProperty, len(t.Parameters))
		for name, spec := range t.Parameters {
			propType := "string"
			description := ""
			if m, ok := spec.(map[string]any); ok {
				if v, ok := m["type"].(string); ok {
					propType = v
				}
				if v, ok := m["description"].(string); ok {
					description = v
				}
			}
			fn.Parameters.Properties[name] = api.ToolProperty{Type: api.PropertyType{propType}, Description: description}
		}
		out[i] = api.Tool{Type: "function", Function: fn}
	}
	return out
}

// ChatWithTools sends one chat turn offering the given tools as callable
// functions. The caller (AgentInvoker) owns the full message list since it
// must splice tool results in between rounds.
func (c *Client) ChatWithTools(ctx context.Context, messages []api.Message, tools []ToolSpec) (ChatResult, error) {
	stream := false
	var response api.ChatResponse
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    toAPITools(tools),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": 300,
			"num_ctx":     2048,
		},
	}, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat request failed: %w", err)
	}

	result := ChatResult{Content: strings.TrimSpace(response.Message.Content)}
	for _, tc := range response.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: map[string]any(tc.Function.Arguments),
		})
	}
	return result, nil
}

// Embed generates a text embedding via Ollama's embeddings endpoint, using
// the same model the client chats with. Satisfies memory.Embedder so the
// Memory Service can share the already-configured Ollama connection instead
// of depending on a separate embedding service.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embed request returned no vectors")
	}
	return resp.Embeddings[0], nil
}

// SystemMessage, UserMessage, AssistantMessage, and ToolResultMessage are small
// constructors so callers outside this package don't need to import
// github.com/ollama/ollama/api directly just to build a message list.
func SystemMessage(content string) api.Message    { return api.Message{Role: "system", Content: content} }
func UserMessage(content string) api.Message      { return api.Message{Role: "user", Content: content} }
func AssistantMessage(content string) api.Message { return api.Message{Role: "assistant", Content: content} }
func ToolResultMessage(toolName, content string) api.Message {
	return api.Message{Role: "tool", Content: content, ToolName: toolName}
}
