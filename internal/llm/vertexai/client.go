// Package vertexai implements llm.Client against Google's Vertex AI
// (Gemini) API, adapted from the teacher's cortex orchestration client.
package vertexai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/genai"
)

// Config holds the configuration needed to reach Vertex AI.
type Config struct {
	Project  string
	Location string
	Model    string
}

// NewConfigFromEnv builds a Config from GCP_PROJECT / GCP_LOCATION /
// VERTEX_AI_MODEL, matching the teacher's agents/chat_responder
// pattern.
func NewConfigFromEnv() *Config {
	return &Config{
		Project:  getEnvOrDefault("GCP_PROJECT", "your-project"),
		Location: getEnvOrDefault("GCP_LOCATION", "us-central1"),
		Model:    getEnvOrDefault("VERTEX_AI_MODEL", "gemini-2.0-flash"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Client implements llm.Client against Vertex AI.
type Client struct {
	config *Config
	client *genai.Client
	logger *slog.Logger
}

// NewClient creates a Vertex AI-backed llm.Client.
func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("vertexai: config cannot be nil")
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Project,
		Location: config.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("vertexai: create client: %w", err)
	}

	logLevel := slog.LevelInfo
	if strings.ToUpper(os.Getenv("LOG_LEVEL")) == "DEBUG" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	return &Client{config: config, client: genaiClient, logger: logger}, nil
}

// Generate implements llm.Client by opening a single-turn chat and
// returning the first text part of the response.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.logger.DebugContext(ctx, "vertexai: sending prompt",
		"model", c.config.Model, "project", c.config.Project, "prompt_length", len(prompt))

	var cfg *genai.GenerateContentConfig
	if maxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	}

	chat, err := c.client.Chats.Create(ctx, c.config.Model, cfg, nil)
	if err != nil {
		return "", fmt.Errorf("vertexai: create chat: %w", err)
	}

	result, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		c.logger.ErrorContext(ctx, "vertexai: send message failed", "error", err)
		return "", fmt.Errorf("vertexai: send message: %w", err)
	}

	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				c.logger.DebugContext(ctx, "vertexai: received response", "response_length", len(part.Text))
				return part.Text, nil
			}
		}
	}

	return "", fmt.Errorf("vertexai: no text in response")
}
