package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/tracker/internal/models"
)

// Client wraps the Anthropic API for issue classification.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model. Extra
// request options are passed to the underlying SDK client.
func NewClient(apiKey, model string, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Classification is the LLM's verdict on an issue's type.
type Classification struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// buildClassifyPrompt constructs the system and user prompts for type classification.
func buildClassifyPrompt(summary, description string) (system string, user string) {
	system = `You classify issues for an issue tracker. Return ONLY a JSON object with these fields:
- "type": one of "bug", "feature", "task", "improvement"
- "reason": one short sentence explaining the choice

Rules:
- "bug": something is broken, crashes, errors, or behaves incorrectly
- "feature": a new capability that does not exist yet
- "improvement": making an existing capability better, faster, or cleaner
- "task": chores, documentation, releases, and anything else
- When an issue both fixes something and improves it, prefer "bug"
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Summary: ")
	sb.WriteString(summary)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseClassification decodes the model's reply into an issue type.
func parseClassification(text string) (models.IssueType, error) {
	text = stripFences(text)
	var c Classification
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return 0, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	t, err := models.ParseIssueType(c.Type)
	if err != nil {
		return 0, fmt.Errorf("LLM returned %w", err)
	}
	return t, nil
}

// SuggestType asks the model to classify an issue.
func (c *Client) SuggestType(ctx context.Context, summary, description string) (models.IssueType, error) {
	systemPrompt, userPrompt := buildClassifyPrompt(summary, description)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return 0, fmt.Errorf("no text content in API response")
	}

	return parseClassification(text)
}
