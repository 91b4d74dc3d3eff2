// Package openai provides a ports.Scorer backed by an OpenAI chat model.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
	"github.com/sashabaranov/go-openai"
)

const scoringPrompt = `You assess relationships between business entities (reporting lines, vendor partnerships,
credit links, service assignments and similar).

Given one relationship record and facts about its position in the graph, return:
- confidence: how plausible and well-supported the relationship is (0.0-1.0)
- classification: one short lowercase label for the relationship's business role
- insights: an object with any observations worth storing (may be empty)

Return ONLY a valid JSON object, no other text.

Example output:
{"confidence": 0.82, "classification": "strategic_supplier", "insights": {"risk": "single_source"}}`

// Client implements ports.Scorer using OpenAI chat completions.
type Client struct {
	client *openai.Client
	model  string
}

var _ ports.Scorer = (*Client)(nil)

// NewClient creates a new OpenAI scoring client.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := openai.GPT4oMini
	if cfg.Model != "" {
		model = cfg.Model
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Score asks the model to assess rel.
func (c *Client) Score(ctx context.Context, rel *entities.Relationship, sc ports.ScoreContext) (*ports.Score, error) {
	input, err := json.Marshal(scoringInput{
		Relationship: rel.Document(),
		Tier:         string(sc.Tier),
		FromDegree:   sc.FromDegree,
		ToDegree:     sc.ToDegree,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling scoring input: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: scoringPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: string(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	return parseScore(resp.Choices[0].Message.Content)
}

// scoringInput is the user message sent to the model.
type scoringInput struct {
	Relationship entities.Value `json:"relationship"`
	Tier         string         `json:"strength_tier"`
	FromDegree   int            `json:"from_degree"`
	ToDegree     int            `json:"to_degree"`
}

// rawScore is the JSON structure returned by the model.
type rawScore struct {
	Confidence     *float64       `json:"confidence"`
	Classification string         `json:"classification"`
	Insights       entities.Value `json:"insights"`
}

// parseScore decodes and sanity-checks a model reply.
func parseScore(content string) (*ports.Score, error) {
	content = cleanJSONResponse(content)

	var raw rawScore
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parsing score JSON: %w (response: %s)", err, content)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("score JSON has no confidence (response: %s)", content)
	}

	confidence := *raw.Confidence
	if math.IsNaN(confidence) {
		return nil, errors.New("score JSON has a NaN confidence")
	}
	confidence = math.Min(1, math.Max(0, confidence))

	insights := raw.Insights
	if insights.IsNull() {
		insights = entities.Object(nil)
	}

	return &ports.Score{
		Confidence:     confidence,
		Classification: strings.ToLower(strings.TrimSpace(raw.Classification)),
		Insights:       insights,
	}, nil
}

// cleanJSONResponse removes markdown code blocks if present.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}
