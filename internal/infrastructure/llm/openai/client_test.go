package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			cfg: config.LLMConfig{
				APIKey: "test-key",
			},
			wantErr: false,
		},
		{
			name: "valid config with model and base URL",
			cfg: config.LLMConfig{
				APIKey:  "test-key",
				Model:   "gpt-4",
				BaseURL: "http://localhost:9999/v1",
			},
			wantErr: false,
		},
		{
			name:    "missing API key",
			cfg:     config.LLMConfig{},
			wantErr: true,
			errMsg:  "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

// chatServer answers every chat completion with content.
func chatServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		body, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testRelationship() *entities.Relationship {
	return &entities.Relationship{
		ID:               "rel-1",
		OrganizationID:   "org-1",
		FromEntityID:     "acme",
		ToEntityID:       "globex",
		RelationshipType: "supplier_partnership",
		SmartCode:        "HERA.SUP.v1",
		Strength:         0.9,
		Direction:        entities.DirectionForward,
		IsActive:         true,
	}
}

func TestClient_Score(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, `{"confidence": 0.82, "classification": "Strategic_Supplier", "insights": {"risk": "single_source"}}`, &seen)
	client, err := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	score, err := client.Score(context.Background(), testRelationship(), ports.ScoreContext{Tier: entities.TierCritical, FromDegree: 2})

	require.NoError(t, err)
	assert.Equal(t, 0.82, score.Confidence)
	assert.Equal(t, "strategic_supplier", score.Classification)
	risk, ok := score.Insights.Get("risk")
	require.True(t, ok)
	assert.True(t, risk.Equal(entities.String("single_source")))

	assert.Equal(t, "gpt-4o-mini", seen["model"])
	messages, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)["content"].(string)
	assert.Contains(t, user, `"strength_tier":"critical"`)
	assert.Contains(t, user, `"supplier_partnership"`)
}

func TestClient_Score_BadReply(t *testing.T) {
	srv := chatServer(t, "I think this is a strong partnership.", nil)
	client, err := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = client.Score(context.Background(), testRelationship(), ports.ScoreContext{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing score JSON")
}

func TestClient_Score_Canceled(t *testing.T) {
	srv := chatServer(t, `{"confidence": 0.5}`, nil)
	client, err := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Score(ctx, testRelationship(), ports.ScoreContext{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      *ports.Score
		errSubstr string
	}{
		{
			name:  "complete reply",
			input: `{"confidence": 0.4, "classification": "routine", "insights": {"n": 1}}`,
			want: &ports.Score{
				Confidence:     0.4,
				Classification: "routine",
				Insights:       entities.MustFromAny(map[string]any{"n": 1.0}),
			},
		},
		{
			name:  "code fenced reply without insights",
			input: "```json\n{\"confidence\": 0.7, \"classification\": \" Core \"}\n```",
			want: &ports.Score{
				Confidence:     0.7,
				Classification: "core",
				Insights:       entities.Object(nil),
			},
		},
		{
			name:  "confidence clamped",
			input: `{"confidence": 1.7, "classification": "core"}`,
			want: &ports.Score{
				Confidence:     1,
				Classification: "core",
				Insights:       entities.Object(nil),
			},
		},
		{
			name:      "missing confidence",
			input:     `{"classification": "core"}`,
			errSubstr: "no confidence",
		},
		{
			name:      "not JSON",
			input:     `confidence: high`,
			errSubstr: "parsing score JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := parseScore(tt.input)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Confidence, score.Confidence)
			assert.Equal(t, tt.want.Classification, score.Classification)
			assert.True(t, tt.want.Insights.Equal(score.Insights), "insights %s", score.Insights)
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain JSON",
			input:    `{"confidence": 0.5}`,
			expected: `{"confidence": 0.5}`,
		},
		{
			name:     "JSON with json code block",
			input:    "```json\n{\"confidence\": 0.5}\n```",
			expected: `{"confidence": 0.5}`,
		},
		{
			name:     "JSON with plain code block",
			input:    "```\n{\"confidence\": 0.5}\n```",
			expected: `{"confidence": 0.5}`,
		},
		{
			name:     "JSON with whitespace",
			input:    "  \n{\"confidence\": 0.5}\n  ",
			expected: `{"confidence": 0.5}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cleanJSONResponse(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
