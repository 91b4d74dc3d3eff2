package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/infrastructure/config"
)

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbedderConfig
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			cfg: config.EmbedderConfig{
				APIKey: "test-key",
			},
			wantErr: false,
		},
		{
			name: "valid config with model",
			cfg: config.EmbedderConfig{
				APIKey: "test-key",
				Model:  "text-embedding-ada-002",
			},
			wantErr: false,
		},
		{
			name:    "missing API key",
			cfg:     config.EmbedderConfig{},
			wantErr: true,
			errMsg:  "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder, err := NewEmbedder(tt.cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, embedder)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, embedder)
			}
		})
	}
}

func TestVectorSize(t *testing.T) {
	// Verify the constant matches OpenAI's text-embedding-3-small dimension
	assert.Equal(t, 1536, VectorSize)
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embeddingServer replies with data for every embeddings request.
func embeddingServer(t *testing.T, data []embeddingData) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   data,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	// Out-of-order data must come back in input order.
	srv := embeddingServer(t, []embeddingData{
		{Object: "embedding", Embedding: []float32{0, 1}, Index: 1},
		{Object: "embedding", Embedding: []float32{1, 0}, Index: 0},
	})
	emb, err := NewEmbedder(config.EmbedderConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	got, err := emb.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
}

func TestEmbedder_Embed(t *testing.T) {
	srv := embeddingServer(t, []embeddingData{{Object: "embedding", Embedding: []float32{0.5, 0.5}, Index: 0}})
	emb, err := NewEmbedder(config.EmbedderConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	got, err := emb.Embed(context.Background(), "reports to")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, got)
}

func TestEmbedder_EmbedBatch_Mismatch(t *testing.T) {
	srv := embeddingServer(t, []embeddingData{{Object: "embedding", Embedding: []float32{1}, Index: 0}})
	emb, err := NewEmbedder(config.EmbedderConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = emb.EmbedBatch(context.Background(), []string{"a", "b"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	emb, err := NewEmbedder(config.EmbedderConfig{APIKey: "test-key"})
	require.NoError(t, err)

	got, err := emb.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, got)
}
