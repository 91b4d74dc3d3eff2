package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/relgraph/internal/domain/mocks"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
	embedder "github.com/ersonp/relgraph/internal/infrastructure/embedder/openai"
)

func TestNewInitHandler(t *testing.T) {
	cm := &mocks.CollectionManager{}

	handler := NewInitHandler(cm)

	require.NotNil(t, handler)
	assert.Equal(t, cm, handler.collectionManager)
}

func TestInitHandler_Handle_Success(t *testing.T) {
	tmpDir := t.TempDir()
	cm := &mocks.CollectionManager{}
	handler := NewInitHandler(cm)

	result, err := handler.Handle(t.Context(), tmpDir)

	require.NoError(t, err)
	assert.Contains(t, result.ConfigPath, "config.yaml")
	assert.Contains(t, result.DatabasePath, config.DefaultDatabaseFile)
	assert.NotEmpty(t, result.CollectionName)
	assert.Equal(t, 1, cm.EnsureCollectionCallCount)
	assert.Equal(t, uint64(embedder.VectorSize), cm.VectorSize)
	assert.False(t, cm.Dropped)
	assert.True(t, config.Exists(tmpDir))
}

func TestInitHandler_Handle_WithoutIndex(t *testing.T) {
	tmpDir := t.TempDir()
	handler := NewInitHandler(nil)

	result, err := handler.Handle(t.Context(), tmpDir)

	require.NoError(t, err)
	assert.Empty(t, result.CollectionName)
	assert.True(t, config.Exists(tmpDir))
}

func TestInitHandler_Handle_AlreadyInitialized(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, config.WriteDefault(tmpDir))

	handler := NewInitHandler(&mocks.CollectionManager{})

	_, err := handler.Handle(t.Context(), tmpDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestInitHandler_Handle_CollectionError(t *testing.T) {
	tmpDir := t.TempDir()
	handler := NewInitHandler(&mocks.CollectionManager{EnsureErr: errors.New("connection failed")})

	_, err := handler.Handle(t.Context(), tmpDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating collection")
	assert.Contains(t, err.Error(), "connection failed")
}
