package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "chromem", Collection: "chunks", Path: "./db"},
		Embedding: ModelConfig{
			Provider:  "openai",
			Key:       "test-key",
			Model:     "text-embedding-004",
			Dimension: 768,
		},
		Generation: GenerationConfig{Key: "test-key", Model: "gemini-1.5-flash"},
		RAG:        RAGConfig{ChunkSize: 800, ChunkOverlap: 80, TopK: 5, CandidatePool: 100, BatchSize: 64},
	}
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsWindowNotGreaterThanOverlap(t *testing.T) {
	cfg := validConfig()
	cfg.RAG.ChunkSize = 80
	cfg.RAG.ChunkOverlap = 80
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg.RAG.ChunkOverlap = 100
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsPoolSmallerThanTopK(t *testing.T) {
	cfg := validConfig()
	cfg.RAG.TopK = 10
	cfg.RAG.CandidatePool = 5
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Key = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsMissingModels(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Model = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg = validConfig()
	cfg.Generation.Model = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "redis"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRequiresDSNForPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg.Store.DSN = "postgres://localhost:5432/rag"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "secret-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
embedding:
  key: ${TEST_EMBED_KEY}
  model: text-embedding-004
generation:
  key: gen-key
  model: gemini-1.5-flash
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Embedding.Key)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.Equal(t, 80, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 100, cfg.RAG.CandidatePool)
	assert.Equal(t, 64, cfg.RAG.BatchSize)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "chromem", cfg.Store.Driver)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/no/such/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigInvalidIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
embedding:
  key: k
  model: m
generation:
  key: k
  model: m
rag:
  chunk_size: 50
  chunk_overlap: 80
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalid)
}
