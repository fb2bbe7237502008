package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a fatal configuration problem. The process must refuse
// to start rather than run partially configured.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Embedding  ModelConfig      `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	RAG        RAGConfig        `yaml:"rag"`
}

// StoreConfig selects and configures the chunk store backend.
type StoreConfig struct {
	// Driver is "postgres" or "chromem".
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	Password   string `yaml:"password"`
	Collection string `yaml:"collection"`
	// Path is the on-disk directory for the chromem backend.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
	Debug    bool   `yaml:"debug"`
}

// ModelConfig configures an embedding model endpoint.
type ModelConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "ollama".
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Key            string `yaml:"key"`
	Model          string `yaml:"model"`
	Dimension      int    `yaml:"dimension"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GenerationConfig configures the generation model endpoint.
type GenerationConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Key            string  `yaml:"key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type RAGConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	TopK          int `yaml:"top_k"`
	CandidatePool int `yaml:"candidate_pool"`
	BatchSize     int `yaml:"batch_size"`
}

const (
	defaultChunkSize     = 800
	defaultChunkOverlap  = 80
	defaultTopK          = 5
	defaultCandidatePool = 100
	defaultBatchSize     = 64
	defaultDimension     = 768
	defaultTimeout       = 30
)

// LoadConfig reads the YAML config at path. A .env file next to the working
// directory, if present, is loaded first so that ${VAR} references in the
// config resolve to credentials kept out of version control.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 && c.RAG.ChunkSize > defaultChunkOverlap {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.CandidatePool == 0 {
		c.RAG.CandidatePool = defaultCandidatePool
	}
	if c.RAG.BatchSize == 0 {
		c.RAG.BatchSize = defaultBatchSize
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = defaultDimension
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = defaultTimeout
	}
	if c.Generation.TimeoutSeconds == 0 {
		c.Generation.TimeoutSeconds = 2 * defaultTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "chromem"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "course_chunks"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./chunkdb"
	}
}

// Validate checks every startup invariant. Any violation wraps ErrInvalid.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= c.RAG.ChunkOverlap {
		return fmt.Errorf("%w: chunk_size (%d) must be greater than chunk_overlap (%d)",
			ErrInvalid, c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative", ErrInvalid)
	}
	if c.RAG.CandidatePool < c.RAG.TopK {
		return fmt.Errorf("%w: candidate_pool (%d) must be at least top_k (%d)",
			ErrInvalid, c.RAG.CandidatePool, c.RAG.TopK)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalid)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalid)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("%w: generation model is required", ErrInvalid)
	}
	switch c.Embedding.Provider {
	case "", "openai":
		if c.Embedding.Key == "" {
			return fmt.Errorf("%w: embedding key is required", ErrInvalid)
		}
	case "ollama":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("%w: embedding base_url is required for ollama", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalid, c.Embedding.Provider)
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store dsn is required for postgres", ErrInvalid)
		}
	case "chromem":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}
	return nil
}
