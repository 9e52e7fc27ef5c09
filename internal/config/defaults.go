package config

import (
	"fmt"
	"time"

	"video-rag/internal/models"
)

const (
	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingDimensions = 1536
	defaultBaseURL             = "https://api.openai.com/v1"
	defaultChromemPath         = "./chromemdb"
	defaultGenerationTimeout   = 30 * time.Second
	defaultHTTPTimeout         = 15 * time.Second
	defaultGuardTTL            = 10 * time.Minute
	defaultMaxRetries          = 2
	defaultUserAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgdriver"
	}
	if c.Redis.GuardTTL.Duration == 0 {
		c.Redis.GuardTTL.Duration = defaultGuardTTL
	}

	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "openai"
	}
	if c.EmbedLLM.BaseURL == "" && c.EmbedLLM.Provider == "openai" {
		c.EmbedLLM.BaseURL = defaultBaseURL
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = defaultEmbeddingModel
	}
	if c.EmbedLLM.Dimensions == 0 {
		c.EmbedLLM.Dimensions = defaultEmbeddingDimensions
	}

	if c.InferenceLLM.Provider == "" {
		c.InferenceLLM.Provider = "openai"
	}
	if c.InferenceLLM.BaseURL == "" && c.InferenceLLM.Provider == "openai" {
		c.InferenceLLM.BaseURL = defaultBaseURL
	}
	if c.InferenceLLM.Model == "" {
		c.InferenceLLM.Model = models.DefaultModel
	}

	if c.RAG.VectorStore == "" {
		c.RAG.VectorStore = "chromem"
	}
	if c.RAG.ChromemPath == "" {
		c.RAG.ChromemPath = defaultChromemPath
	}
	if c.RAG.MaxChunkTokens <= 0 {
		c.RAG.MaxChunkTokens = models.DefaultMaxChunkTokens
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = models.DefaultTopK
	}
	if c.RAG.PreviewChars <= 0 {
		c.RAG.PreviewChars = models.DefaultPreviewChars
	}
	if c.RAG.GenerationTimeout.Duration <= 0 {
		c.RAG.GenerationTimeout.Duration = defaultGenerationTimeout
	}

	if c.Transcript.PrimaryLanguage == "" {
		c.Transcript.PrimaryLanguage = "ja"
	}
	if c.Transcript.FallbackLanguage == "" {
		c.Transcript.FallbackLanguage = "en"
	}
	if c.Transcript.HTTPTimeout.Duration <= 0 {
		c.Transcript.HTTPTimeout.Duration = defaultHTTPTimeout
	}
	if c.Transcript.MaxRetries < 0 {
		c.Transcript.MaxRetries = 0
	} else if c.Transcript.MaxRetries == 0 {
		c.Transcript.MaxRetries = defaultMaxRetries
	}
	if c.Transcript.UserAgent == "" {
		c.Transcript.UserAgent = defaultUserAgent
	}
}

// Validate rejects configurations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.RAG.VectorStore {
	case "chromem", "postgres":
	default:
		return fmt.Errorf("unknown vector store %q", c.RAG.VectorStore)
	}
	for name, p := range map[string]string{"embed_llm": c.EmbedLLM.Provider, "inference_llm": c.InferenceLLM.Provider} {
		if p != "openai" && p != "ollama" {
			return fmt.Errorf("%s: unknown provider %q", name, p)
		}
	}
	if c.EmbedLLM.Dimensions < 0 {
		return fmt.Errorf("embed_llm: dimensions must be positive, got %d", c.EmbedLLM.Dimensions)
	}
	switch c.Database.Driver {
	case "pgdriver", "pq":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.RAG.VectorStore == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("vector store postgres requires database.url")
	}
	return nil
}
