package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"video-rag/internal/config"
	"video-rag/internal/models"
)

const defaultBatchSize = 512

// Embedder turns chunk and query text into fixed-dimension vectors. Upstream
// failures are returned as models.ErrEmbeddingService and never retried, so a
// partial batch can never reach the index.
type Embedder struct {
	impl       embeddings.Embedder
	dimensions int
	model      string
}

// New wraps a langchaingo embedder. dimensions <= 0 disables the length check.
func New(impl embeddings.Embedder, dimensions int, model string) *Embedder {
	return &Embedder{impl: impl, dimensions: dimensions, model: model}
}

// NewFromConfig builds an embedder for the configured provider
func NewFromConfig(cfg *config.LLMConfig) (*Embedder, error) {
	var (
		impl *embeddings.EmbedderImpl
		err  error
	)
	switch cfg.Provider {
	case "ollama":
		impl, err = NewOllamaEmbedder(cfg)
	default:
		impl, err = NewOpenAIEmbedder(cfg)
	}
	if err != nil {
		return nil, err
	}
	return New(impl, cfg.Dimensions, cfg.Model), nil
}

// NewOpenAIEmbedder creates an embedder against any OpenAI-compatible endpoint
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating OpenAI embedder")

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize(cfg)))
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating Ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(batchSize(cfg)))
}

func batchSize(cfg *config.LLMConfig) int {
	if cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return defaultBatchSize
}

func (e *Embedder) Dimensions() int { return e.dimensions }

func (e *Embedder) Model() string { return e.model }

// EmbedOne embeds a single text, typically a question.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}
	if err := e.check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedMany embeds texts in one logical call; the result is index-aligned
// with texts.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbeddingService, len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if err := e.check(vec); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	log.Debug().Int("texts", len(texts)).Str("model", e.model).Msg("Generated embeddings")
	return vecs, nil
}

func (e *Embedder) check(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", models.ErrEmbeddingService)
	}
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return fmt.Errorf("%w: model %s returned %d dimensions, configured %d", models.ErrDimensionMismatch, e.model, len(vec), e.dimensions)
	}
	return nil
}
