package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"video-rag/internal/models"
)

type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is implemented by chromemdb.VectorDBManager and db.PassageStore.
type VectorIndex interface {
	UpsertAll(ctx context.Context, videoID string, passages []models.IndexedPassage) error
	Query(ctx context.Context, videoID string, vector []float32, topK int) ([]models.RetrievalResult, error)
}

type Retriever struct {
	embedder QueryEmbedder
	index    VectorIndex
}

func NewRetriever(embedder QueryEmbedder, index VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve returns the passages of videoID closest to question.
func (r *Retriever) Retrieve(ctx context.Context, videoID, question string, topK int) ([]models.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", models.ErrInvalidRequest)
	}
	if topK <= 0 {
		topK = models.DefaultTopK
	}

	vec, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := r.index.Query(ctx, videoID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	log.Debug().Str("video_id", videoID).Int("results", len(results)).Msg("Retrieved passages")
	return results, nil
}
