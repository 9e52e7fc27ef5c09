package db

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"video-rag/internal/models"
)

type Passage struct {
	bun.BaseModel   `bun:"table:video_captions,alias:vc"`
	ID              string          `bun:"id,pk"`
	VideoID         string          `bun:"video_id,notnull"`
	ChunkIndex      int             `bun:"chunk_index,notnull"`
	StartSeconds    float64         `bun:"start_seconds,notnull"`
	DurationSeconds float64         `bun:"duration_seconds,notnull"`
	Text            string          `bun:"text,notnull"`
	Embedding       pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Similarity      float64         `bun:"similarity,scanonly"`
}

// PassageStore is a VectorIndex on Postgres + pgvector.
type PassageStore struct {
	db         *bun.DB
	dimensions int
}

func NewPassageStore(db *bun.DB, dimensions int) *PassageStore {
	return &PassageStore{db: db, dimensions: dimensions}
}

func (s *PassageStore) Dimensions() int { return s.dimensions }

// UpsertAll replaces every passage of videoID inside one transaction.
func (s *PassageStore) UpsertAll(ctx context.Context, videoID string, passages []models.IndexedPassage) error {
	if videoID == "" {
		return fmt.Errorf("%w: empty video id", models.ErrInvalidRequest)
	}
	rows := make([]Passage, 0, len(passages))
	for i, p := range passages {
		if err := s.checkVector(p.Embedding); err != nil {
			return fmt.Errorf("passage %d: %w", i, err)
		}
		rows = append(rows, Passage{
			ID:              p.ID,
			VideoID:         videoID,
			ChunkIndex:      p.ChunkIndex,
			StartSeconds:    p.StartSeconds,
			DurationSeconds: p.DurationSeconds,
			Text:            p.Text,
			Embedding:       pgvector.NewVector(p.Embedding),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Passage)(nil)).Where("video_id = ?", videoID).Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear passages: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert passages: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("video_id", videoID).Int("passages", len(rows)).Msg("Stored passages")
	return nil
}

// Query returns the topK passages of videoID by cosine similarity.
func (s *PassageStore) Query(ctx context.Context, videoID string, vector []float32, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := s.checkVector(vector); err != nil {
		return nil, err
	}

	var rows []Passage
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "video_id", "chunk_index", "start_seconds", "duration_seconds", "text").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", pgvector.NewVector(vector)).
		Where("video_id = ?", videoID).
		OrderExpr("similarity DESC, start_seconds ASC, chunk_index ASC").
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}

	results := make([]models.RetrievalResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, models.RetrievalResult{
			Passage: models.IndexedPassage{
				ID:              r.ID,
				VideoID:         r.VideoID,
				ChunkIndex:      r.ChunkIndex,
				StartSeconds:    r.StartSeconds,
				DurationSeconds: r.DurationSeconds,
				Text:            r.Text,
			},
			Similarity: r.Similarity,
		})
	}
	return models.TopK(results, topK), nil
}

func (s *PassageStore) checkVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", models.ErrDimensionMismatch)
	}
	if s.dimensions > 0 && len(v) != s.dimensions {
		return fmt.Errorf("%w: got %d, index expects %d", models.ErrDimensionMismatch, len(v), s.dimensions)
	}
	return nil
}
