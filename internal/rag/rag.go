package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"video-rag/internal/config"
	"video-rag/internal/helper"
	"video-rag/internal/ingest"
	"video-rag/internal/models"
	"video-rag/internal/session"
)

const defaultListLimit = 20

type QuestionStore interface {
	AnswerStore
	CreateQuestion(ctx context.Context, q *models.Question) error
	GetAnswer(ctx context.Context, questionID string) (*models.AnswerRecord, error)
	ListQuestions(ctx context.Context, videoID string, limit int) ([]models.QuestionWithAnswer, error)
}

type Registrar interface {
	Register(ctx context.Context, req ingest.RegisterRequest) (*ingest.Result, error)
}

type AskRequest struct {
	VideoID  string
	Question string
	AskerID  string
	Profile  *models.AskerProfile
	Model    string
	// SessionID and QuestionKey enable duplicate suppression when both set.
	SessionID   string
	QuestionKey string
}

// SourcePreview is a retrieved passage as shown next to a streaming answer.
type SourcePreview struct {
	PassageID    string  `json:"passage_id"`
	StartSeconds float64 `json:"start_time"`
	Timestamp    string  `json:"timestamp"`
	Text         string  `json:"text"`
	Similarity   float64 `json:"similarity"`
}

type Answer struct {
	QuestionID string
	Sources    []SourcePreview
	Stream     *Stream
}

type RAG struct {
	retriever    *Retriever
	generator    *Generator
	store        QuestionStore
	pipeline     Registrar
	guard        session.Guard
	topK         int
	previewChars int
}

// NewRAG wires the query side. store may be nil when questions are not
// persisted.
func NewRAG(cfg *config.RAGConfig, retriever *Retriever, generator *Generator, store QuestionStore) *RAG {
	r := &RAG{
		retriever:    retriever,
		generator:    generator,
		store:        store,
		topK:         models.DefaultTopK,
		previewChars: models.DefaultPreviewChars,
	}
	if cfg != nil {
		if cfg.TopK > 0 {
			r.topK = cfg.TopK
		}
		if cfg.PreviewChars > 0 {
			r.previewChars = cfg.PreviewChars
		}
	}
	return r
}

func (r *RAG) WithPipeline(p Registrar) *RAG {
	r.pipeline = p
	return r
}

func (r *RAG) WithGuard(g session.Guard) *RAG {
	r.guard = g
	return r
}

func (r *RAG) RegisterVideo(ctx context.Context, req ingest.RegisterRequest) (*ingest.Result, error) {
	if r.pipeline == nil {
		return nil, fmt.Errorf("%w: ingestion is not configured", models.ErrInvalidRequest)
	}
	return r.pipeline.Register(ctx, req)
}

// Ask saves the question, retrieves context and returns a stream that
// produces the answer when iterated.
func (r *RAG) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if req.VideoID == "" || question == "" {
		return nil, fmt.Errorf("%w: video id and question are required", models.ErrInvalidRequest)
	}

	guarded := r.guard != nil && req.SessionID != "" && req.QuestionKey != ""
	if guarded {
		ok, err := r.guard.Begin(ctx, req.SessionID, req.QuestionKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrDuplicateGeneration
		}
	}
	release := func(err error) {
		if !guarded {
			return
		}
		bg := context.WithoutCancel(ctx)
		var gerr error
		if err == nil {
			gerr = r.guard.Complete(bg, req.SessionID, req.QuestionKey)
		} else {
			gerr = r.guard.Fail(bg, req.SessionID, req.QuestionKey)
		}
		if gerr != nil {
			log.Error().Err(gerr).Str("session_id", req.SessionID).Msg("Failed to release session guard")
		}
	}

	q, err := r.saveQuestion(ctx, req.VideoID, req.AskerID, question)
	if err != nil {
		release(err)
		return nil, err
	}

	results, err := r.retriever.Retrieve(ctx, req.VideoID, question, r.topK)
	if err != nil {
		release(err)
		return nil, err
	}

	stream := r.generator.Generate(ctx, GenerateRequest{
		QuestionID: q.ID,
		Question:   question,
		Passages:   results,
		Profile:    req.Profile,
		Model:      req.Model,
	})
	stream.onFinish = release
	// a client that goes away before reading must not keep the guard held
	stream.stopWatch = context.AfterFunc(ctx, func() {
		if stream.abandon(models.ErrClientDisconnected) {
			log.Info().Str("question_id", q.ID).Msg("Answer stream abandoned before start")
		}
	})

	log.Info().Str("video_id", req.VideoID).Str("question_id", q.ID).Int("sources", len(results)).Str("model", stream.Model()).Msg("Answering question")
	return &Answer{QuestionID: q.ID, Sources: r.previews(results), Stream: stream}, nil
}

func (r *RAG) saveQuestion(ctx context.Context, videoID, askerID, text string) (*models.Question, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	q := &models.Question{ID: id, VideoID: videoID, AskerID: askerID, Text: text}
	if r.store == nil {
		return q, nil
	}
	if err := r.store.CreateQuestion(ctx, q); err != nil {
		return nil, &models.PersistenceError{QuestionID: id, Err: err}
	}
	return q, nil
}

func (r *RAG) previews(results []models.RetrievalResult) []SourcePreview {
	out := make([]SourcePreview, len(results))
	for i, res := range results {
		out[i] = SourcePreview{
			PassageID:    res.Passage.ID,
			StartSeconds: res.Passage.StartSeconds,
			Timestamp:    helper.FormatTimestamp(res.Passage.StartSeconds),
			Text:         helper.Truncate(res.Passage.Text, r.previewChars),
			Similarity:   res.Similarity,
		}
	}
	return out
}

func (r *RAG) GetAnswer(ctx context.Context, questionID string) (*models.AnswerRecord, error) {
	if r.store == nil {
		return nil, fmt.Errorf("answer for question %s: %w", questionID, models.ErrNotFound)
	}
	return r.store.GetAnswer(ctx, questionID)
}

// ListQuestions returns the newest questions asked about a video.
func (r *RAG) ListQuestions(ctx context.Context, videoID string, limit int) ([]models.QuestionWithAnswer, error) {
	if r.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return r.store.ListQuestions(ctx, videoID, limit)
}
