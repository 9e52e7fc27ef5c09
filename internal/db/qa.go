package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"video-rag/internal/models"
)

type Episode struct {
	bun.BaseModel `bun:"table:episodes,alias:e"`
	VideoID       string    `bun:"video_id,pk"`
	Title         string    `bun:"title,notnull"`
	Description   string    `bun:"description"`
	NewsletterID  string    `bun:"newsletter_id"`
	Date          string    `bun:"date"`
	State         string    `bun:"state,notnull"`
	FailureReason string    `bun:"failure_reason"`
	SegmentCount  int       `bun:"segment_count"`
	ChunkCount    int       `bun:"chunk_count"`
	VectorCount   int       `bun:"vector_count"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

type Question struct {
	bun.BaseModel `bun:"table:questions,alias:q"`
	ID            string    `bun:"id,pk"`
	VideoID       string    `bun:"video_id,notnull"`
	AskerID       string    `bun:"asker_id,notnull"`
	Text          string    `bun:"question_text,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

type Answer struct {
	bun.BaseModel  `bun:"table:answers,alias:a"`
	ID             string          `bun:"id,pk"`
	QuestionID     string          `bun:"question_id,notnull,unique"`
	Text           string          `bun:"answer_text,notnull"`
	Sources        []models.Source `bun:"sources,type:jsonb"`
	Model          string          `bun:"model_used"`
	RequestedModel string          `bun:"requested_model"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
}

// Store persists episodes, questions and answers.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SaveEpisode inserts or updates the episode row for e.VideoID.
func (s *Store) SaveEpisode(ctx context.Context, e *models.Episode) error {
	now := s.now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	row := &Episode{
		VideoID:       e.VideoID,
		Title:         e.Title,
		Description:   e.Description,
		NewsletterID:  e.NewsletterID,
		Date:          e.Date,
		State:         string(e.State),
		FailureReason: e.FailureReason,
		SegmentCount:  e.SegmentCount,
		ChunkCount:    e.ChunkCount,
		VectorCount:   e.VectorCount,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (video_id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("newsletter_id = EXCLUDED.newsletter_id").
		Set("date = EXCLUDED.date").
		Set("state = EXCLUDED.state").
		Set("failure_reason = EXCLUDED.failure_reason").
		Set("segment_count = EXCLUDED.segment_count").
		Set("chunk_count = EXCLUDED.chunk_count").
		Set("vector_count = EXCLUDED.vector_count").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save episode %s: %w", e.VideoID, err)
	}
	return nil
}

func (s *Store) GetEpisode(ctx context.Context, videoID string) (*models.Episode, error) {
	row := new(Episode)
	err := s.db.NewSelect().Model(row).Where("video_id = ?", videoID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", videoID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load episode %s: %w", videoID, err)
	}
	return &models.Episode{
		VideoID:       row.VideoID,
		Title:         row.Title,
		Description:   row.Description,
		NewsletterID:  row.NewsletterID,
		Date:          row.Date,
		State:         models.IngestState(row.State),
		FailureReason: row.FailureReason,
		SegmentCount:  row.SegmentCount,
		ChunkCount:    row.ChunkCount,
		VectorCount:   row.VectorCount,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now().UTC()
	}
	_, err := s.db.NewInsert().Model(&Question{
		ID:        q.ID,
		VideoID:   q.VideoID,
		AskerID:   q.AskerID,
		Text:      q.Text,
		CreatedAt: q.CreatedAt,
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save question: %w", err)
	}
	return nil
}

// SaveAnswer writes the answer row. A second answer for the same question is
// rejected by the unique constraint.
func (s *Store) SaveAnswer(ctx context.Context, a *models.AnswerRecord) error {
	_, err := s.db.NewInsert().Model(toAnswerRow(a)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (s *Store) GetAnswer(ctx context.Context, questionID string) (*models.AnswerRecord, error) {
	row := new(Answer)
	err := s.db.NewSelect().Model(row).Where("question_id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("answer for question %s: %w", questionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load answer: %w", err)
	}
	return fromAnswerRow(row), nil
}

// ListQuestions returns the newest questions for a video with their answers,
// if any. Equal timestamps are ordered by id so pages are stable.
func (s *Store) ListQuestions(ctx context.Context, videoID string, limit int) ([]models.QuestionWithAnswer, error) {
	var questions []Question
	q := s.db.NewSelect().Model(&questions).Where("video_id = ?", videoID).Order("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil
	}

	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	var answers []Answer
	if err := s.db.NewSelect().Model(&answers).Where("question_id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	byQuestion := make(map[string]*Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	out := make([]models.QuestionWithAnswer, 0, len(questions))
	for _, q := range questions {
		item := models.QuestionWithAnswer{Question: models.Question{
			ID:        q.ID,
			VideoID:   q.VideoID,
			AskerID:   q.AskerID,
			Text:      q.Text,
			CreatedAt: q.CreatedAt,
		}}
		if a, ok := byQuestion[q.ID]; ok {
			item.Answer = fromAnswerRow(a)
		}
		out = append(out, item)
	}
	return out, nil
}

func toAnswerRow(a *models.AnswerRecord) *Answer {
	return &Answer{
		ID:             a.ID,
		QuestionID:     a.QuestionID,
		Text:           a.Text,
		Sources:        a.Sources,
		Model:          a.Model,
		RequestedModel: a.RequestedModel,
		CreatedAt:      a.CreatedAt,
	}
}

func fromAnswerRow(row *Answer) *models.AnswerRecord {
	return &models.AnswerRecord{
		ID:             row.ID,
		QuestionID:     row.QuestionID,
		Text:           row.Text,
		Sources:        row.Sources,
		Model:          row.Model,
		RequestedModel: row.RequestedModel,
		CreatedAt:      row.CreatedAt,
	}
}
