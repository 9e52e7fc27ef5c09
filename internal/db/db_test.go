package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"video-rag/internal/models"
)

func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := NewDB(sqldb, false)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func passage(id string, idx int, start float64, vec ...float32) models.IndexedPassage {
	return models.IndexedPassage{ID: id, VideoID: "vid", ChunkIndex: idx, StartSeconds: start, Text: id, Embedding: vec}
}

func TestPassageStore_UpsertAllReplacesInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPassageStore(db, 2)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "video_captions".*video_id = 'vid'`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO "video_captions"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.UpsertAll(context.Background(), "vid", []models.IndexedPassage{
		passage("a", 0, 0, 1, 0),
		passage("b", 1, 10, 0, 1),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPassageStore_UpsertAllRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPassageStore(db, 2)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "video_captions"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO "video_captions"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.UpsertAll(context.Background(), "vid", []models.IndexedPassage{passage("a", 0, 0, 1, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPassageStore_UpsertAllRejectsBadVectorsBeforeTouchingDB(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPassageStore(db, 3)

	err := store.UpsertAll(context.Background(), "vid", []models.IndexedPassage{passage("a", 0, 0, 1, 0)})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)

	err = store.UpsertAll(context.Background(), "", nil)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPassageStore_UpsertAllEmptyClearsVideo(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPassageStore(db, 2)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "video_captions"`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertAll(context.Background(), "vid", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPassageStore_Query(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPassageStore(db, 2)

	rows := sqlmock.NewRows([]string{"id", "video_id", "chunk_index", "start_seconds", "duration_seconds", "text", "similarity"}).
		AddRow("p1", "vid", 1, 30.0, 10.0, "second", 0.9).
		AddRow("p0", "vid", 0, 0.0, 10.0, "first", 0.9).
		AddRow("p2", "vid", 2, 60.0, 10.0, "third", 0.5)
	mock.ExpectQuery(`SELECT .*1 - \(embedding <=> '\[1,0\]'\) AS similarity.*WHERE \(video_id = 'vid'\) ORDER BY similarity DESC, start_seconds ASC, chunk_index ASC LIMIT 3`).
		WillReturnRows(rows)

	got, err := store.Query(context.Background(), "vid", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "p0", got[0].Passage.ID)
	assert.Equal(t, "p1", got[1].Passage.ID)
	assert.Equal(t, "p2", got[2].Passage.ID)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPassageStore_QueryNonPositiveTopK(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPassageStore(db, 2)

	got, err := store.Query(context.Background(), "vid", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetAnswer(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	created := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM "answers" AS "a" WHERE \(question_id = 'q1'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question_id", "answer_text", "sources", "model_used", "requested_model", "created_at"}).
			AddRow("a1", "q1", "It is fine.", []byte(`[{"start_time":142,"text":"hello","similarity":0.8}]`), "gpt-4o-mini", "gpt-5-mini", created))

	got, err := store.GetAnswer(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "It is fine.", got.Text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, "gpt-5-mini", got.RequestedModel)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, 142.0, got.Sources[0].StartSeconds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetAnswerNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectQuery(`SELECT .* FROM "answers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question_id"}))

	_, err := store.GetAnswer(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateQuestionAndSaveAnswer(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	store.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	mock.ExpectExec(`INSERT INTO "questions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "answers"`).WillReturnResult(sqlmock.NewResult(0, 1))

	q := &models.Question{ID: "q1", VideoID: "vid", AskerID: "u1", Text: "why?"}
	require.NoError(t, store.CreateQuestion(context.Background(), q))
	assert.Equal(t, store.now(), q.CreatedAt)

	err := store.SaveAnswer(context.Background(), &models.AnswerRecord{ID: "a1", QuestionID: "q1", Text: "because"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListQuestionsAttachesAnswers(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM "questions" AS "q" WHERE \(video_id = 'vid'\) ORDER BY "created_at" DESC, "id" DESC LIMIT 10`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "video_id", "asker_id", "question_text", "created_at"}).
			AddRow("q2", "vid", "u2", "second?", now).
			AddRow("q1", "vid", "u1", "first?", now.Add(-time.Minute)))
	mock.ExpectQuery(`SELECT .* FROM "answers" AS "a" WHERE \(question_id IN \('q2', 'q1'\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "question_id", "answer_text", "sources", "model_used", "created_at"}).
			AddRow("a1", "q1", "answer one", []byte(`[]`), "gpt-4o-mini", now))

	got, err := store.ListQuestions(context.Background(), "vid", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "q2", got[0].Question.ID)
	assert.Nil(t, got[0].Answer)
	require.NotNil(t, got[1].Answer)
	assert.Equal(t, "answer one", got[1].Answer.Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveEpisodeUpserts(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectExec(`INSERT INTO "episodes" .* ON CONFLICT \(video_id\) DO UPDATE SET title = EXCLUDED.title`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ep := &models.Episode{VideoID: "vid", Title: "Episode 1", State: models.StateRegistered}
	require.NoError(t, store.SaveEpisode(context.Background(), ep))
	assert.False(t, ep.CreatedAt.IsZero())
	assert.Equal(t, ep.CreatedAt, ep.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetEpisode(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM "episodes" AS "e" WHERE \(video_id = 'vid'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"video_id", "title", "state", "failure_reason", "chunk_count", "created_at", "updated_at"}).
			AddRow("vid", "Episode 1", "failed", "no transcript available", 0, now, now))
	mock.ExpectQuery(`SELECT .* FROM "episodes"`).
		WillReturnRows(sqlmock.NewRows([]string{"video_id"}))

	ep, err := store.GetEpisode(context.Background(), "vid")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, ep.State)
	assert.Equal(t, "no transcript available", ep.FailureReason)

	_, err = store.GetEpisode(context.Background(), "other")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitDB(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, table := range []string{"episodes", "video_captions", "questions", "answers"} {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "` + table + `"`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "video_captions_video_id_idx"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, InitDB(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
