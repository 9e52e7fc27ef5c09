package rag

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-rag/internal/chromemdb"
	"video-rag/internal/config"
	"video-rag/internal/embedding"
	"video-rag/internal/ingest"
	"video-rag/internal/llmservice"
	"video-rag/internal/models"
	"video-rag/internal/session"
)

const testVideo = "dQw4w9WgXcQ"

type staticFetcher []models.TranscriptSegment

func (f staticFetcher) Fetch(ctx context.Context, id string) ([]models.TranscriptSegment, error) {
	return f, nil
}

type fixture struct {
	rag   *RAG
	llm   *scriptedModel
	store *memStore
	index *chromemdb.VectorDBManager
}

func newFixture(t *testing.T, segments []models.TranscriptSegment, maxTokens int) *fixture {
	t.Helper()
	index, err := chromemdb.NewVectorDBManager("", true, false, 3)
	require.NoError(t, err)

	embedder := embedding.New(keywordEmbedder{}, 3, "keyword")
	store := newMemStore()
	llm := &scriptedModel{chunks: []string{"The speaker greets you ", "[1] (0:00)."}}

	pipeline := ingest.NewPipeline(staticFetcher(segments), embedder, index, maxTokens)
	r := NewRAG(&config.RAGConfig{TopK: 5, PreviewChars: 20},
		NewRetriever(embedder, index),
		NewGenerator(llm, llmservice.NewRegistry("", nil), store, time.Second),
		store,
	).WithPipeline(pipeline)
	return &fixture{rag: r, llm: llm, store: store, index: index}
}

func threeSegments() []models.TranscriptSegment {
	return []models.TranscriptSegment{
		{StartSeconds: 0, DurationSeconds: 2, Text: "Hello world."},
		{StartSeconds: 2, DurationSeconds: 2, Text: "This is a test."},
		{StartSeconds: 4, DurationSeconds: 2, Text: "How are you?"},
	}
}

func TestRAG_EndToEnd(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)
	ctx := context.Background()

	res, err := f.rag.RegisterVideo(ctx, ingest.RegisterRequest{VideoRef: "https://www.youtube.com/watch?v=" + testVideo, Title: "Ep"})
	require.NoError(t, err)
	assert.Equal(t, models.StateVectorized, res.State)
	assert.Equal(t, 1, f.index.Count(testVideo))

	ans, err := f.rag.Ask(ctx, AskRequest{VideoID: testVideo, Question: "What did they say?", AskerID: "u1"})
	require.NoError(t, err)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "0:00", ans.Sources[0].Timestamp)
	assert.Equal(t, "Hello world. This is…", ans.Sources[0].Text)

	text, err := ans.Stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "The speaker greets you [1] (0:00).", text)
	assert.Contains(t, f.llm.prompt(), "Context:\n[1] (0:00) Hello world. This is a test. How are you?\n\n")
	assert.True(t, strings.HasSuffix(f.llm.prompt(), "Question: What did they say?\n\nAnswer:"))

	saved, err := f.rag.GetAnswer(ctx, ans.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, text, saved.Text)
	require.Len(t, saved.Sources, 1)
	assert.Equal(t, "Hello world. This is a test. How are you?", saved.Sources[0].Text)

	feed, err := f.rag.ListQuestions(ctx, testVideo, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "What did they say?", feed[0].Question.Text)
	require.NotNil(t, feed[0].Answer)
}

func TestRAG_RanksRelevantPassageFirst(t *testing.T) {
	segments := []models.TranscriptSegment{
		{StartSeconds: 0, DurationSeconds: 5, Text: "Welcome to the cooking show."},
		{StartSeconds: 60, DurationSeconds: 5, Text: "Now we run a test."},
		{StartSeconds: 120, DurationSeconds: 5, Text: "Hello and goodbye."},
	}
	f := newFixture(t, segments, 5)
	ctx := context.Background()
	_, err := f.rag.RegisterVideo(ctx, ingest.RegisterRequest{VideoRef: testVideo})
	require.NoError(t, err)

	ans, err := f.rag.Ask(ctx, AskRequest{VideoID: testVideo, Question: "how was the test run?"})
	require.NoError(t, err)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, "1:00", ans.Sources[0].Timestamp)
	_, _ = ans.Stream.Collect()
}

func TestRAG_QuestionSavedBeforeStreaming(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)
	ctx := context.Background()
	_, err := f.rag.RegisterVideo(ctx, ingest.RegisterRequest{VideoRef: testVideo})
	require.NoError(t, err)

	ans, err := f.rag.Ask(ctx, AskRequest{VideoID: testVideo, Question: "hello?"})
	require.NoError(t, err)
	require.Len(t, f.store.questions, 1)
	assert.Equal(t, ans.QuestionID, f.store.questions[0].ID)
	assert.Zero(t, f.store.saves)
	assert.Zero(t, f.llm.calls.Load())

	for range ans.Stream.Fragments() {
		break
	}
	assert.ErrorIs(t, ans.Stream.Err(), models.ErrClientDisconnected)
	_, err = f.rag.GetAnswer(ctx, ans.QuestionID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRAG_AskValidation(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)

	_, err := f.rag.Ask(context.Background(), AskRequest{VideoID: testVideo, Question: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	_, err = f.rag.Ask(context.Background(), AskRequest{Question: "why?"})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.Empty(t, f.store.questions)
}

func TestRAG_DuplicateTriggersGenerateOnce(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)
	guard := session.NewRegistry()
	f.rag.WithGuard(guard)
	ctx := context.Background()
	_, err := f.rag.RegisterVideo(ctx, ingest.RegisterRequest{VideoRef: testVideo})
	require.NoError(t, err)

	req := AskRequest{VideoID: testVideo, Question: "hello?", SessionID: "s1", QuestionKey: "hello?"}
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		duplicates int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans, err := f.rag.Ask(ctx, req)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				assert.ErrorIs(t, err, models.ErrDuplicateGeneration)
				duplicates++
				return
			}
			_, err = ans.Stream.Collect()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, duplicates)
	assert.Equal(t, int32(1), f.llm.calls.Load())
	assert.Equal(t, session.Completed, guard.Session("s1").State())

	_, err = f.rag.Ask(ctx, req)
	assert.ErrorIs(t, err, models.ErrDuplicateGeneration)
}

func TestRAG_FailedGenerationReleasesGuard(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)
	guard := session.NewRegistry()
	f.rag.WithGuard(guard)
	ctx := context.Background()
	_, err := f.rag.RegisterVideo(ctx, ingest.RegisterRequest{VideoRef: testVideo})
	require.NoError(t, err)

	req := AskRequest{VideoID: testVideo, Question: "hello?", SessionID: "s1", QuestionKey: "k"}
	ans, err := f.rag.Ask(ctx, req)
	require.NoError(t, err)
	for range ans.Stream.Fragments() {
		break
	}
	assert.Equal(t, session.Failed, guard.Session("s1").State())

	ans, err = f.rag.Ask(ctx, req)
	require.NoError(t, err)
	_, err = ans.Stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, session.Completed, guard.Session("s1").State())
}

func TestRAG_RegisterWithoutPipeline(t *testing.T) {
	r := NewRAG(nil, nil, nil, nil)
	_, err := r.RegisterVideo(context.Background(), ingest.RegisterRequest{VideoRef: testVideo})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = r.GetAnswer(context.Background(), "q")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRAG_DisconnectBeforeReadingReleasesGuard(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)
	guard := session.NewRegistry()
	f.rag.WithGuard(guard)
	_, err := f.rag.RegisterVideo(context.Background(), ingest.RegisterRequest{VideoRef: testVideo})
	require.NoError(t, err)

	req := AskRequest{VideoID: testVideo, Question: "hello?", SessionID: "s1", QuestionKey: "k"}
	cctx, cancel := context.WithCancel(context.Background())
	abandoned, err := f.rag.Ask(cctx, req)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		return guard.Session("s1").State() == session.Failed
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, abandoned.Stream.Err(), models.ErrClientDisconnected)
	for range abandoned.Stream.Fragments() {
		t.Fatal("abandoned stream must not yield")
	}

	ans, err := f.rag.Ask(context.Background(), req)
	require.NoError(t, err)
	_, err = ans.Stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.llm.calls.Load())
	assert.Equal(t, session.Completed, guard.Session("s1").State())
}

func TestRAG_CancelAfterStreamStartedDoesNotAbandon(t *testing.T) {
	f := newFixture(t, threeSegments(), 300)
	guard := session.NewRegistry()
	f.rag.WithGuard(guard)
	_, err := f.rag.RegisterVideo(context.Background(), ingest.RegisterRequest{VideoRef: testVideo})
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(context.Background())
	ans, err := f.rag.Ask(cctx, AskRequest{VideoID: testVideo, Question: "hello?", SessionID: "s1", QuestionKey: "k"})
	require.NoError(t, err)
	_, err = ans.Stream.Collect()
	require.NoError(t, err)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, ans.Stream.Err())
	assert.Equal(t, session.Completed, guard.Session("s1").State())
}
