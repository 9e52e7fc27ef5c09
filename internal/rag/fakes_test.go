package rag

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tmc/langchaingo/llms"

	"video-rag/internal/models"
)

// scriptedModel streams chunks through the streaming callback.
type scriptedModel struct {
	chunks   []string
	err      error
	noStream bool
	block    bool

	calls       atomic.Int32
	mu          sync.Mutex
	lastModel   string
	lastTemp    float64
	lastMessage string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls.Add(1)
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.mu.Lock()
	m.lastModel, m.lastTemp = opts.Model, opts.Temperature
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if tc, ok := messages[0].Parts[0].(llms.TextContent); ok {
			m.lastMessage = tc.Text
		}
	}
	m.mu.Unlock()

	full := ""
	for _, c := range m.chunks {
		if opts.StreamingFunc != nil && !m.noStream {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
		full += c
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) prompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessage
}

// memStore keeps questions and answers in memory.
type memStore struct {
	mu        sync.Mutex
	questions []models.Question
	answers   map[string]*models.AnswerRecord
	saveErr   error
	saves     int
}

func newMemStore() *memStore {
	return &memStore{answers: map[string]*models.AnswerRecord{}}
}

func (s *memStore) CreateQuestion(ctx context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, *q)
	return nil
}

func (s *memStore) SaveAnswer(ctx context.Context, a *models.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.answers[a.QuestionID] = a
	return nil
}

func (s *memStore) GetAnswer(ctx context.Context, questionID string) (*models.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func (s *memStore) ListQuestions(ctx context.Context, videoID string, limit int) ([]models.QuestionWithAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QuestionWithAnswer
	for i := len(s.questions) - 1; i >= 0 && len(out) < limit; i-- {
		q := s.questions[i]
		if q.VideoID == videoID {
			out = append(out, models.QuestionWithAnswer{Question: q, Answer: s.answers[q.ID]})
		}
	}
	return out, nil
}

// keywordEmbedder maps text onto three axes by keyword so similarity is
// predictable.
type keywordEmbedder struct{}

func (keywordEmbedder) vector(text string) []float32 {
	t := strings.ToLower(text)
	v := []float32{0.1, 0.1, 0.1}
	if strings.Contains(t, "hello") {
		v[0] = 1
	}
	if strings.Contains(t, "test") {
		v[1] = 1
	}
	if strings.Contains(t, "cooking") {
		v[2] = 1
	}
	return v
}

func (e keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}
