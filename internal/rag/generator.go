package rag

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"video-rag/internal/helper"
	"video-rag/internal/llmservice"
	"video-rag/internal/models"
)

type AnswerStore interface {
	SaveAnswer(ctx context.Context, a *models.AnswerRecord) error
}

type GenerateRequest struct {
	QuestionID string
	Question   string
	Passages   []models.RetrievalResult
	Profile    *models.AskerProfile
	// Model is the name picked by the asker; resolved through the registry.
	Model string
}

type Generator struct {
	llm         llms.Model
	registry    *llmservice.Registry
	store       AnswerStore
	timeout     time.Duration
	temperature float64
	now         func() time.Time
}

// NewGenerator streams answers from llm. store may be nil, in which case
// answers are not saved.
func NewGenerator(llm llms.Model, registry *llmservice.Registry, store AnswerStore, timeout time.Duration) *Generator {
	if registry == nil {
		registry = llmservice.NewRegistry("", nil)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		llm:         llm,
		registry:    registry,
		store:       store,
		timeout:     timeout,
		temperature: models.DefaultTemperature,
		now:         time.Now,
	}
}

// Generate prepares a stream. Nothing is sent to the model until the
// fragments are iterated.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) *Stream {
	s := &Stream{g: g, ctx: ctx, req: req}
	if strings.TrimSpace(req.Question) == "" {
		s.used.Store(true)
		s.err = fmt.Errorf("%w: empty question", models.ErrInvalidRequest)
		return s
	}
	s.model, _ = g.registry.Resolve(req.Model)
	s.prompt = BuildPrompt(req.Question, req.Passages, req.Profile)
	return s
}

// Stream is a single-use answer stream. Err, Warning, Record and Text are
// valid once the Fragments loop has returned.
type Stream struct {
	g      *Generator
	ctx    context.Context
	req    GenerateRequest
	model  string
	prompt string
	used   atomic.Bool

	text    strings.Builder
	mu      sync.Mutex
	err     error
	warning error
	record  *models.AnswerRecord

	onFinish func(err error)
	// stopWatch detaches the abandonment hook once iteration starts
	stopWatch func() bool
}

func (s *Stream) Prompt() string { return s.prompt }

func (s *Stream) Model() string { return s.model }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Warning is a non-fatal problem, such as an answer that streamed fine but
// could not be saved.
func (s *Stream) Warning() error { return s.warning }

func (s *Stream) Record() *models.AnswerRecord { return s.record }

func (s *Stream) Text() string { return s.text.String() }

// Fragments yields answer text as the model produces it. Breaking out of the
// loop cancels the model call. A second iteration yields nothing.
func (s *Stream) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.used.CompareAndSwap(false, true) {
			return
		}
		if s.stopWatch != nil {
			s.stopWatch()
		}
		err := s.run(yield)
		s.setErr(err)
		if err == nil {
			s.persist()
		}
		if s.onFinish != nil {
			s.onFinish(err)
		}
	}
}

// abandon ends a stream that was never iterated. It reports false when
// iteration already started.
func (s *Stream) abandon(cause error) bool {
	if !s.used.CompareAndSwap(false, true) {
		return false
	}
	err := s.fail(cause)
	s.setErr(err)
	if s.onFinish != nil {
		s.onFinish(err)
	}
	return true
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Collect drains the stream and returns the full answer.
func (s *Stream) Collect() (string, error) {
	for range s.Fragments() {
	}
	return s.Text(), s.Err()
}

type outcome struct {
	content string
	err     error
}

func (s *Stream) run(yield func(string) bool) error {
	ctx, cancelTimeout := context.WithTimeoutCause(s.ctx, s.g.timeout, models.ErrGenerationTimeout)
	defer cancelTimeout()
	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	frags := make(chan string)
	done := make(chan outcome, 1)
	go func() {
		content, err := llmservice.StreamContent(ctx, s.g.llm, s.prompt, func(ctx context.Context, chunk []byte) error {
			select {
			case frags <- string(chunk):
				return nil
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}, llms.WithModel(s.model), llms.WithTemperature(s.g.temperature))
		close(frags)
		done <- outcome{content: content, err: err}
	}()

	stopped := false
	for frag := range frags {
		if stopped || frag == "" {
			continue
		}
		s.text.WriteString(frag)
		if !yield(frag) {
			stopped = true
			stop(models.ErrClientDisconnected)
		}
	}
	out := <-done

	switch {
	case stopped:
		return s.fail(models.ErrClientDisconnected)
	case out.err == nil:
		if s.text.Len() == 0 && out.content != "" {
			// provider did not stream
			s.text.WriteString(out.content)
			if !yield(out.content) {
				return s.fail(models.ErrClientDisconnected)
			}
		}
		return nil
	case errors.Is(context.Cause(ctx), models.ErrGenerationTimeout):
		return s.fail(models.ErrGenerationTimeout)
	case s.ctx.Err() != nil:
		return s.fail(models.ErrClientDisconnected)
	default:
		return s.fail(fmt.Errorf("%w: %v", models.ErrGeneration, out.err))
	}
}

func (s *Stream) fail(err error) error {
	log.Warn().Err(err).Str("question_id", s.req.QuestionID).Int("partial_chars", s.text.Len()).Msg("Answer stream did not complete")
	return &models.GenerationError{QuestionID: s.req.QuestionID, Err: err}
}

func (s *Stream) persist() {
	id, err := helper.GenerateUUID()
	if err != nil {
		s.warning = &models.PersistenceError{QuestionID: s.req.QuestionID, Err: err}
		return
	}
	requested := s.req.Model
	if requested == "" {
		requested = s.model
	}
	s.record = &models.AnswerRecord{
		ID:             id,
		QuestionID:     s.req.QuestionID,
		Text:           s.text.String(),
		Sources:        models.Sources(s.req.Passages),
		Model:          s.model,
		RequestedModel: requested,
		CreatedAt:      s.g.now().UTC(),
	}
	if s.g.store == nil {
		return
	}
	if err := s.g.store.SaveAnswer(context.WithoutCancel(s.ctx), s.record); err != nil {
		log.Error().Err(err).Str("question_id", s.req.QuestionID).Msg("Failed to save answer")
		s.warning = &models.PersistenceError{QuestionID: s.req.QuestionID, Err: err}
		return
	}
	log.Info().Str("question_id", s.req.QuestionID).Str("model", s.model).Int("sources", len(s.record.Sources)).Msg("Answer saved")
}
