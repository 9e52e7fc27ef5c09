package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"video-rag/internal/models"
	"video-rag/internal/parser"
	"video-rag/internal/youtube"
)

const (
	StageParse      = "parse"
	StageRegister   = "register"
	StageTranscript = "transcript"
	StageChunk      = "chunk"
	StageEmbed      = "embed"
	StageIndex      = "index"

	defaultRunTimeout = 10 * time.Minute
)

type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error)
}

type BatchEmbedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

type PassageIndex interface {
	UpsertAll(ctx context.Context, videoID string, passages []models.IndexedPassage) error
}

type EpisodeStore interface {
	SaveEpisode(ctx context.Context, e *models.Episode) error
}

type MetadataSource interface {
	VideoMetadata(ctx context.Context, videoID string) (youtube.Metadata, error)
}

type RegisterRequest struct {
	VideoRef     string
	Title        string
	Description  string
	NewsletterID string
	Date         string
}

type Result struct {
	VideoID      string             `json:"video_id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	State        models.IngestState `json:"state"`
	Reason       string             `json:"reason,omitempty"`
	SegmentCount int                `json:"segment_count"`
	ChunkCount   int                `json:"chunk_count"`
	VectorCount  int                `json:"vector_count"`
}

// Pipeline turns a registered video into indexed passages.
type Pipeline struct {
	fetcher   TranscriptFetcher
	embedder  BatchEmbedder
	index     PassageIndex
	episodes  EpisodeStore
	metadata  MetadataSource
	maxTokens int
	timeout   time.Duration
	group     singleflight.Group
}

func NewPipeline(fetcher TranscriptFetcher, embedder BatchEmbedder, index PassageIndex, maxTokens int) *Pipeline {
	if maxTokens <= 0 {
		maxTokens = models.DefaultMaxChunkTokens
	}
	return &Pipeline{fetcher: fetcher, embedder: embedder, index: index, maxTokens: maxTokens, timeout: defaultRunTimeout}
}

// WithTimeout bounds one ingestion run.
func (p *Pipeline) WithTimeout(d time.Duration) *Pipeline {
	if d > 0 {
		p.timeout = d
	}
	return p
}

// WithEpisodes records every state transition in store.
func (p *Pipeline) WithEpisodes(store EpisodeStore) *Pipeline {
	p.episodes = store
	return p
}

// WithMetadata fills missing titles and descriptions from the platform.
func (p *Pipeline) WithMetadata(src MetadataSource) *Pipeline {
	p.metadata = src
	return p
}

// Register ingests one video. Concurrent calls for the same video share a
// single run, detached from every caller's cancellation and bounded by the
// pipeline timeout. A caller whose ctx ends gets a nil Result while the run
// carries on for the others. On failure the returned Result carries the
// Failed state and the error is a *models.StageError.
func (p *Pipeline) Register(ctx context.Context, req RegisterRequest) (*Result, error) {
	videoID, err := youtube.ParseVideoID(req.VideoRef)
	if err != nil {
		return nil, &models.StageError{Stage: StageParse, Err: err}
	}

	// the run is shared, so it must not die with whichever caller started it
	ch := p.group.DoChan(videoID, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.run(runCtx, videoID, req)
	})
	select {
	case r := <-ch:
		if r.Shared {
			log.Debug().Str("video_id", videoID).Msg("Joined in-flight registration")
		}
		res := *r.Val.(*Result)
		return &res, r.Err
	case <-ctx.Done():
		log.Info().Str("video_id", videoID).Msg("Caller left; registration continues")
		return nil, &models.StageError{Stage: StageRegister, Err: ctx.Err()}
	}
}

func (p *Pipeline) run(ctx context.Context, videoID string, req RegisterRequest) (*Result, error) {
	ep := &models.Episode{
		VideoID:      videoID,
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		NewsletterID: req.NewsletterID,
		Date:         req.Date,
		State:        models.StateRegistered,
	}
	p.fillMetadata(ctx, ep)
	if err := p.save(ctx, ep); err != nil {
		return p.fail(ctx, ep, StageRegister, err)
	}
	log.Info().Str("video_id", videoID).Str("title", ep.Title).Msg("Video registered")

	segments, err := p.fetcher.Fetch(ctx, videoID)
	if err != nil {
		return p.fail(ctx, ep, StageTranscript, err)
	}
	ep.State = models.StateTranscriptFetched
	ep.SegmentCount = len(segments)
	if err := p.save(ctx, ep); err != nil {
		return p.fail(ctx, ep, StageTranscript, err)
	}

	chunks := parser.ChunkTranscript(segments, p.maxTokens)
	if len(chunks) == 0 {
		return p.fail(ctx, ep, StageChunk, fmt.Errorf("%w: transcript has no text", models.ErrNoTranscriptAvailable))
	}
	ep.ChunkCount = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return p.fail(ctx, ep, StageEmbed, err)
	}
	if len(vectors) != len(chunks) {
		return p.fail(ctx, ep, StageEmbed, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbeddingService, len(vectors), len(chunks)))
	}

	passages := make([]models.IndexedPassage, len(chunks))
	for i, c := range chunks {
		passages[i] = models.IndexedPassage{
			ID:              PassageID(videoID, c.Index),
			VideoID:         videoID,
			ChunkIndex:      c.Index,
			StartSeconds:    c.StartSeconds,
			DurationSeconds: c.DurationSeconds,
			Text:            c.Text,
			Embedding:       vectors[i],
		}
	}
	if err := p.index.UpsertAll(ctx, videoID, passages); err != nil {
		return p.fail(ctx, ep, StageIndex, err)
	}

	ep.State = models.StateVectorized
	ep.VectorCount = len(passages)
	if err := p.save(ctx, ep); err != nil {
		// passages are already live; only the bookkeeping is behind
		log.Error().Err(err).Str("video_id", videoID).Msg("Failed to record vectorized state")
	}
	log.Info().
		Str("video_id", videoID).
		Int("segments", ep.SegmentCount).
		Int("chunks", ep.ChunkCount).
		Int("vectors", ep.VectorCount).
		Msg("Video vectorized")
	return resultOf(ep), nil
}

// PassageID is stable across re-ingestion of the same video.
func PassageID(videoID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("youtube:%s/%d", videoID, chunkIndex))).String()
}

func (p *Pipeline) fillMetadata(ctx context.Context, ep *models.Episode) {
	if p.metadata == nil || (ep.Title != "" && ep.Description != "") {
		return
	}
	meta, err := p.metadata.VideoMetadata(ctx, ep.VideoID)
	if err != nil {
		log.Warn().Err(err).Str("video_id", ep.VideoID).Msg("Could not load video metadata")
		return
	}
	if ep.Title == "" {
		ep.Title = meta.Title
	}
	if ep.Description == "" {
		ep.Description = meta.Description
	}
}

func (p *Pipeline) save(ctx context.Context, ep *models.Episode) error {
	if p.episodes == nil {
		return nil
	}
	return p.episodes.SaveEpisode(ctx, ep)
}

func (p *Pipeline) fail(ctx context.Context, ep *models.Episode, stage string, err error) (*Result, error) {
	ep.State = models.StateFailed
	ep.FailureReason = reason(err)
	if saveErr := p.save(context.WithoutCancel(ctx), ep); saveErr != nil {
		log.Error().Err(saveErr).Str("video_id", ep.VideoID).Msg("Failed to record failed state")
	}
	log.Error().Err(err).Str("video_id", ep.VideoID).Str("stage", stage).Msg("Video ingestion failed")
	return resultOf(ep), &models.StageError{Stage: stage, Err: err}
}

func reason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, models.ErrNoTranscriptAvailable):
		return "no transcript available"
	case errors.Is(err, models.ErrDimensionMismatch):
		return "embedding dimension mismatch"
	case errors.Is(err, models.ErrEmbeddingService):
		return "embedding service error"
	}
	return err.Error()
}

func resultOf(ep *models.Episode) *Result {
	return &Result{
		VideoID:      ep.VideoID,
		Title:        ep.Title,
		Description:  ep.Description,
		State:        ep.State,
		Reason:       ep.FailureReason,
		SegmentCount: ep.SegmentCount,
		ChunkCount:   ep.ChunkCount,
		VectorCount:  ep.VectorCount,
	}
}
