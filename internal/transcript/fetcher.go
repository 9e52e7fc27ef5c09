package transcript

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"video-rag/internal/models"
)

var errEmptyTranscript = errors.New("strategy returned no segments")

// Strategy is one independent way of obtaining a transcript.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, videoID string) ([]models.TranscriptSegment, error)
}

// Fetcher tries its strategies in order until one returns segments.
type Fetcher struct {
	strategies []Strategy
}

func NewFetcher(strategies ...Strategy) *Fetcher {
	return &Fetcher{strategies: strategies}
}

// Fetch returns the first non-empty transcript. Strategy errors and panics are
// absorbed; only when every strategy comes back empty does it fail, with a
// *models.TranscriptError matching models.ErrNoTranscriptAvailable. A cancelled
// ctx ends the chain with a *models.TranscriptError carrying ctx's error.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	var failures []models.StrategyFailure
	for _, s := range f.strategies {
		if err := ctx.Err(); err != nil {
			return nil, &models.TranscriptError{VideoID: videoID, Failures: failures, Cause: err}
		}

		start := time.Now()
		segments, err := attempt(ctx, s, videoID)
		if err == nil && len(segments) == 0 {
			err = errEmptyTranscript
		}
		if err != nil {
			log.Warn().Err(err).Str("video_id", videoID).Str("strategy", s.Name()).Dur("took", time.Since(start)).Msg("Transcript strategy unavailable")
			failures = append(failures, models.StrategyFailure{Strategy: s.Name(), Err: err})
			continue
		}

		log.Info().Str("video_id", videoID).Str("strategy", s.Name()).Int("segments", len(segments)).Dur("took", time.Since(start)).Msg("Fetched transcript")
		return segments, nil
	}
	// the last strategy may have failed only because ctx went away
	return nil, &models.TranscriptError{VideoID: videoID, Failures: failures, Cause: ctx.Err()}
}

func attempt(ctx context.Context, s Strategy, videoID string) (segments []models.TranscriptSegment, err error) {
	defer func() {
		if r := recover(); r != nil {
			segments = nil
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Attempt(ctx, videoID)
}
