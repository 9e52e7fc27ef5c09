package transcript

import (
	"context"
	"fmt"

	"video-rag/internal/config"
	"video-rag/internal/models"
	"video-rag/internal/youtube"
)

// Platform is the subset of the platform client the strategies use.
type Platform interface {
	WatchCaptionTracks(ctx context.Context, videoID, lang string) ([]youtube.CaptionTrack, error)
	PlayerCaptionTracks(ctx context.Context, videoID, lang string) ([]youtube.CaptionTrack, error)
	DownloadTrack(ctx context.Context, track youtube.CaptionTrack) ([]models.TranscriptSegment, error)
	LibraryTranscript(ctx context.Context, videoID, lang string) ([]models.TranscriptSegment, error)
}

// WatchPageStrategy reads caption tracks from the watch page for one language.
type WatchPageStrategy struct {
	Platform Platform
	Language string
}

func (s *WatchPageStrategy) Name() string { return "watch-page/" + s.Language }

func (s *WatchPageStrategy) Attempt(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	tracks, err := s.Platform.WatchCaptionTracks(ctx, videoID, s.Language)
	if err != nil {
		return nil, err
	}
	track, ok := youtube.SelectTrack(tracks, s.Language)
	if !ok {
		return nil, fmt.Errorf("no %s caption track among %d tracks", s.Language, len(tracks))
	}
	return s.Platform.DownloadTrack(ctx, track)
}

// LibraryStrategy uses the kkdai/youtube transcript client.
type LibraryStrategy struct {
	Platform Platform
	Language string
}

func (s *LibraryStrategy) Name() string { return "library/" + s.Language }

func (s *LibraryStrategy) Attempt(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	return s.Platform.LibraryTranscript(ctx, videoID, s.Language)
}

// PlayerStrategy emulates the Android app against the Innertube player
// endpoint and takes the best track among Languages, else the first listed.
type PlayerStrategy struct {
	Platform  Platform
	Languages []string
}

func (s *PlayerStrategy) Name() string { return "player/android" }

func (s *PlayerStrategy) Attempt(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	hl := ""
	if len(s.Languages) > 0 {
		hl = s.Languages[0]
	}
	tracks, err := s.Platform.PlayerCaptionTracks(ctx, videoID, hl)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("player listed no caption tracks")
	}
	track := tracks[0]
	for _, lang := range s.Languages {
		if t, ok := youtube.SelectTrack(tracks, lang); ok {
			track = t
			break
		}
	}
	return s.Platform.DownloadTrack(ctx, track)
}

// DefaultStrategies is the production chain: native-language captions, the
// library client as a cross-check, the fallback language, then the emulated
// Android client.
func DefaultStrategies(p Platform, cfg config.TranscriptConfig) []Strategy {
	return []Strategy{
		&WatchPageStrategy{Platform: p, Language: cfg.PrimaryLanguage},
		&LibraryStrategy{Platform: p, Language: cfg.PrimaryLanguage},
		&WatchPageStrategy{Platform: p, Language: cfg.FallbackLanguage},
		&PlayerStrategy{Platform: p, Languages: []string{cfg.PrimaryLanguage, cfg.FallbackLanguage}},
	}
}
