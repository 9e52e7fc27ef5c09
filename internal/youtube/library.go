package youtube

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"video-rag/internal/models"
)

// LibraryTranscript fetches a transcript through the kkdai/youtube client.
func (c *Client) LibraryTranscript(ctx context.Context, videoID, lang string) ([]models.TranscriptSegment, error) {
	video, err := c.lib.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to load video %s: %w", videoID, err)
	}
	transcript, err := c.lib.GetTranscriptCtx(ctx, video, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s transcript: %w", lang, err)
	}

	segments := make([]models.TranscriptSegment, 0, len(transcript))
	for _, s := range transcript {
		if s.Text == "" {
			continue
		}
		segments = append(segments, models.TranscriptSegment{
			StartSeconds:    float64(s.StartMs) / 1000,
			DurationSeconds: float64(s.Duration) / 1000,
			Text:            s.Text,
		})
	}
	return segments, nil
}

// Metadata is the title and description of a video.
type Metadata struct {
	Title       string
	Description string
}

// VideoMetadata looks up title and description, trying the library client
// first and the watch page second.
func (c *Client) VideoMetadata(ctx context.Context, videoID string) (Metadata, error) {
	video, err := c.lib.GetVideoContext(ctx, videoID)
	if err == nil {
		return Metadata{Title: video.Title, Description: video.Description}, nil
	}
	log.Debug().Err(err).Str("video_id", videoID).Msg("Library metadata lookup failed, trying watch page")

	pr, werr := c.watchPlayerResponse(ctx, videoID, "")
	if werr != nil {
		return Metadata{}, fmt.Errorf("failed to load metadata for %s: %w", videoID, werr)
	}
	return Metadata{Title: pr.VideoDetails.Title, Description: pr.VideoDetails.ShortDescription}, nil
}
