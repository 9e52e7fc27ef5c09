package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"video-rag/internal/models"
	"video-rag/internal/parser"
)

const (
	playerResponseMarker = "ytInitialPlayerResponse"
	androidClientVersion = "19.09.37"
	androidUserAgent     = "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip"
)

// CaptionTrack is one caption track listed in a player response.
type CaptionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	// Kind is "asr" for automatically generated tracks.
	Kind string `json:"kind"`
}

func (t CaptionTrack) Generated() bool { return t.Kind == "asr" }

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions struct {
		Renderer struct {
			CaptionTracks []CaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	VideoDetails struct {
		Title            string `json:"title"`
		ShortDescription string `json:"shortDescription"`
	} `json:"videoDetails"`
}

func (p *playerResponse) tracks() ([]CaptionTrack, error) {
	if s := p.PlayabilityStatus.Status; s != "" && s != "OK" {
		return nil, fmt.Errorf("video not playable: %s %s", s, p.PlayabilityStatus.Reason)
	}
	tracks := p.Captions.Renderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, fmt.Errorf("no caption tracks listed")
	}
	return tracks, nil
}

// SelectTrack picks the caption track for lang, preferring manual captions
// over generated ones. Regional variants ("en-GB") match their base language.
func SelectTrack(tracks []CaptionTrack, lang string) (CaptionTrack, bool) {
	matches := func(t CaptionTrack) bool {
		code := strings.ToLower(t.LanguageCode)
		l := strings.ToLower(lang)
		return code == l || strings.HasPrefix(code, l+"-")
	}
	for _, generated := range []bool{false, true} {
		for _, t := range tracks {
			if t.Generated() == generated && matches(t) {
				return t, true
			}
		}
	}
	return CaptionTrack{}, false
}

// WatchCaptionTracks scrapes the watch page and returns the caption tracks
// embedded in its initial player response.
func (c *Client) WatchCaptionTracks(ctx context.Context, videoID, lang string) ([]CaptionTrack, error) {
	pr, err := c.watchPlayerResponse(ctx, videoID, lang)
	if err != nil {
		return nil, err
	}
	return pr.tracks()
}

func (c *Client) watchPlayerResponse(ctx context.Context, videoID, lang string) (*playerResponse, error) {
	pageURL, err := c.resolve("/watch?" + url.Values{"v": {videoID}, "hl": {lang}}.Encode())
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if lang != "" {
		header.Set("Accept-Language", lang)
	}
	page, err := c.get(ctx, pageURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse watch page: %w", err)
	}

	var (
		pr       *playerResponse
		parseErr error
	)
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		idx := strings.Index(text, playerResponseMarker)
		if idx < 0 {
			return true
		}
		brace := strings.IndexByte(text[idx:], '{')
		if brace < 0 {
			return true
		}
		var candidate playerResponse
		if err := json.NewDecoder(strings.NewReader(text[idx+brace:])).Decode(&candidate); err != nil {
			parseErr = err
			return true
		}
		pr = &candidate
		return false
	})
	if pr == nil {
		if parseErr != nil {
			return nil, fmt.Errorf("failed to decode player response: %w", parseErr)
		}
		return nil, fmt.Errorf("player response not found on watch page")
	}
	return pr, nil
}

// PlayerCaptionTracks asks the Innertube player endpoint for caption tracks,
// identifying as the Android app.
func (c *Client) PlayerCaptionTracks(ctx context.Context, videoID, lang string) ([]CaptionTrack, error) {
	endpoint, err := c.resolve("/youtubei/v1/player?prettyPrint=false")
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"context": map[string]interface{}{
			"client": map[string]interface{}{
				"clientName":        "ANDROID",
				"clientVersion":     androidClientVersion,
				"androidSdkVersion": 30,
				"hl":                lang,
			},
		},
		"videoId": videoID,
	})
	if err != nil {
		return nil, err
	}

	data, err := c.fetch(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", androidUserAgent)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call player endpoint: %w", err)
	}

	var pr playerResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode player response: %w", err)
	}
	return pr.tracks()
}

// DownloadTrack fetches and parses a caption track.
func (c *Client) DownloadTrack(ctx context.Context, track CaptionTrack) ([]models.TranscriptSegment, error) {
	if track.BaseURL == "" {
		return nil, fmt.Errorf("caption track %s has no url", track.LanguageCode)
	}
	trackURL, err := c.resolve(track.BaseURL)
	if err != nil {
		return nil, err
	}
	data, err := c.get(ctx, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download caption track %s: %w", track.LanguageCode, err)
	}
	return parser.ParseTimedText(data)
}
