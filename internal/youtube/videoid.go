package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"video-rag/internal/models"
)

var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// path prefixes that carry the id as the next path element
var idPathPrefixes = []string{"embed", "shorts", "live", "v", "e"}

// ParseVideoID extracts the video id from a bare id or a watch, short-link or
// embed URL. Anything ambiguous or malformed is rejected.
func ParseVideoID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", invalid(input, "empty input")
	}
	if videoIDRe.MatchString(s) {
		return s, nil
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", invalid(input, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalid(input, "unsupported scheme")
	}

	host := strings.ToLower(u.Hostname())
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	var id string
	switch {
	case host == "youtu.be":
		if len(parts) != 1 {
			return "", invalid(input, "short link must have exactly one path element")
		}
		id = parts[0]
	case youtubeHosts[host]:
		id, err = idFromYouTubePath(parts, u.Query())
		if err != nil {
			return "", invalid(input, err.Error())
		}
	default:
		return "", invalid(input, "not a youtube url")
	}

	if !videoIDRe.MatchString(id) {
		return "", invalid(input, fmt.Sprintf("malformed id %q", id))
	}
	return id, nil
}

func idFromYouTubePath(parts []string, query url.Values) (string, error) {
	if len(parts) == 1 && parts[0] == "watch" {
		values := query["v"]
		if len(values) == 0 {
			return "", fmt.Errorf("watch url without v parameter")
		}
		for _, v := range values[1:] {
			if v != values[0] {
				return "", fmt.Errorf("conflicting v parameters")
			}
		}
		return values[0], nil
	}
	if len(parts) == 2 {
		for _, p := range idPathPrefixes {
			if parts[0] == p {
				return parts[1], nil
			}
		}
	}
	return "", fmt.Errorf("unrecognised path /%s", strings.Join(parts, "/"))
}

func invalid(input, reason string) error {
	return fmt.Errorf("%w %q: %s", models.ErrInvalidVideoIdentifier, input, reason)
}
