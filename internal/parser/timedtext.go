package parser

import (
	"encoding/xml"
	"fmt"
	"html"
	"strconv"
	"strings"

	"video-rag/internal/models"
)

const minCueDuration = 0.001

// classic format: <transcript><text start="1.2" dur="3.4">...</text></transcript>
type classicTranscript struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",innerxml"`
	} `xml:"text"`
}

// format 3: <timedtext format="3"><body><p t="1200" d="3400">...</p></body></timedtext>
type srv3Transcript struct {
	Paragraphs []struct {
		T    string `xml:"t,attr"`
		D    string `xml:"d,attr"`
		Body string `xml:",innerxml"`
	} `xml:"body>p"`
}

// ParseTimedText parses a caption track in either timed-text XML format.
func ParseTimedText(data []byte) ([]models.TranscriptSegment, error) {
	var root struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse caption track: %w", err)
	}

	var segments []models.TranscriptSegment
	switch root.XMLName.Local {
	case "transcript":
		var t classicTranscript
		if err := xml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse caption track: %w", err)
		}
		for _, cue := range t.Texts {
			start, _ := strconv.ParseFloat(cue.Start, 64)
			dur, _ := strconv.ParseFloat(cue.Dur, 64)
			segments = appendCue(segments, start, dur, cue.Body)
		}
	case "timedtext":
		var t srv3Transcript
		if err := xml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse caption track: %w", err)
		}
		for _, p := range t.Paragraphs {
			startMs, _ := strconv.ParseFloat(p.T, 64)
			durMs, _ := strconv.ParseFloat(p.D, 64)
			segments = appendCue(segments, startMs/1000, durMs/1000, p.Body)
		}
	default:
		return nil, fmt.Errorf("unsupported caption track root element %q", root.XMLName.Local)
	}

	repairDurations(segments)
	return segments, nil
}

func appendCue(segments []models.TranscriptSegment, start, dur float64, body string) []models.TranscriptSegment {
	text := cleanCueText(body)
	if text == "" {
		return segments
	}
	if start < 0 {
		start = 0
	}
	return append(segments, models.TranscriptSegment{
		StartSeconds:    start,
		DurationSeconds: dur,
		Text:            text,
	})
}

// cue bodies arrive entity-escaped, sometimes twice, and may carry <s>/<font> tags
func cleanCueText(body string) string {
	text := stripTags(html.UnescapeString(body))
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

func stripTags(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// durations must be positive; borrow the gap to the next cue when missing
func repairDurations(segments []models.TranscriptSegment) {
	for i := range segments {
		if segments[i].DurationSeconds > 0 {
			continue
		}
		d := minCueDuration
		if i+1 < len(segments) {
			if gap := segments[i+1].StartSeconds - segments[i].StartSeconds; gap > d {
				d = gap
			}
		}
		segments[i].DurationSeconds = d
	}
}
