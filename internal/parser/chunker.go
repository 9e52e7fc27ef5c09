package parser

import (
	"strings"

	"video-rag/internal/models"
)

// EstimateTokens approximates the token cost of text as its word count.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// ChunkTranscript greedily groups consecutive segments into chunks of at most
// maxTokens estimated tokens. A segment that alone exceeds the bound becomes
// its own chunk. Chunk text is the segment texts joined by single spaces.
func ChunkTranscript(segments []models.TranscriptSegment, maxTokens int) []models.Chunk {
	if maxTokens <= 0 {
		maxTokens = models.DefaultMaxChunkTokens
	}

	var (
		chunks []models.Chunk
		buf    []models.TranscriptSegment
		tokens int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, buildChunk(len(chunks), buf))
		buf = nil
		tokens = 0
	}

	for _, seg := range segments {
		cost := EstimateTokens(seg.Text)
		if tokens+cost > maxTokens && len(buf) > 0 {
			flush()
		}
		buf = append(buf, seg)
		tokens += cost
	}
	flush()

	return chunks
}

func buildChunk(index int, segs []models.TranscriptSegment) models.Chunk {
	texts := make([]string, len(segs))
	for i, s := range segs {
		texts[i] = s.Text
	}
	first, last := segs[0], segs[len(segs)-1]
	duration := last.StartSeconds + last.DurationSeconds - first.StartSeconds
	if duration < 0 {
		duration = 0
	}
	return models.Chunk{
		Index:           index,
		StartSeconds:    first.StartSeconds,
		DurationSeconds: duration,
		Text:            strings.Join(texts, " "),
	}
}
