package models

import "time"

// TranscriptSegment is one time-coded caption cue.
type TranscriptSegment struct {
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Text            string  `json:"text"`
}

// Chunk represents a group of contiguous segments used for retrieval
type Chunk struct {
	Index           int
	StartSeconds    float64
	DurationSeconds float64
	Text            string
}

// IndexedPassage is a chunk plus its embedding, stored per video.
type IndexedPassage struct {
	ID              string    `json:"id"`
	VideoID         string    `json:"video_id"`
	ChunkIndex      int       `json:"chunk_index"`
	StartSeconds    float64   `json:"start_seconds"`
	DurationSeconds float64   `json:"duration_seconds"`
	Text            string    `json:"text"`
	Embedding       []float32 `json:"-"`
}

type RetrievalResult struct {
	Passage    IndexedPassage `json:"passage"`
	Similarity float64        `json:"similarity"`
}

// Source is the provenance entry saved with an answer.
type Source struct {
	PassageID    string  `json:"passage_id,omitempty"`
	StartSeconds float64 `json:"start_time"`
	Text         string  `json:"text"`
	Similarity   float64 `json:"similarity"`
}

type AnswerRecord struct {
	ID             string    `json:"id"`
	QuestionID     string    `json:"question_id"`
	Text           string    `json:"text"`
	Sources        []Source  `json:"sources"`
	Model          string    `json:"model"`
	RequestedModel string    `json:"requested_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Question struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	AskerID   string    `json:"asker_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionWithAnswer is one row of the "other questions" feed. Answer is nil
// when generation never completed.
type QuestionWithAnswer struct {
	Question Question      `json:"question"`
	Answer   *AnswerRecord `json:"answer,omitempty"`
}

// AskerProfile adapts examples in the answer to the asker's background.
type AskerProfile struct {
	OrganizationType string `json:"organization_type,omitempty"`
	JobRole          string `json:"job_role,omitempty"`
}

func (p *AskerProfile) IsEmpty() bool {
	return p == nil || (p.OrganizationType == "" && p.JobRole == "")
}

// IngestState is the state of a video in the ingestion pipeline
type IngestState string

const (
	StateRegistered        IngestState = "registered"
	StateTranscriptFetched IngestState = "transcript_fetched"
	StateVectorized        IngestState = "vectorized"
	StateFailed            IngestState = "failed"
)

type Episode struct {
	VideoID       string      `json:"video_id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	NewsletterID  string      `json:"newsletter_id,omitempty"`
	Date          string      `json:"date,omitempty"`
	State         IngestState `json:"state"`
	FailureReason string      `json:"failure_reason,omitempty"`
	SegmentCount  int         `json:"segment_count"`
	ChunkCount    int         `json:"chunk_count"`
	VectorCount   int         `json:"vector_count"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
