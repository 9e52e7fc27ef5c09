package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"video-rag/internal/models"
)

const (
	collectionPrefix = "video-"
	metaVideoID      = "video_id"
	metaChunkIndex   = "chunk_index"
	metaStart        = "start_seconds"
	metaDuration     = "duration_seconds"
)

var errNoEmbeddingFunc = errors.New("documents must carry precomputed embeddings")

// embeddings are always computed upstream
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// VectorDBManager is a VectorIndex on chromem-go. Each video's passages live
// in one collection per ingestion generation; a new generation becomes live
// only once fully written.
type VectorDBManager struct {
	db         *chromem.DB
	dimensions int

	mu   sync.RWMutex
	live map[string]string // video id -> live collection name
}

// NewVectorDBManager opens a persistent database at dbPath, or an in-memory
// one when inMemory is set.
func NewVectorDBManager(dbPath string, inMemory, compress bool, dimensions int) (*VectorDBManager, error) {
	var db *chromem.DB
	if inMemory {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{db: db, dimensions: dimensions, live: make(map[string]string)}
	m.loadLive()
	return m, nil
}

// loadLive picks the newest complete generation per video from a reopened
// database. A generation is complete when it holds as many documents as its
// name says; anything else is the leftover of an interrupted write.
func (m *VectorDBManager) loadLive() {
	collections := m.db.ListCollections()
	best := make(map[string]generation)
	for name, c := range collections {
		g, ok := parseCollectionName(name)
		if !ok {
			continue
		}
		if c.Count() != g.size {
			log.Warn().Str("collection", name).Int("documents", c.Count()).Int("expected", g.size).Msg("Dropping incomplete collection")
			if err := m.db.DeleteCollection(name); err != nil {
				log.Warn().Err(err).Str("collection", name).Msg("Failed to drop incomplete collection")
			}
			continue
		}
		if cur, exists := best[g.videoID]; exists && cur.gen >= g.gen {
			continue
		}
		best[g.videoID] = g
	}
	for videoID, g := range best {
		name := collectionName(videoID, g.gen, g.size)
		m.live[videoID] = name
		m.dropGenerations(videoID, name)
	}
}

type generation struct {
	videoID string
	gen     int64
	size    int
}

// names are video-<id>-<gen>-<size>; ids may contain '-'
func collectionName(videoID string, gen int64, size int) string {
	return fmt.Sprintf("%s%s-%020d-%d", collectionPrefix, videoID, gen, size)
}

func parseCollectionName(name string) (generation, bool) {
	if !strings.HasPrefix(name, collectionPrefix) {
		return generation{}, false
	}
	rest := strings.TrimPrefix(name, collectionPrefix)
	idx := strings.LastIndexByte(rest, '-')
	if idx <= 0 {
		return generation{}, false
	}
	size, err := strconv.Atoi(rest[idx+1:])
	if err != nil || size < 0 {
		return generation{}, false
	}
	rest = rest[:idx]
	idx = strings.LastIndexByte(rest, '-')
	if idx <= 0 {
		return generation{}, false
	}
	gen, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return generation{}, false
	}
	return generation{videoID: rest[:idx], gen: gen, size: size}, true
}

func (m *VectorDBManager) Dimensions() int { return m.dimensions }

// UpsertAll replaces every passage of videoID. On failure the previous set
// stays live.
func (m *VectorDBManager) UpsertAll(ctx context.Context, videoID string, passages []models.IndexedPassage) error {
	if videoID == "" {
		return fmt.Errorf("%w: empty video id", models.ErrInvalidRequest)
	}
	docs := make([]chromem.Document, 0, len(passages))
	for i, p := range passages {
		if err := m.checkVector(p.Embedding); err != nil {
			return fmt.Errorf("passage %d: %w", i, err)
		}
		if p.ID == "" || p.Text == "" {
			return fmt.Errorf("%w: passage %d needs an id and text", models.ErrInvalidRequest, i)
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   p.Text,
			Embedding: p.Embedding,
			Metadata: map[string]string{
				metaVideoID:    videoID,
				metaChunkIndex: strconv.Itoa(p.ChunkIndex),
				metaStart:      strconv.FormatFloat(p.StartSeconds, 'f', -1, 64),
				metaDuration:   strconv.FormatFloat(p.DurationSeconds, 'f', -1, 64),
			},
		})
	}

	name := collectionName(videoID, time.Now().UnixNano(), len(docs))
	c, err := m.db.CreateCollection(name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if len(docs) > 0 {
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			if derr := m.db.DeleteCollection(name); derr != nil {
				log.Error().Err(derr).Str("collection", name).Msg("Failed to drop staged collection")
			}
			return fmt.Errorf("failed to add documents: %w", err)
		}
	}

	m.mu.Lock()
	previous := m.live[videoID]
	m.live[videoID] = name
	m.mu.Unlock()

	m.dropGenerations(videoID, name)
	log.Info().Str("video_id", videoID).Int("passages", len(docs)).Str("collection", name).Str("previous", previous).Msg("Stored passages")
	return nil
}

// delete every collection of videoID except keep
func (m *VectorDBManager) dropGenerations(videoID, keep string) {
	for name := range m.db.ListCollections() {
		g, ok := parseCollectionName(name)
		if !ok || g.videoID != videoID || name == keep {
			continue
		}
		if err := m.db.DeleteCollection(name); err != nil {
			log.Warn().Err(err).Str("collection", name).Msg("Failed to drop old collection")
		}
	}
}

// Query ranks every passage of videoID against vector and returns the best
// topK. topK beyond the stored count returns all passages.
func (m *VectorDBManager) Query(ctx context.Context, videoID string, vector []float32, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := m.checkVector(vector); err != nil {
		return nil, err
	}
	c := m.collection(videoID)
	if c == nil || c.Count() == 0 {
		return nil, nil
	}

	// rank the whole collection so ties at the cut-off resolve deterministically
	res, err := c.QueryEmbedding(ctx, vector, c.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]models.RetrievalResult, 0, len(res))
	for _, r := range res {
		results = append(results, models.RetrievalResult{
			Passage:    toPassage(videoID, r.ID, r.Content, r.Metadata),
			Similarity: float64(r.Similarity),
		})
	}
	return models.TopK(results, topK), nil
}

// Count returns the number of live passages for videoID.
func (m *VectorDBManager) Count(videoID string) int {
	c := m.collection(videoID)
	if c == nil {
		return 0
	}
	return c.Count()
}

// Delete removes every passage of videoID.
func (m *VectorDBManager) Delete(videoID string) error {
	m.mu.Lock()
	delete(m.live, videoID)
	m.mu.Unlock()
	m.dropGenerations(videoID, "")
	return nil
}

func (m *VectorDBManager) collection(videoID string) *chromem.Collection {
	m.mu.RLock()
	name, ok := m.live[videoID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return m.db.GetCollection(name, noEmbedding)
}

func (m *VectorDBManager) checkVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", models.ErrDimensionMismatch)
	}
	if m.dimensions > 0 && len(v) != m.dimensions {
		return fmt.Errorf("%w: got %d, index expects %d", models.ErrDimensionMismatch, len(v), m.dimensions)
	}
	return nil
}

func toPassage(videoID, id, content string, meta map[string]string) models.IndexedPassage {
	idx, _ := strconv.Atoi(meta[metaChunkIndex])
	start, _ := strconv.ParseFloat(meta[metaStart], 64)
	dur, _ := strconv.ParseFloat(meta[metaDuration], 64)
	return models.IndexedPassage{
		ID:              id,
		VideoID:         videoID,
		ChunkIndex:      idx,
		StartSeconds:    start,
		DurationSeconds: dur,
		Text:            content,
	}
}

// Videos lists the video ids that currently have passages.
func (m *VectorDBManager) Videos() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
