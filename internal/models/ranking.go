package models

import (
	"math"
	"sort"
)

// RankResults orders results by similarity descending. Exact ties go to the
// earlier start time, then the lower chunk index, so identical queries always
// produce the same order.
func RankResults(results []RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Passage.StartSeconds != b.Passage.StartSeconds {
			return a.Passage.StartSeconds < b.Passage.StartSeconds
		}
		return a.Passage.ChunkIndex < b.Passage.ChunkIndex
	})
}

// TopK ranks results and truncates them to k. k larger than len(results)
// returns everything.
func TopK(results []RetrievalResult, k int) []RetrievalResult {
	if k <= 0 {
		return nil
	}
	RankResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// CosineSimilarity returns 1 - cosine distance. Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Sources converts ranked results to the provenance list saved with an answer.
func Sources(results []RetrievalResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			PassageID:    r.Passage.ID,
			StartSeconds: r.Passage.StartSeconds,
			Text:         r.Passage.Text,
			Similarity:   r.Similarity,
		})
	}
	return sources
}
