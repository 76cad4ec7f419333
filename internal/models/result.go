package models

// ScoredChunk is a single retrieval hit. Rank is 1-based.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// RetrievalResult holds up to K chunks ordered by descending similarity.
type RetrievalResult struct {
	Query  string        `json:"query"`
	K      int           `json:"k"`
	Chunks []ScoredChunk `json:"chunks"`
}

// Texts returns the chunk texts in rank order.
func (r *RetrievalResult) Texts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Chunk.Text
	}
	return out
}

// Sources returns the distinct chunk sources in rank order.
func (r *RetrievalResult) Sources() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Chunks))
	var out []string
	for _, c := range r.Chunks {
		if _, ok := seen[c.Chunk.Source]; ok {
			continue
		}
		seen[c.Chunk.Source] = struct{}{}
		out = append(out, c.Chunk.Source)
	}
	return out
}
