package fewshot

import "context"

// #region embedder

// Embedder abstracts the external embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// #endregion embedder

// #region config

// Config holds few-shot matching parameters.
type Config struct {
	SimilarityThreshold float64 // minimum raw cosine similarity to accept
}

// DefaultConfig returns the standard threshold.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.75}
}

// #endregion config

// #region match

// Match is a semantic match against a stored exemplar. Similarity is the raw
// cosine score; Boosted includes the success-count bonus and is used only for
// ranking, never reported as confidence.
type Match struct {
	Action       string
	Situation    string
	Similarity   float64
	Boosted      float64
	SuccessCount int
}

// #endregion match

// #region stats

// Stats summarizes the exemplar table.
type Stats struct {
	TotalExemplars   int
	UniqueSituations int
	TotalUses        int
}

// #endregion stats
