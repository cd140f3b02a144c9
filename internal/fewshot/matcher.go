package fewshot

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"
)

// #region schema

const exemplarsSchema = `
CREATE TABLE IF NOT EXISTS exemplars (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	text          TEXT,
	embedding     BLOB,
	action        TEXT NOT NULL,
	situation     TEXT,
	success_count INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exemplars_situation ON exemplars(situation);
`

// #endregion schema

// #region matcher

// Matcher stores (text, action, situation) exemplars with embeddings and
// retrieves the closest one by cosine similarity. A nil embedder disables the
// matcher entirely: every call degrades to "no opinion".
type Matcher struct {
	db       *sql.DB
	embedder Embedder
	cfg      Config
}

// NewMatcher initializes the exemplars table and returns a matcher.
func NewMatcher(db *sql.DB, embedder Embedder, cfg Config) (*Matcher, error) {
	if _, err := db.Exec(exemplarsSchema); err != nil {
		return nil, fmt.Errorf("create exemplars: %w", err)
	}
	return &Matcher{db: db, embedder: embedder, cfg: cfg}, nil
}

// #endregion matcher

// #region store-example

// StoreExample records a successful (text, action, situation) exemplar. A
// repeat (situation, action) pair increments its success count instead of
// inserting a second row. Provider unavailability is a silent no-op.
func (m *Matcher) StoreExample(ctx context.Context, text, action, situation string) error {
	if m.embedder == nil {
		return nil
	}

	var id int64
	var count int
	err := m.db.QueryRow(
		`SELECT id, success_count FROM exemplars WHERE situation = ? AND action = ?`,
		situation, action,
	).Scan(&id, &count)

	switch {
	case err == nil:
		if _, err := m.db.Exec(
			`UPDATE exemplars SET success_count = success_count + 1 WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("bump exemplar: %w", err)
		}
		log.Printf("[FewShot] updated exemplar: %s -> %s (count: %d)", situation, action, count+1)
		return nil

	case err == sql.ErrNoRows:
		vec, embErr := m.embedder.Embed(ctx, text)
		if embErr != nil {
			log.Printf("[FewShot] embedding unavailable, example dropped: %v", embErr)
			return nil
		}
		if _, err := m.db.Exec(
			`INSERT INTO exemplars (text, embedding, action, situation, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			text, encodeVector(vec), action, situation, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert exemplar: %w", err)
		}
		log.Printf("[FewShot] stored new exemplar: %s -> %s", situation, action)
		return nil

	default:
		return fmt.Errorf("lookup exemplar: %w", err)
	}
}

// #endregion store-example

// #region predict

// Predict embeds text and returns the closest exemplar, or nil when nothing
// clears the raw similarity threshold or the provider is unavailable.
// situation may be empty to search all exemplars.
//
// Candidates rank by boosted similarity (success-count bonus capped at 20%)
// but the gate and the reported confidence use the raw score.
func (m *Matcher) Predict(ctx context.Context, text, situation string) (*Match, error) {
	if m.embedder == nil {
		return nil, nil
	}

	query, err := m.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[FewShot] embedding unavailable: %v", err)
		return nil, nil
	}

	q := `SELECT embedding, action, situation, success_count FROM exemplars`
	args := []interface{}{}
	if situation != "" {
		q += ` WHERE situation = ?`
		args = append(args, situation)
	}

	rows, err := m.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query exemplars: %w", err)
	}
	defer rows.Close()

	var best *Match
	for rows.Next() {
		var blob []byte
		var action, sit string
		var count int
		if err := rows.Scan(&blob, &action, &sit, &count); err != nil {
			return nil, fmt.Errorf("scan exemplar: %w", err)
		}

		sim := cosineSimilarity(query, decodeVector(blob))
		boosted := sim * (1 + math.Min(float64(count)/10.0, 0.2))

		if best == nil || boosted > best.Boosted {
			best = &Match{
				Action:       action,
				Situation:    sit,
				Similarity:   sim,
				Boosted:      boosted,
				SuccessCount: count,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if best == nil || best.Similarity < m.cfg.SimilarityThreshold {
		return nil, nil
	}
	return best, nil
}

// #endregion predict

// #region stats

// Stats summarizes the exemplar table.
func (m *Matcher) Stats() (Stats, error) {
	var stats Stats
	var uses sql.NullInt64
	err := m.db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT situation), SUM(success_count) FROM exemplars`,
	).Scan(&stats.TotalExemplars, &stats.UniqueSituations, &uses)
	if err != nil {
		return Stats{}, fmt.Errorf("exemplar stats: %w", err)
	}
	stats.TotalUses = int(uses.Int64)
	return stats, nil
}

// #endregion stats

// #region vector-codec

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity computes cosine similarity between two vectors.
// Returns 0 for zero-length or mismatched vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// #endregion vector-codec
