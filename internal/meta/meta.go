package meta

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aide-sh/go-brain/internal/history"
)

// #region schema

const transfersSchema = `
CREATE TABLE IF NOT EXISTS pattern_transfers (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	source_situation TEXT NOT NULL,
	target_situation TEXT NOT NULL,
	action           TEXT NOT NULL,
	confidence       REAL NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transfers_target ON pattern_transfers(target_situation);
`

// #endregion schema

// #region types

// Config holds meta-learning parameters.
type Config struct {
	SimilarityThreshold float64 // minimum Jaccard score to treat situations as similar
}

// DefaultConfig returns the standard threshold.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.7}
}

// SituationMatch pairs a candidate source situation with its name similarity.
type SituationMatch struct {
	Situation string
	Score     float64
}

// Transfer is one action preference carried from a source situation to a
// target. Confidence is always discounted and capped at 0.9: transferred
// knowledge never outranks directly learned knowledge.
type Transfer struct {
	Action     string
	Confidence float64
	Source     string
	Similarity float64 // source-target name similarity, set by Bootstrap
	Reason     string
}

// TransferStats summarizes the audit log.
type TransferStats struct {
	TotalTransfers int
	UniqueTargets  int
	AvgConfidence  float64
}

// #endregion types

// #region learner

// MetaLearner transfers successful action preferences between lexically
// similar situations and keeps an append-only audit trail of every transfer.
type MetaLearner struct {
	store *history.Store
	db    *sql.DB
	cfg   Config
}

// NewMetaLearner initializes the pattern_transfers table and returns a learner.
func NewMetaLearner(store *history.Store, cfg Config) (*MetaLearner, error) {
	db := store.DB()
	if _, err := db.Exec(transfersSchema); err != nil {
		return nil, fmt.Errorf("create pattern_transfers: %w", err)
	}
	return &MetaLearner{store: store, db: db, cfg: cfg}, nil
}

// #endregion learner

// #region find-similar

// FindSimilarSituations returns situations similar to target by token overlap
// of underscore-delimited situation names, best first. Only situations with
// at least 3 successful records qualify as sources.
func (m *MetaLearner) FindSimilarSituations(target string) ([]SituationMatch, error) {
	counts, err := m.store.SituationCounts(target, 3)
	if err != nil {
		return nil, err
	}

	var matches []SituationMatch
	for _, c := range counts {
		score := jaccard(target, c.Situation)
		if score >= m.cfg.SimilarityThreshold {
			matches = append(matches, SituationMatch{Situation: c.Situation, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// jaccard computes token-set overlap between two underscore-delimited names.
func jaccard(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	if inter == 0 {
		return 0
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(name string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Split(strings.ToLower(name), "_") {
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

// #endregion find-similar

// #region transfer

// TransferPattern carries the top source actions to the target with
// discounted confidence, logging each as a transfer record.
func (m *MetaLearner) TransferPattern(source, target string) ([]Transfer, error) {
	actions, err := m.store.TopActions(source, 0.7, 2, 3)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var transfers []Transfer
	for _, a := range actions {
		conf := math.Min(a.SuccessRate*0.8+math.Min(float64(a.Frequency)/10.0, 0.15), 0.9)

		transfers = append(transfers, Transfer{
			Action:     a.Action,
			Confidence: conf,
			Source:     source,
			Reason:     fmt.Sprintf("transferred from similar situation: %s", source),
		})

		if _, err := m.db.Exec(
			`INSERT INTO pattern_transfers (source_situation, target_situation, action, confidence, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			source, target, a.Action, conf, now,
		); err != nil {
			return nil, fmt.Errorf("log transfer: %w", err)
		}
	}

	log.Printf("[Meta] transferred %d patterns: %s -> %s", len(transfers), source, target)
	return transfers, nil
}

// #endregion transfer

// #region bootstrap

// Bootstrap seeds a novel situation from its most similar known one. Returns
// nil when no situation clears the similarity threshold or the best source
// has nothing worth transferring.
func (m *MetaLearner) Bootstrap(target string) (*Transfer, error) {
	similar, err := m.FindSimilarSituations(target)
	if err != nil {
		return nil, err
	}
	if len(similar) == 0 {
		return nil, nil
	}

	best := similar[0]
	transfers, err := m.TransferPattern(best.Situation, target)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, nil
	}

	top := transfers[0]
	top.Similarity = best.Score
	return &top, nil
}

// #endregion bootstrap

// #region stats

// TransferStats summarizes the audit log.
func (m *MetaLearner) TransferStats() (TransferStats, error) {
	var stats TransferStats
	var avg sql.NullFloat64
	err := m.db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT target_situation), AVG(confidence) FROM pattern_transfers`,
	).Scan(&stats.TotalTransfers, &stats.UniqueTargets, &avg)
	if err != nil {
		return TransferStats{}, fmt.Errorf("transfer stats: %w", err)
	}
	stats.AvgConfidence = avg.Float64
	return stats, nil
}

// #endregion stats
