package knn

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// sequenceGap splits action history into separate sequences.
const sequenceGap = 10 * time.Minute

// #region voter

// Voter predicts actions by voting over the most contextually similar past
// successes, weighted by similarity and recency.
type Voter struct {
	store *history.Store
	cfg   Config
}

// NewVoter creates a voter over the given event store.
func NewVoter(store *history.Store, cfg Config) *Voter {
	return &Voter{store: store, cfg: cfg}
}

// #endregion voter

// #region predict

type scoredRecord struct {
	action string
	params map[string]string
	score  float64
}

// Predict returns the majority-weighted action for a situation and context,
// or nil when fewer than 3 similar records exist or the vote is not
// confident enough.
func (v *Voter) Predict(situation string, ctx snapshot.Context) (*Vote, error) {
	records, err := v.store.QuerySimilar(ctx, situation, v.cfg.K*2)
	if err != nil {
		return nil, err
	}
	if len(records) < 3 {
		return nil, nil
	}

	now := time.Now()
	scored := make([]scoredRecord, 0, len(records))
	for _, rec := range records {
		sim := snapshot.Similarity(ctx, rec.Context)
		daysAgo := now.Sub(rec.Timestamp).Hours() / 24
		if daysAgo < 0 {
			daysAgo = 0
		}
		recency := 1.0 / (1.0 + daysAgo/30.0)

		scored = append(scored, scoredRecord{
			action: rec.Action,
			params: rec.Params,
			score:  sim * recency * float64(rec.Outcome),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	topK := scored
	if len(topK) > v.cfg.K {
		topK = topK[:v.cfg.K]
	}

	votes := make(map[string]float64)
	paramsByAction := make(map[string][]map[string]string)
	for _, s := range topK {
		votes[s.action] += s.score
		paramsByAction[s.action] = append(paramsByAction[s.action], s.params)
	}

	var winner string
	var total float64
	for action, sum := range votes {
		if winner == "" || sum > total {
			winner, total = action, sum
		}
	}

	// Normalize by the effective neighbor count: with a full window this is
	// exactly k, and with a thin (but sufficient) history three perfect
	// matches still yield a confident vote.
	confidence := math.Min(total/float64(len(topK)), 1.0)
	if confidence < v.cfg.MinConfidence {
		return nil, nil
	}

	count := len(paramsByAction[winner])
	return &Vote{
		Action:     winner,
		Confidence: confidence,
		Params:     modeParams(paramsByAction[winner]),
		Reason:     fmt.Sprintf("you did this %d/%d times in similar contexts", count, len(topK)),
		SampleSize: count,
	}, nil
}

// modeParams merges parameter maps by taking the most frequent value per key.
func modeParams(lists []map[string]string) map[string]string {
	keys := make(map[string]bool)
	for _, p := range lists {
		for k := range p {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		return nil
	}

	result := make(map[string]string, len(keys))
	for key := range keys {
		counts := make(map[string]int)
		for _, p := range lists {
			if val, ok := p[key]; ok {
				counts[val]++
			}
		}
		var best string
		var bestN int
		for val, n := range counts {
			if n > bestN {
				best, bestN = val, n
			}
		}
		result[key] = best
	}
	return result
}

// #endregion predict

// #region optimize-params

// OptimizeParams tunes default parameters for an action from past successful
// uses in similar contexts. Falls back to defaults when history is thin.
func (v *Voter) OptimizeParams(action string, ctx snapshot.Context, defaults map[string]string) (map[string]string, error) {
	records, err := v.store.SuccessfulByAction(action, 20)
	if err != nil {
		return defaults, err
	}
	if len(records) < 3 {
		return defaults, nil
	}

	var similar []map[string]string
	for _, rec := range records {
		if snapshot.Similarity(ctx, rec.Context) > 0.6 {
			similar = append(similar, rec.Params)
		}
	}
	if len(similar) == 0 {
		return defaults, nil
	}
	return modeParams(similar), nil
}

// #endregion optimize-params

// #region workflow

// DetectWorkflow checks whether the trailing 2 actions match a recurring
// historical sequence and votes on what followed. Sequences split on gaps
// longer than 10 minutes; a suggestion needs at least WorkflowMinCount
// matching occurrences.
func (v *Voter) DetectWorkflow(recentActions []string) (*Workflow, error) {
	if len(recentActions) < 2 {
		return nil, nil
	}

	records, err := v.store.RecentSuccessful(100)
	if err != nil {
		return nil, err
	}

	sequences := splitSequences(records)

	trail := [2]string{recentActions[len(recentActions)-2], recentActions[len(recentActions)-1]}
	var follows []string
	for _, seq := range sequences {
		for i := 0; i+2 < len(seq); i++ {
			if seq[i] == trail[0] && seq[i+1] == trail[1] {
				follows = append(follows, seq[i+2])
			}
		}
	}
	if len(follows) < v.cfg.WorkflowMinCount {
		return nil, nil
	}

	counts := make(map[string]int)
	for _, a := range follows {
		counts[a]++
	}
	var next string
	var n int
	for a, c := range counts {
		if c > n {
			next, n = a, c
		}
	}

	return &Workflow{
		Pattern:     []string{trail[0], trail[1]},
		NextAction:  next,
		Confidence:  float64(n) / float64(len(follows)),
		Occurrences: n,
	}, nil
}

// splitSequences groups newest-first records into chronological action
// sequences, starting a new sequence at every gap. Sequences shorter than 3
// actions carry no continuation signal and are dropped.
func splitSequences(records []history.ActionRecord) [][]string {
	var sequences [][]string
	var current []string
	var lastTime time.Time

	flush := func() {
		if len(current) >= 3 {
			// records arrive newest-first; reverse to chronological
			seq := make([]string, len(current))
			for i, a := range current {
				seq[len(current)-1-i] = a
			}
			sequences = append(sequences, seq)
		}
		current = nil
	}

	for _, rec := range records {
		if !lastTime.IsZero() && lastTime.Sub(rec.Timestamp) > sequenceGap {
			flush()
		}
		current = append(current, rec.Action)
		lastTime = rec.Timestamp
	}
	flush()

	return sequences
}

// #endregion workflow
