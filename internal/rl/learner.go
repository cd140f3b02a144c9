package rl

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// #region schema

const qValuesSchema = `
CREATE TABLE IF NOT EXISTS q_values (
	state_hash   TEXT NOT NULL,
	action       TEXT NOT NULL,
	q_value      REAL NOT NULL,
	update_count INTEGER NOT NULL DEFAULT 1,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (state_hash, action)
);
`

// #endregion schema

// #region learner

type qKey struct {
	state  string
	action string
}

// QLearner selects actions by epsilon-greedy lookup over a persistent value
// table and updates values from observed rewards.
type QLearner struct {
	db    *sql.DB
	cfg   Config
	table map[qKey]float64
	rng   *rand.Rand

	updates       int
	explorations  int
	exploitations int
}

// NewQLearner initializes the q_values table, hydrates the in-memory value
// table, and returns a learner. rng may be nil (time-seeded).
func NewQLearner(db *sql.DB, cfg Config, rng *rand.Rand) (*QLearner, error) {
	if _, err := db.Exec(qValuesSchema); err != nil {
		return nil, fmt.Errorf("create q_values: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	q := &QLearner{
		db:    db,
		cfg:   cfg,
		table: make(map[qKey]float64),
		rng:   rng,
	}
	if err := q.hydrate(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *QLearner) hydrate() error {
	rows, err := q.db.Query(`SELECT state_hash, action, q_value FROM q_values`)
	if err != nil {
		return fmt.Errorf("load q_values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state, action string
		var value float64
		if err := rows.Scan(&state, &action, &value); err != nil {
			return fmt.Errorf("scan q_value: %w", err)
		}
		q.table[qKey{state, action}] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("[RL] loaded %d Q-values", len(q.table))
	return nil
}

// #endregion learner

// #region state-key

// StateKey fingerprints a (situation, context) pair for value-table lookup.
// The fingerprint covers situation, time-of-day bucket, day-of-week, charging
// state, and battery tier, so states collapse into a small discrete space.
func StateKey(ctx snapshot.Context, situation string) string {
	charging := "battery"
	if ctx.IsCharging {
		charging = "charging"
	}

	pct := ctx.BatteryPercent
	if pct < 0 {
		pct = 50 // unknown battery lands in the medium tier
	}
	tier := "medium"
	if pct > 70 {
		tier = "high"
	} else if pct < 30 {
		tier = "low"
	}

	raw := strings.Join([]string{situation, ctx.TimeOfDay, ctx.DayOfWeek, charging, tier}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// #endregion state-key

// #region select-action

// SelectAction picks a candidate via epsilon-greedy. Returns nil when the
// candidate list is empty.
func (q *QLearner) SelectAction(ctx snapshot.Context, situation string, candidates []string) *Selection {
	if len(candidates) == 0 {
		return nil
	}

	state := StateKey(ctx, situation)

	var action, method string
	if q.rng.Float64() < q.cfg.Epsilon {
		action = candidates[q.rng.Intn(len(candidates))]
		method = "explore"
		q.explorations++
		log.Printf("[RL] exploring: %s", action)
	} else {
		best := candidates[0]
		bestQ := q.Value(state, best)
		for _, a := range candidates[1:] {
			if v := q.Value(state, a); v > bestQ {
				best, bestQ = a, v
			}
		}
		action = best
		method = "exploit"
		q.exploitations++
	}

	value := q.Value(state, action)
	return &Selection{
		Action:     action,
		QValue:     value,
		Method:     method,
		StateKey:   state,
		Confidence: math.Min(math.Abs(value), 1.0),
	}
}

// Value returns the stored value for a (state, action) pair, 0 if unseen.
func (q *QLearner) Value(state, action string) float64 {
	return q.table[qKey{state, action}]
}

// #endregion select-action

// #region reward

// Reward maps an outcome to its fixed reward.
func Reward(o history.Outcome) float64 {
	switch o {
	case history.OutcomeSuccess:
		return 1.0
	case history.OutcomeCanceled:
		return -1.0
	default:
		return -0.5
	}
}

// #endregion reward

// #region update

// Update applies the Q-learning rule for an observed outcome and persists the
// new value. next is the context after the action completed; the next-state
// value is taken over the same action, matching how outcomes arrive one at a
// time in the decision cycle.
func (q *QLearner) Update(ctx snapshot.Context, situation, action string, outcome history.Outcome, next snapshot.Context) error {
	state := StateKey(ctx, situation)
	nextState := StateKey(next, situation)

	reward := Reward(outcome)
	maxNext := q.Value(nextState, action)

	old := q.Value(state, action)
	value := old + q.cfg.LearningRate*(reward+q.cfg.Discount*maxNext-old)

	q.table[qKey{state, action}] = value

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := q.db.Exec(
		`INSERT INTO q_values (state_hash, action, q_value, update_count, last_updated)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(state_hash, action) DO UPDATE SET
			q_value = excluded.q_value,
			update_count = update_count + 1,
			last_updated = excluded.last_updated`,
		state, action, value, now,
	)
	if err != nil {
		return fmt.Errorf("persist q_value: %w", err)
	}

	q.updates++
	log.Printf("[RL] Q(%s, %s): %.3f -> %.3f (r=%.1f)", state[:8], action, old, value, reward)
	return nil
}

// #endregion update

// #region stats

// Stats returns activity counters for inspection.
func (q *QLearner) Stats() Stats {
	return Stats{
		LoadedValues:  len(q.table),
		Updates:       q.updates,
		Explorations:  q.explorations,
		Exploitations: q.exploitations,
	}
}

// #endregion stats
