package history

import (
	"time"

	"github.com/aide-sh/go-brain/internal/snapshot"
)

// #region outcome

// Outcome encodes how an action attempt ended. The numeric values are stored
// as-is and multiply into k-NN vote scores, so they must stay 1/0/-1.
type Outcome int

const (
	OutcomeFailure  Outcome = 0
	OutcomeSuccess  Outcome = 1
	OutcomeCanceled Outcome = -1
)

// String returns a human-readable label for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "failure"
	}
}

// #endregion outcome

// #region action-record

// ActionRecord is one row of the append-only action history.
type ActionRecord struct {
	ID             int64
	Timestamp      time.Time
	Hour           int
	DayOfWeek      string
	IsWeekend      bool
	TimeOfDay      string
	BatteryPercent int
	Situation      string
	Action         string
	Params         map[string]string
	Outcome        Outcome
	ExecutionMs    int64
	Context        snapshot.Context
}

// #endregion action-record

// #region stats

// Stats aggregates outcomes for one (situation, action) pair.
type Stats struct {
	Total       int
	Successes   int
	SuccessRate float64
	AvgExecMs   float64
}

// ActionCount is an aggregate row for a single action within a situation.
type ActionCount struct {
	Action      string
	Frequency   int
	SuccessRate float64
}

// SituationCount is an aggregate row for one situation.
type SituationCount struct {
	Situation string
	Frequency int
}

// LearningStats summarizes the whole action history.
type LearningStats struct {
	TotalActions     int
	UniqueSituations int
	UniqueActions    int
	SuccessRate      float64
	AvgExecMs        float64
}

// #endregion stats
