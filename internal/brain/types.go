package brain

import (
	"context"

	"github.com/aide-sh/go-brain/internal/fewshot"
	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/knn"
	"github.com/aide-sh/go-brain/internal/meta"
	"github.com/aide-sh/go-brain/internal/rl"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// #region sources

// Strategy sources, in the order Decide consults them.
const (
	SourceRL         = "reinforcement_learning"
	SourceFewShot    = "few_shot"
	SourceMeta       = "meta_learning"
	SourceKNN        = "knn"
	SourceUserTaught = "user_taught"
)

// #endregion sources

// #region config

// Config holds the per-strategy confidence gates and the uncertainty floor
// below which the engine asks the user instead of acting.
type Config struct {
	RLGate      float64
	FewShotGate float64
	MetaGate    float64
	KNNGate     float64
	AskBelow    float64
}

// DefaultConfig returns the standard gates. Gates descend with strategy
// priority: an earlier strategy must be more certain to short-circuit the
// later ones.
func DefaultConfig() Config {
	return Config{
		RLGate:      0.8,
		FewShotGate: 0.75,
		MetaGate:    0.7,
		KNNGate:     0.7,
		AskBelow:    0.6,
	}
}

// #endregion config

// #region prediction

// Prediction is the engine's answer to "what should happen now". When no
// strategy is confident enough, AskUser is set and Options carries the
// candidates to disambiguate between.
type Prediction struct {
	DecisionID string            `json:"decision_id"`
	Action     string            `json:"action"`
	Confidence float64           `json:"confidence"`
	Params     map[string]string `json:"params,omitempty"`
	Source     string            `json:"source"`
	Reason     string            `json:"reason,omitempty"`
	AskUser    bool              `json:"ask_user,omitempty"`
	Options    []Prediction      `json:"options,omitempty"`
}

// #endregion prediction

// #region strategy-interfaces

// The orchestrator talks to its strategies through narrow interfaces so each
// can be swapped out in tests.

type policyLearner interface {
	SelectAction(ctx snapshot.Context, situation string, candidates []string) *rl.Selection
	Update(ctx snapshot.Context, situation, action string, outcome history.Outcome, next snapshot.Context) error
}

type exampleMatcher interface {
	Predict(ctx context.Context, text, situation string) (*fewshot.Match, error)
	StoreExample(ctx context.Context, text, action, situation string) error
}

type patternTransferer interface {
	Bootstrap(target string) (*meta.Transfer, error)
}

type historyVoter interface {
	Predict(situation string, ctx snapshot.Context) (*knn.Vote, error)
	OptimizeParams(action string, ctx snapshot.Context, defaults map[string]string) (map[string]string, error)
	DetectWorkflow(recentActions []string) (*knn.Workflow, error)
}

type recorder interface {
	Record(ctx snapshot.Context, action string, params map[string]string, outcome history.Outcome, execMs int64) (int64, error)
}

// #endregion strategy-interfaces
