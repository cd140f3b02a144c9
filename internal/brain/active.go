package brain

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// userTaughtConfidence is what a direct user answer is worth. Deliberately
// below 1.0 so later evidence can still move it.
const userTaughtConfidence = 0.95

// #region active-learner

// ActiveLearner turns low-confidence predictions into questions and user
// answers into high-confidence training signal.
type ActiveLearner struct {
	store    recorder
	askBelow float64
}

// NewActiveLearner returns a learner that asks below the given confidence.
func NewActiveLearner(store recorder, askBelow float64) *ActiveLearner {
	return &ActiveLearner{store: store, askBelow: askBelow}
}

// ShouldAsk reports whether a prediction is too uncertain to act on.
func (a *ActiveLearner) ShouldAsk(confidence float64) bool {
	return confidence < a.askBelow
}

// #endregion active-learner

// #region format-query

// FormatQuery renders candidate actions as a lettered multiple-choice prompt.
// A trailing "Something else" choice always follows the candidates.
func (a *ActiveLearner) FormatQuery(situation string, options []Prediction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I'm not sure what to do for %q. Did you mean:\n", situation)

	letters := make([]string, 0, len(options)+1)
	for i, opt := range options {
		letter := string(rune('A' + i))
		letters = append(letters, letter)
		fmt.Fprintf(&sb, "  %s) %s (%.0f%% confident, %s)\n", letter, opt.Action, opt.Confidence*100, opt.Source)
	}
	letter := string(rune('A' + len(options)))
	letters = append(letters, letter)
	fmt.Fprintf(&sb, "  %s) Something else\n", letter)

	fmt.Fprintf(&sb, "Your choice (%s):", strings.Join(letters, "/"))
	return sb.String()
}

// #endregion format-query

// #region apply-choice

// ApplyChoice resolves a lettered answer against the offered options. The
// chosen action is recorded as a success so every strategy learns from it.
// Returns nil for an unrecognized letter or the "Something else" choice.
func (a *ActiveLearner) ApplyChoice(snap snapshot.Context, situation, choice string, options []Prediction) *Prediction {
	choice = strings.ToUpper(strings.TrimSpace(choice))
	if len(choice) != 1 {
		return nil
	}

	idx := int(choice[0] - 'A')
	if idx < 0 || idx >= len(options) {
		return nil
	}
	chosen := options[idx]

	// A store failure must not lose the user's answer.
	if a.store != nil {
		if _, err := a.store.Record(snap, chosen.Action, chosen.Params, history.OutcomeSuccess, 0); err != nil {
			log.Printf("[Active] failed to record user choice: %v", err)
		}
	}

	log.Printf("[Active] user taught: %s -> %s", situation, chosen.Action)
	return &Prediction{
		DecisionID: uuid.NewString(),
		Action:     chosen.Action,
		Confidence: userTaughtConfidence,
		Params:     chosen.Params,
		Source:     SourceUserTaught,
		Reason:     "you told me directly",
	}
}

// #endregion apply-choice
