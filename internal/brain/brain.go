package brain

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/knn"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// #region brain

// Brain arbitrates between the learning strategies. Each Decide call runs
// them in fixed priority order and returns the first prediction that clears
// its gate; when none does, the best sub-gate candidate is returned, flagged
// for user disambiguation if it is too uncertain to act on.
type Brain struct {
	policy   policyLearner
	examples exampleMatcher
	transfer patternTransferer
	voter    historyVoter
	store    recorder
	active   *ActiveLearner
	cfg      Config
}

// New wires the strategies into an engine. Any strategy may be nil and is
// then skipped during arbitration.
func New(policy policyLearner, examples exampleMatcher, transfer patternTransferer, voter historyVoter, store recorder, cfg Config) *Brain {
	return &Brain{
		policy:   policy,
		examples: examples,
		transfer: transfer,
		voter:    voter,
		store:    store,
		active:   NewActiveLearner(store, cfg.AskBelow),
		cfg:      cfg,
	}
}

// #endregion brain

// #region decide

// Decide picks an action for the situation. candidates seeds the policy
// learner; utterance, when non-empty, is matched against stored exemplars.
// A strategy failing is logged and skipped, never fatal: the remaining
// strategies still get their turn.
func (b *Brain) Decide(ctx context.Context, snap snapshot.Context, situation, utterance string, candidates []string) *Prediction {
	id := uuid.NewString()
	var options []Prediction

	if b.policy != nil {
		if sel := b.policy.SelectAction(snap, situation, candidates); sel != nil {
			p := Prediction{
				DecisionID: id,
				Action:     sel.Action,
				Confidence: sel.Confidence,
				Source:     SourceRL,
				Reason:     "learned from reinforcement (" + sel.Method + ")",
			}
			if p.Confidence > b.cfg.RLGate {
				log.Printf("[Brain] %s via %s (%.2f)", p.Action, p.Source, p.Confidence)
				return &p
			}
			options = append(options, p)
		}
	}

	if b.examples != nil && utterance != "" {
		match, err := b.examples.Predict(ctx, utterance, situation)
		if err != nil {
			log.Printf("[Brain] few-shot failed: %v", err)
		} else if match != nil {
			p := Prediction{
				DecisionID: id,
				Action:     match.Action,
				Confidence: match.Similarity,
				Source:     SourceFewShot,
				Reason:     "similar to a past example",
			}
			if p.Confidence > b.cfg.FewShotGate {
				log.Printf("[Brain] %s via %s (%.2f)", p.Action, p.Source, p.Confidence)
				return &p
			}
			options = append(options, p)
		}
	}

	if b.transfer != nil {
		tr, err := b.transfer.Bootstrap(situation)
		if err != nil {
			log.Printf("[Brain] meta-learning failed: %v", err)
		} else if tr != nil {
			p := Prediction{
				DecisionID: id,
				Action:     tr.Action,
				Confidence: tr.Confidence,
				Source:     SourceMeta,
				Reason:     tr.Reason,
			}
			if p.Confidence > b.cfg.MetaGate {
				log.Printf("[Brain] %s via %s (%.2f)", p.Action, p.Source, p.Confidence)
				return &p
			}
			options = append(options, p)
		}
	}

	if b.voter != nil {
		vote, err := b.voter.Predict(situation, snap)
		if err != nil {
			log.Printf("[Brain] knn vote failed: %v", err)
		} else if vote != nil {
			p := Prediction{
				DecisionID: id,
				Action:     vote.Action,
				Confidence: vote.Confidence,
				Params:     vote.Params,
				Source:     SourceKNN,
				Reason:     vote.Reason,
			}
			if p.Confidence > b.cfg.KNNGate {
				log.Printf("[Brain] %s via %s (%.2f)", p.Action, p.Source, p.Confidence)
				return &p
			}
			options = append(options, p)
		}
	}

	if len(options) == 0 {
		return nil
	}

	sort.SliceStable(options, func(i, j int) bool { return options[i].Confidence > options[j].Confidence })
	best := options[0]
	if b.active.ShouldAsk(best.Confidence) {
		if len(options) > 3 {
			options = options[:3]
		}
		// The best guess stays on the prediction; AskUser just flags it
		// as not safe to act on without confirmation.
		best.AskUser = true
		best.Options = options
	}
	return &best
}

// #endregion decide

// #region learn

// LearnFromOutcome feeds one observed result back into every strategy: the
// event store gets the record, the policy learner gets a value update, and a
// success becomes a few-shot exemplar. next is the context after execution.
// A failed write is logged and the in-memory strategies still learn; the
// reward signal must survive a persistence outage.
func (b *Brain) LearnFromOutcome(ctx context.Context, snap snapshot.Context, situation, utterance, action string, params map[string]string, outcome history.Outcome, execMs int64, next snapshot.Context) error {
	if _, err := b.store.Record(snap, action, params, outcome, execMs); err != nil {
		log.Printf("[Brain] record failed, learning from memory only: %v", err)
	}

	if b.policy != nil {
		if err := b.policy.Update(snap, situation, action, outcome, next); err != nil {
			log.Printf("[Brain] policy update failed: %v", err)
		}
	}

	if b.examples != nil && outcome == history.OutcomeSuccess && utterance != "" {
		if err := b.examples.StoreExample(ctx, utterance, action, situation); err != nil {
			log.Printf("[Brain] exemplar store failed: %v", err)
		}
	}
	return nil
}

// #endregion learn

// #region disambiguation

// FormatDisambiguationPrompt renders an uncertain prediction as a lettered
// question for the user.
func (b *Brain) FormatDisambiguationPrompt(situation string, p *Prediction) string {
	return b.active.FormatQuery(situation, p.Options)
}

// ApplyUserChoice resolves a disambiguation answer into a confident,
// user-taught prediction, recording the choice as a successful action.
func (b *Brain) ApplyUserChoice(snap snapshot.Context, situation, choice string, p *Prediction) *Prediction {
	return b.active.ApplyChoice(snap, situation, choice, p.Options)
}

// #endregion disambiguation

// #region passthrough

// SuggestNext checks whether the trailing actions match a recurring workflow.
func (b *Brain) SuggestNext(recentActions []string) (*knn.Workflow, error) {
	if b.voter == nil {
		return nil, nil
	}
	return b.voter.DetectWorkflow(recentActions)
}

// TuneParams adjusts action defaults from past successful uses.
func (b *Brain) TuneParams(action string, snap snapshot.Context, defaults map[string]string) (map[string]string, error) {
	if b.voter == nil {
		return defaults, nil
	}
	return b.voter.OptimizeParams(action, snap, defaults)
}

// #endregion passthrough
