package brain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aide-sh/go-brain/internal/fewshot"
	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/knn"
	"github.com/aide-sh/go-brain/internal/meta"
	"github.com/aide-sh/go-brain/internal/rl"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// #region stubs

type stubPolicy struct {
	sel     *rl.Selection
	updates []string
}

func (s *stubPolicy) SelectAction(snapshot.Context, string, []string) *rl.Selection { return s.sel }
func (s *stubPolicy) Update(_ snapshot.Context, _, action string, _ history.Outcome, _ snapshot.Context) error {
	s.updates = append(s.updates, action)
	return nil
}

type stubExamples struct {
	match  *fewshot.Match
	err    error
	stored []string
}

func (s *stubExamples) Predict(context.Context, string, string) (*fewshot.Match, error) {
	return s.match, s.err
}
func (s *stubExamples) StoreExample(_ context.Context, _, action, _ string) error {
	s.stored = append(s.stored, action)
	return nil
}

type stubTransfer struct {
	tr  *meta.Transfer
	err error
}

func (s *stubTransfer) Bootstrap(string) (*meta.Transfer, error) { return s.tr, s.err }

type stubVoter struct {
	vote *knn.Vote
	err  error
}

func (s *stubVoter) Predict(string, snapshot.Context) (*knn.Vote, error) { return s.vote, s.err }
func (s *stubVoter) OptimizeParams(_ string, _ snapshot.Context, defaults map[string]string) (map[string]string, error) {
	return defaults, nil
}
func (s *stubVoter) DetectWorkflow([]string) (*knn.Workflow, error) { return nil, nil }

type recordCall struct {
	action  string
	outcome history.Outcome
}

type stubRecorder struct {
	calls []recordCall
	err   error
}

func (s *stubRecorder) Record(_ snapshot.Context, action string, _ map[string]string, outcome history.Outcome, _ int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.calls = append(s.calls, recordCall{action, outcome})
	return int64(len(s.calls)), nil
}

func testSnap() snapshot.Context {
	return snapshot.FromTime(time.Date(2025, 11, 3, 23, 0, 0, 0, time.UTC))
}

// #endregion stubs

func TestDecide_RLGateShortCircuits(t *testing.T) {
	// RL clears its gate, so the near-certain few-shot match is never reached.
	b := New(
		&stubPolicy{sel: &rl.Selection{Action: "dnd.on", Confidence: 0.85, Method: "exploit"}},
		&stubExamples{match: &fewshot.Match{Action: "lights.off", Similarity: 0.99}},
		&stubTransfer{},
		&stubVoter{},
		&stubRecorder{},
		DefaultConfig(),
	)

	p := b.Decide(context.Background(), testSnap(), "tired", "turn it off", nil)
	if p == nil {
		t.Fatal("expected prediction")
	}
	if p.Action != "dnd.on" || p.Source != SourceRL {
		t.Errorf("got %s via %s, want dnd.on via %s", p.Action, p.Source, SourceRL)
	}
	if p.DecisionID == "" {
		t.Error("decision id must be set")
	}
}

func TestDecide_FallsThroughBelowGate(t *testing.T) {
	b := New(
		&stubPolicy{sel: &rl.Selection{Action: "dnd.on", Confidence: 0.5}},
		&stubExamples{match: &fewshot.Match{Action: "lights.off", Similarity: 0.8}},
		&stubTransfer{},
		&stubVoter{},
		&stubRecorder{},
		DefaultConfig(),
	)

	p := b.Decide(context.Background(), testSnap(), "tired", "lights", nil)
	if p == nil {
		t.Fatal("expected prediction")
	}
	if p.Source != SourceFewShot || p.Action != "lights.off" {
		t.Errorf("got %s via %s, want lights.off via %s", p.Action, p.Source, SourceFewShot)
	}
}

func TestDecide_StrategyErrorIsIsolated(t *testing.T) {
	b := New(
		&stubPolicy{},
		&stubExamples{err: errors.New("embedding provider down")},
		&stubTransfer{tr: &meta.Transfer{Action: "nap.timer", Confidence: 0.85}},
		&stubVoter{err: errors.New("db locked")},
		&stubRecorder{},
		DefaultConfig(),
	)

	p := b.Decide(context.Background(), testSnap(), "very_tired", "so sleepy", nil)
	if p == nil {
		t.Fatal("expected meta prediction despite sibling failures")
	}
	if p.Source != SourceMeta || p.Action != "nap.timer" {
		t.Errorf("got %s via %s, want nap.timer via %s", p.Action, p.Source, SourceMeta)
	}
}

func TestDecide_EmptyUtteranceSkipsFewShot(t *testing.T) {
	b := New(
		&stubPolicy{},
		&stubExamples{match: &fewshot.Match{Action: "lights.off", Similarity: 0.99}},
		&stubTransfer{},
		&stubVoter{},
		&stubRecorder{},
		DefaultConfig(),
	)

	if p := b.Decide(context.Background(), testSnap(), "tired", "", nil); p != nil {
		t.Errorf("expected nil with nothing to match, got %+v", p)
	}
}

func TestDecide_NoOpinionReturnsNil(t *testing.T) {
	b := New(&stubPolicy{}, &stubExamples{}, &stubTransfer{}, &stubVoter{}, &stubRecorder{}, DefaultConfig())
	if p := b.Decide(context.Background(), testSnap(), "unknown", "hm", nil); p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestDecide_SubGateButActionable(t *testing.T) {
	// 0.65 clears the ask floor (0.6) without clearing any gate: act on it.
	b := New(
		&stubPolicy{sel: &rl.Selection{Action: "dnd.on", Confidence: 0.65}},
		&stubExamples{},
		&stubTransfer{},
		&stubVoter{},
		&stubRecorder{},
		DefaultConfig(),
	)

	p := b.Decide(context.Background(), testSnap(), "tired", "", nil)
	if p == nil {
		t.Fatal("expected prediction")
	}
	if p.AskUser {
		t.Error("0.65 should act, not ask")
	}
	if p.Action != "dnd.on" {
		t.Errorf("action = %q", p.Action)
	}
}

func TestDecide_UncertainAsksUser(t *testing.T) {
	b := New(
		&stubPolicy{sel: &rl.Selection{Action: "dnd.on", Confidence: 0.3}},
		&stubExamples{match: &fewshot.Match{Action: "lights.off", Similarity: 0.5}},
		&stubTransfer{tr: &meta.Transfer{Action: "nap.timer", Confidence: 0.4}},
		&stubVoter{},
		&stubRecorder{},
		DefaultConfig(),
	)

	p := b.Decide(context.Background(), testSnap(), "tired", "mmph", nil)
	if p == nil {
		t.Fatal("expected disambiguation prediction")
	}
	if !p.AskUser {
		t.Fatal("expected AskUser")
	}
	// The flagged prediction is still the best guess, not an empty shell.
	if p.Action != "lights.off" || p.Source != SourceFewShot {
		t.Errorf("best guess dropped: got %s via %s, want lights.off via %s", p.Action, p.Source, SourceFewShot)
	}
	if p.Confidence != 0.5 {
		t.Errorf("confidence = %.2f, want best candidate's 0.5", p.Confidence)
	}
	if len(p.Options) != 3 {
		t.Fatalf("got %d options, want 3", len(p.Options))
	}
	// Options sorted by confidence, best first.
	if p.Options[0].Action != "lights.off" || p.Options[1].Action != "nap.timer" || p.Options[2].Action != "dnd.on" {
		t.Errorf("options out of order: %+v", p.Options)
	}
}

func TestLearnFromOutcome(t *testing.T) {
	policy := &stubPolicy{}
	examples := &stubExamples{}
	rec := &stubRecorder{}
	b := New(policy, examples, &stubTransfer{}, &stubVoter{}, rec, DefaultConfig())

	snap := testSnap()
	err := b.LearnFromOutcome(context.Background(), snap, "tired", "turn on dnd", "dnd.on", nil, history.OutcomeSuccess, 120, snap)
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.calls) != 1 || rec.calls[0].action != "dnd.on" || rec.calls[0].outcome != history.OutcomeSuccess {
		t.Errorf("record calls = %+v", rec.calls)
	}
	if len(policy.updates) != 1 || policy.updates[0] != "dnd.on" {
		t.Errorf("policy updates = %+v", policy.updates)
	}
	if len(examples.stored) != 1 || examples.stored[0] != "dnd.on" {
		t.Errorf("exemplars stored = %+v", examples.stored)
	}
}

func TestLearnFromOutcome_FailureStoresNoExemplar(t *testing.T) {
	examples := &stubExamples{}
	b := New(&stubPolicy{}, examples, &stubTransfer{}, &stubVoter{}, &stubRecorder{}, DefaultConfig())

	snap := testSnap()
	if err := b.LearnFromOutcome(context.Background(), snap, "tired", "dnd please", "dnd.on", nil, history.OutcomeFailure, 0, snap); err != nil {
		t.Fatal(err)
	}
	if len(examples.stored) != 0 {
		t.Errorf("failures must not become exemplars, got %+v", examples.stored)
	}
}

func TestLearnFromOutcome_RecordFailureStillLearns(t *testing.T) {
	// A persistence outage must not drop the reward signal: the in-memory
	// strategies learn even when the event store write fails.
	policy := &stubPolicy{}
	examples := &stubExamples{}
	b := New(policy, examples, &stubTransfer{}, &stubVoter{}, &stubRecorder{err: errors.New("disk full")}, DefaultConfig())

	snap := testSnap()
	err := b.LearnFromOutcome(context.Background(), snap, "tired", "turn on dnd", "dnd.on", nil, history.OutcomeSuccess, 0, snap)
	if err != nil {
		t.Fatalf("degraded learning must not error: %v", err)
	}
	if len(policy.updates) != 1 || policy.updates[0] != "dnd.on" {
		t.Errorf("policy updates = %+v, want dnd.on despite store failure", policy.updates)
	}
	if len(examples.stored) != 1 || examples.stored[0] != "dnd.on" {
		t.Errorf("exemplars stored = %+v, want dnd.on despite store failure", examples.stored)
	}
}
