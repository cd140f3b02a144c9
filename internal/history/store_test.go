package history

import (
	"testing"
	"time"

	"github.com/aide-sh/go-brain/internal/snapshot"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ctxAt(t *testing.T, hour int, situation string) snapshot.Context {
	t.Helper()
	ts := time.Date(2025, 11, 3, hour, 0, 0, 0, time.UTC) // Monday
	c := snapshot.FromTime(ts)
	c.Situation = situation
	c.BatteryPercent = 60
	return c
}

func TestRecord_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	ctx := ctxAt(t, 9, "hungry")
	id, err := s.Record(ctx, "food.order", map[string]string{"cuisine": "thai"}, OutcomeSuccess, 1200)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero row id")
	}

	recs, err := s.RecentActions(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.Action != "food.order" || rec.Situation != "hungry" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Params["cuisine"] != "thai" {
		t.Errorf("params not round-tripped: %+v", rec.Params)
	}
	if rec.Outcome != OutcomeSuccess || rec.ExecutionMs != 1200 {
		t.Errorf("outcome/exec = %v/%d", rec.Outcome, rec.ExecutionMs)
	}
	if rec.Context.TimeOfDay != "morning" {
		t.Errorf("context snapshot not round-tripped: %+v", rec.Context)
	}
}

func TestQuerySimilar_FiltersAndRanks(t *testing.T) {
	s := newTestStore(t)

	morning := ctxAt(t, 9, "hungry")
	night := ctxAt(t, 23, "hungry")
	nearMorning := ctxAt(t, 10, "hungry")

	// A failure never comes back.
	if _, err := s.Record(morning, "bad.action", nil, OutcomeFailure, 0); err != nil {
		t.Fatal(err)
	}
	// Night record ranks below morning records for a morning query.
	if _, err := s.Record(night, "dnd.on", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(morning, "food.order", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(nearMorning, "food.order", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	// Different situation is excluded entirely.
	other := ctxAt(t, 9, "tired")
	if _, err := s.Record(other, "nap.timer", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}

	recs, err := s.QuerySimilar(morning, "hungry", 10)
	if err != nil {
		t.Fatalf("query similar: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for _, r := range recs {
		if r.Outcome != OutcomeSuccess {
			t.Errorf("non-success record returned: %+v", r)
		}
		if r.Situation != "hungry" {
			t.Errorf("wrong situation returned: %+v", r)
		}
	}
	// Exact time-of-day matches outrank the night record.
	if recs[0].TimeOfDay != "morning" || recs[1].TimeOfDay != "morning" {
		t.Errorf("morning records should rank first: %v, %v", recs[0].TimeOfDay, recs[1].TimeOfDay)
	}
	if recs[2].Action != "dnd.on" {
		t.Errorf("night record should rank last, got %q", recs[2].Action)
	}
}

func TestAggregate_Rates(t *testing.T) {
	s := newTestStore(t)
	ctx := ctxAt(t, 9, "hungry")

	for i := 0; i < 3; i++ {
		if _, err := s.Record(ctx, "food.order", nil, OutcomeSuccess, 900); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Record(ctx, "food.order", nil, OutcomeFailure, 0); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Aggregate("hungry", "food.order")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if stats.Total != 4 || stats.Successes != 3 {
		t.Errorf("total/successes = %d/%d, want 4/3", stats.Total, stats.Successes)
	}
	if stats.SuccessRate != 0.75 {
		t.Errorf("success rate = %.3f, want 0.75", stats.SuccessRate)
	}
	if stats.AvgExecMs != 900 {
		t.Errorf("avg exec = %.1f, want 900 (failures excluded)", stats.AvgExecMs)
	}
}

func TestAggregate_EmptyPair(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.Aggregate("unknown", "none")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if stats.Total != 0 || stats.SuccessRate != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestSituationCounts_MinimumFrequency(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if _, err := s.Record(ctxAt(t, 9, "tired"), "nap.timer", nil, OutcomeSuccess, 0); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Record(ctxAt(t, 9, "stressed"), "music.play", nil, OutcomeSuccess, 0); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := s.SituationCounts("jetlagged", 3)
	if err != nil {
		t.Fatalf("situation counts: %v", err)
	}
	if len(counts) != 1 || counts[0].Situation != "tired" || counts[0].Frequency != 5 {
		t.Errorf("counts = %+v, want tired:5 only", counts)
	}
}

func TestTopActions_ThresholdsAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := ctxAt(t, 9, "tired")

	// nap.timer: 4/4 successes.
	for i := 0; i < 4; i++ {
		if _, err := s.Record(ctx, "nap.timer", nil, OutcomeSuccess, 0); err != nil {
			t.Fatal(err)
		}
	}
	// coffee.order: 3/4 successes.
	for i := 0; i < 3; i++ {
		if _, err := s.Record(ctx, "coffee.order", nil, OutcomeSuccess, 0); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Record(ctx, "coffee.order", nil, OutcomeFailure, 0); err != nil {
		t.Fatal(err)
	}
	// dnd.on: 1/2 successes, below the rate threshold.
	if _, err := s.Record(ctx, "dnd.on", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, "dnd.on", nil, OutcomeFailure, 0); err != nil {
		t.Fatal(err)
	}

	actions, err := s.TopActions("tired", 0.7, 2, 3)
	if err != nil {
		t.Fatalf("top actions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2: %+v", len(actions), actions)
	}
	if actions[0].Action != "nap.timer" || actions[1].Action != "coffee.order" {
		t.Errorf("order = %s, %s; want nap.timer, coffee.order", actions[0].Action, actions[1].Action)
	}
}

func TestPrune_RemovesOldRows(t *testing.T) {
	s := newTestStore(t)

	old := snapshot.FromTime(time.Now().AddDate(0, 0, -120))
	old.Situation = "hungry"
	recent := snapshot.FromTime(time.Now())
	recent.Situation = "hungry"

	if _, err := s.Record(old, "food.order", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(recent, "food.order", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.Prune(90)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	stats, err := s.LearningStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalActions != 1 {
		t.Errorf("remaining = %d, want 1", stats.TotalActions)
	}
}

func TestPatternFrequency_Window(t *testing.T) {
	s := newTestStore(t)

	inWindow := snapshot.FromTime(time.Now().AddDate(0, 0, -5))
	inWindow.Situation = "hungry"
	outOfWindow := snapshot.FromTime(time.Now().AddDate(0, 0, -60))
	outOfWindow.Situation = "hungry"

	if _, err := s.Record(inWindow, "food.order", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(outOfWindow, "food.order", nil, OutcomeSuccess, 0); err != nil {
		t.Fatal(err)
	}

	n, err := s.PatternFrequency("hungry", "food.order", 30)
	if err != nil {
		t.Fatalf("pattern frequency: %v", err)
	}
	if n != 1 {
		t.Errorf("frequency = %d, want 1", n)
	}
}
