package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aide-sh/go-brain/internal/brain"
	"github.com/aide-sh/go-brain/internal/config"
	"github.com/aide-sh/go-brain/internal/embed"
	"github.com/aide-sh/go-brain/internal/fewshot"
	"github.com/aide-sh/go-brain/internal/history"
	"github.com/aide-sh/go-brain/internal/knn"
	"github.com/aide-sh/go-brain/internal/meta"
	"github.com/aide-sh/go-brain/internal/rl"
	"github.com/aide-sh/go-brain/internal/snapshot"
)

// #region main
func main() {
	cfgPath := flag.String("config", os.Getenv("BRAIN_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := history.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if deleted, err := store.Prune(cfg.RetentionDays); err != nil {
		log.Printf("prune failed: %v", err)
	} else if deleted > 0 {
		log.Printf("pruned %d records older than %d days", deleted, cfg.RetentionDays)
	}

	embedClient := embed.NewClient(embed.Config{
		BaseURL: cfg.Embed.Addr,
		Model:   cfg.Embed.Model,
		Timeout: cfg.Embed.Timeout,
	})

	matcher, err := fewshot.NewMatcher(store.DB(), embedClient, fewshot.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to init few-shot matcher: %v", err)
	}

	policy, err := rl.NewQLearner(store.DB(), rl.Config{
		LearningRate: cfg.LearningRate,
		Discount:     cfg.Discount,
		Epsilon:      cfg.Epsilon,
	}, nil)
	if err != nil {
		log.Fatalf("failed to init policy learner: %v", err)
	}

	transferer, err := meta.NewMetaLearner(store, meta.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to init meta learner: %v", err)
	}

	voter := knn.NewVoter(store, knn.DefaultConfig())

	engine := brain.New(policy, matcher, transferer, voter, store, brain.Config{
		RLGate:      cfg.Gates.RL,
		FewShotGate: cfg.Gates.FewShot,
		MetaGate:    cfg.Gates.Meta,
		KNNGate:     cfg.Gates.KNN,
		AskBelow:    cfg.Gates.AskBelow,
	})

	collector := snapshot.NewClockCollector()

	fmt.Println("Adaptive assistant ready.")
	fmt.Printf("  DB: %s | Embeddings: %s\n", cfg.DBPath, cfg.Embed.Addr)
	fmt.Println("Type '<situation> | <what you said>' (or 'quit' to exit):")

	runLoop(engine, store, collector, os.Stdin)
}

// #endregion main

// #region loop

func runLoop(engine *brain.Brain, store *history.Store, collector snapshot.Collector, in *os.File) {
	scanner := bufio.NewScanner(in)
	var recentActions []string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		situation, utterance := parseInput(line)
		snap := collector.Current(situation, recentActions)

		candidates, err := knownActions(store, situation)
		if err != nil {
			log.Printf("error loading candidates: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pred := engine.Decide(ctx, snap, situation, utterance, candidates)
		cancel()

		if pred == nil {
			action := promptLine(scanner, "No idea yet. What should happen? ")
			if action == "" {
				continue
			}
			teach(engine, snap, situation, utterance, action)
			recentActions = push(recentActions, action)
			continue
		}

		if pred.AskUser {
			fmt.Println(engine.FormatDisambiguationPrompt(situation, pred))
			choice := promptLine(scanner, " ")
			resolved := engine.ApplyUserChoice(snap, situation, choice, pred)
			if resolved == nil {
				action := promptLine(scanner, "What should happen instead? ")
				if action == "" {
					continue
				}
				teach(engine, snap, situation, utterance, action)
				recentActions = push(recentActions, action)
				continue
			}
			pred = resolved
		}

		fmt.Printf("\n-> %s", pred.Action)
		if len(pred.Params) > 0 {
			fmt.Printf(" %v", pred.Params)
		}
		fmt.Printf("  (%.0f%% via %s)\n", pred.Confidence*100, pred.Source)
		if pred.Reason != "" {
			fmt.Printf("   %s\n", pred.Reason)
		}

		started := time.Now()
		outcome := askOutcome(scanner)
		execMs := time.Since(started).Milliseconds()

		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		err = engine.LearnFromOutcome(ctx, snap, situation, utterance, pred.Action, pred.Params,
			outcome, execMs, collector.Current(situation, recentActions))
		cancel()
		if err != nil {
			log.Printf("error recording outcome: %v", err)
		}

		if outcome == history.OutcomeSuccess {
			recentActions = push(recentActions, pred.Action)
			if wf, err := engine.SuggestNext(recentActions); err == nil && wf != nil {
				fmt.Printf("   next up, usually: %s (%.0f%% over %d runs)\n",
					wf.NextAction, wf.Confidence*100, wf.Occurrences)
			}
		}
	}
}

// #endregion loop

// #region helpers

// parseInput splits "<situation> | <utterance>". A line with no pipe is
// treated as a bare situation.
func parseInput(line string) (situation, utterance string) {
	if i := strings.Index(line, "|"); i >= 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// knownActions lists every action ever tried for a situation, as seed
// candidates for the policy learner.
func knownActions(store *history.Store, situation string) ([]string, error) {
	counts, err := store.TopActions(situation, -1, 1, 10)
	if err != nil {
		return nil, err
	}
	actions := make([]string, len(counts))
	for i, c := range counts {
		actions[i] = c.Action
	}
	return actions, nil
}

func teach(engine *brain.Brain, snap snapshot.Context, situation, utterance, action string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.LearnFromOutcome(ctx, snap, situation, utterance, action, nil,
		history.OutcomeSuccess, 0, snap); err != nil {
		log.Printf("error recording taught action: %v", err)
	}
	fmt.Printf("Got it: %s -> %s\n", situation, action)
}

func askOutcome(scanner *bufio.Scanner) history.Outcome {
	for {
		answer := promptLine(scanner, "Did that work? (s)uccess / (f)ailed / (c)anceled: ")
		switch strings.ToLower(answer) {
		case "s", "success", "y", "yes", "":
			return history.OutcomeSuccess
		case "f", "failed", "n", "no":
			return history.OutcomeFailure
		case "c", "canceled", "cancel":
			return history.OutcomeCanceled
		}
	}
}

func promptLine(scanner *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

func push(actions []string, action string) []string {
	actions = append(actions, action)
	if len(actions) > 10 {
		actions = actions[len(actions)-10:]
	}
	return actions
}

// #endregion helpers
