package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aide-sh/go-brain/internal/history"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to brain.db")
	last := flag.Int("last", 20, "show N most recent actions")
	situation := flag.String("situation", "", "filter recent actions to one situation")
	jsonOut := flag.Bool("json", false, "output as JSON instead of tables")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/brain.db [--last N] [--situation name] [--json]")
		os.Exit(2)
	}

	store, err := history.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(store, *last, *situation, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region report

type report struct {
	Learning   history.LearningStats `json:"learning"`
	Situations []situationRow        `json:"situations,omitempty"`
	Recent     []recentRow           `json:"recent,omitempty"`
	QValues    *qValueSummary        `json:"q_values,omitempty"`
	Exemplars  *exemplarSummary      `json:"exemplars,omitempty"`
	Transfers  *transferSummary      `json:"transfers,omitempty"`
}

type situationRow struct {
	Situation string `json:"situation"`
	Frequency int    `json:"frequency"`
}

type recentRow struct {
	Timestamp string `json:"timestamp"`
	Situation string `json:"situation"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
}

type qValueSummary struct {
	States  int     `json:"states"`
	Entries int     `json:"entries"`
	Updates int     `json:"updates"`
	MaxQ    float64 `json:"max_q"`
	MinQ    float64 `json:"min_q"`
}

type exemplarSummary struct {
	Total      int `json:"total"`
	Situations int `json:"situations"`
	Uses       int `json:"uses"`
}

type transferSummary struct {
	Total         int     `json:"total"`
	Targets       int     `json:"targets"`
	AvgConfidence float64 `json:"avg_confidence"`
}

func run(store *history.Store, last int, situation string, jsonOut bool) error {
	var rep report
	var err error

	rep.Learning, err = store.LearningStats()
	if err != nil {
		return err
	}

	counts, err := store.SituationCounts("", 1)
	if err != nil {
		return err
	}
	for _, c := range counts {
		rep.Situations = append(rep.Situations, situationRow{c.Situation, c.Frequency})
	}

	records, err := store.RecentActions(last)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if situation != "" && rec.Situation != situation {
			continue
		}
		rep.Recent = append(rep.Recent, recentRow{
			Timestamp: rec.Timestamp.Format("2006-01-02 15:04"),
			Situation: rec.Situation,
			Action:    rec.Action,
			Outcome:   rec.Outcome.String(),
		})
	}

	// Sibling tables exist only once their strategy has run; absence is fine.
	rep.QValues = qValues(store.DB())
	rep.Exemplars = exemplars(store.DB())
	rep.Transfers = transfers(store.DB())

	if jsonOut {
		return printJSON(rep)
	}
	printTables(rep)
	return nil
}

// #endregion report

// #region sibling-tables

func qValues(db *sql.DB) *qValueSummary {
	var s qValueSummary
	var maxQ, minQ sql.NullFloat64
	var updates sql.NullInt64
	err := db.QueryRow(
		`SELECT COUNT(DISTINCT state_hash), COUNT(*), SUM(update_count), MAX(q_value), MIN(q_value) FROM q_values`,
	).Scan(&s.States, &s.Entries, &updates, &maxQ, &minQ)
	if err != nil {
		return nil
	}
	s.Updates = int(updates.Int64)
	s.MaxQ = maxQ.Float64
	s.MinQ = minQ.Float64
	return &s
}

func exemplars(db *sql.DB) *exemplarSummary {
	var s exemplarSummary
	var uses sql.NullInt64
	err := db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT situation), SUM(success_count) FROM exemplars`,
	).Scan(&s.Total, &s.Situations, &uses)
	if err != nil {
		return nil
	}
	s.Uses = int(uses.Int64)
	return &s
}

func transfers(db *sql.DB) *transferSummary {
	var s transferSummary
	var avg sql.NullFloat64
	err := db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT target_situation), AVG(confidence) FROM pattern_transfers`,
	).Scan(&s.Total, &s.Targets, &avg)
	if err != nil {
		return nil
	}
	s.AvgConfidence = avg.Float64
	return &s
}

// #endregion sibling-tables

// #region output

func printTables(rep report) {
	fmt.Printf("Actions:    %d (%.0f%% success)\n", rep.Learning.TotalActions, rep.Learning.SuccessRate*100)
	fmt.Printf("Situations: %d\n", rep.Learning.UniqueSituations)
	fmt.Printf("Distinct:   %d actions, avg %.0fms\n", rep.Learning.UniqueActions, rep.Learning.AvgExecMs)

	if rep.QValues != nil {
		fmt.Printf("\nPolicy: %d entries over %d states, %d updates (Q in [%.2f, %.2f])\n",
			rep.QValues.Entries, rep.QValues.States, rep.QValues.Updates, rep.QValues.MinQ, rep.QValues.MaxQ)
	}
	if rep.Exemplars != nil {
		fmt.Printf("Exemplars: %d across %d situations, %d total uses\n",
			rep.Exemplars.Total, rep.Exemplars.Situations, rep.Exemplars.Uses)
	}
	if rep.Transfers != nil && rep.Transfers.Total > 0 {
		fmt.Printf("Transfers: %d to %d situations, avg confidence %.2f\n",
			rep.Transfers.Total, rep.Transfers.Targets, rep.Transfers.AvgConfidence)
	}

	if len(rep.Situations) > 0 {
		fmt.Printf("\n%-24s  %s\n", "Situation", "Successes")
		fmt.Printf("%-24s+-%s\n", "------------------------", "---------")
		for _, s := range rep.Situations {
			fmt.Printf("%-24s  %9d\n", s.Situation, s.Frequency)
		}
	}

	if len(rep.Recent) > 0 {
		fmt.Printf("\n%-16s  %-20s  %-24s  %s\n", "Time", "Situation", "Action", "Outcome")
		fmt.Printf("%-16s+-%-20s+-%-24s+-%s\n",
			"----------------", "--------------------", "------------------------", "--------")
		for _, r := range rep.Recent {
			fmt.Printf("%-16s  %-20s  %-24s  %s\n", r.Timestamp, r.Situation, r.Action, r.Outcome)
		}
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
