package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aide-sh/go-brain/internal/snapshot"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS action_history (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp         TEXT NOT NULL,
	hour              INTEGER,
	day_of_week       TEXT,
	is_weekend        INTEGER,
	time_of_day       TEXT,
	battery_percent   INTEGER,
	situation         TEXT,
	action_taken      TEXT NOT NULL,
	action_params     TEXT,
	success           INTEGER NOT NULL DEFAULT 1,
	execution_time_ms INTEGER,
	context_json      TEXT,
	created_at        TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_history_situation ON action_history(situation);
CREATE INDEX IF NOT EXISTS idx_history_hour ON action_history(hour);
CREATE INDEX IF NOT EXISTS idx_history_action ON action_history(action_taken);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON action_history(timestamp);
`

// #endregion schema

// #region store-struct
// Store is the append-only event store for executed actions.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. Use ":memory:" for tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB so sibling packages can keep their own
// tables on the same handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region record

// Record appends one action attempt. All writes are durable immediately.
func (s *Store) Record(ctx snapshot.Context, action string, params map[string]string, outcome Outcome, execMs int64) (int64, error) {
	var paramsJSON interface{}
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return 0, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = string(b)
	}

	ctxJSON, err := json.Marshal(ctx)
	if err != nil {
		return 0, fmt.Errorf("marshal context: %w", err)
	}

	weekend := 0
	if ctx.IsWeekend {
		weekend = 1
	}

	res, err := s.db.Exec(
		`INSERT INTO action_history (
			timestamp, hour, day_of_week, is_weekend, time_of_day,
			battery_percent, situation, action_taken, action_params,
			success, execution_time_ms, context_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ctx.Timestamp.Format(time.RFC3339Nano),
		ctx.Hour,
		ctx.DayOfWeek,
		weekend,
		ctx.TimeOfDay,
		ctx.BatteryPercent,
		ctx.Situation,
		action,
		paramsJSON,
		int(outcome),
		execMs,
		string(ctxJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert action: %w", err)
	}
	return res.LastInsertId()
}

// #endregion record

// #region query-similar

// QuerySimilar returns successful records for a situation, ranked by context
// affinity: exact time-of-day match > hour within 2h > weekend match > recency.
func (s *Store) QuerySimilar(ctx snapshot.Context, situation string, limit int) ([]ActionRecord, error) {
	weekend := 0
	if ctx.IsWeekend {
		weekend = 1
	}

	rows, err := s.db.Query(
		`SELECT id, timestamp, hour, day_of_week, is_weekend, time_of_day,
		        battery_percent, situation, action_taken, action_params,
		        success, execution_time_ms, context_json
		 FROM action_history
		 WHERE situation = ? AND success = 1
		 ORDER BY
			CASE
				WHEN time_of_day = ? THEN 3
				WHEN ABS(hour - ?) <= 2 THEN 2
				WHEN is_weekend = ? THEN 1
				ELSE 0
			END DESC,
			timestamp DESC
		 LIMIT ?`,
		situation, ctx.TimeOfDay, ctx.Hour, weekend, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query similar: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// #endregion query-similar

// #region aggregate

// Aggregate computes outcome statistics for one (situation, action) pair.
func (s *Store) Aggregate(situation, action string) (Stats, error) {
	var total, successes sql.NullInt64
	var avgExec sql.NullFloat64

	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		        AVG(CASE WHEN success = 1 THEN execution_time_ms ELSE NULL END)
		 FROM action_history
		 WHERE situation = ? AND action_taken = ?`,
		situation, action,
	).Scan(&total, &successes, &avgExec)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate: %w", err)
	}

	stats := Stats{
		Total:     int(total.Int64),
		Successes: int(successes.Int64),
		AvgExecMs: avgExec.Float64,
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Total)
	}
	return stats, nil
}

// #endregion aggregate

// #region pattern-frequency

// PatternFrequency counts successful (situation, action) occurrences within
// the trailing time window.
func (s *Store) PatternFrequency(situation, action string, windowDays int) (int, error) {
	since := time.Now().AddDate(0, 0, -windowDays).Format(time.RFC3339Nano)

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM action_history
		 WHERE situation = ? AND action_taken = ? AND timestamp >= ? AND success = 1`,
		situation, action, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pattern frequency: %w", err)
	}
	return count, nil
}

// #endregion pattern-frequency

// #region recent

// RecentActions returns the most recent records, newest first.
func (s *Store) RecentActions(limit int) ([]ActionRecord, error) {
	return s.recent(limit, false)
}

// RecentSuccessful returns the most recent successful records, newest first.
// Workflow detection scans these for repeated sequences.
func (s *Store) RecentSuccessful(limit int) ([]ActionRecord, error) {
	return s.recent(limit, true)
}

func (s *Store) recent(limit int, successOnly bool) ([]ActionRecord, error) {
	q := `SELECT id, timestamp, hour, day_of_week, is_weekend, time_of_day,
	             battery_percent, situation, action_taken, action_params,
	             success, execution_time_ms, context_json
	      FROM action_history `
	if successOnly {
		q += `WHERE success = 1 `
	}
	q += `ORDER BY timestamp DESC LIMIT ?`

	rows, err := s.db.Query(q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent actions: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// #endregion recent

// #region situation-counts

// SituationCounts lists situations (excluding one) with at least minFreq
// successful records, most frequent first.
func (s *Store) SituationCounts(exclude string, minFreq int) ([]SituationCount, error) {
	rows, err := s.db.Query(
		`SELECT situation, COUNT(*) as frequency
		 FROM action_history
		 WHERE situation != ? AND situation != '' AND success = 1
		 GROUP BY situation
		 HAVING frequency >= ?
		 ORDER BY frequency DESC`,
		exclude, minFreq,
	)
	if err != nil {
		return nil, fmt.Errorf("situation counts: %w", err)
	}
	defer rows.Close()

	var counts []SituationCount
	for rows.Next() {
		var c SituationCount
		if err := rows.Scan(&c.Situation, &c.Frequency); err != nil {
			return nil, fmt.Errorf("scan situation count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// #endregion situation-counts

// #region top-actions

// TopActions returns up to limit actions for a situation whose success rate
// exceeds minRate with at least minFreq occurrences, ordered by success rate
// then frequency.
func (s *Store) TopActions(situation string, minRate float64, minFreq, limit int) ([]ActionCount, error) {
	rows, err := s.db.Query(
		`SELECT action_taken, COUNT(*) as frequency,
		        AVG(CASE WHEN success = 1 THEN 1.0 ELSE 0.0 END) as success_rate
		 FROM action_history
		 WHERE situation = ?
		 GROUP BY action_taken
		 HAVING success_rate > ? AND frequency >= ?
		 ORDER BY success_rate DESC, frequency DESC
		 LIMIT ?`,
		situation, minRate, minFreq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top actions: %w", err)
	}
	defer rows.Close()

	var actions []ActionCount
	for rows.Next() {
		var a ActionCount
		if err := rows.Scan(&a.Action, &a.Frequency, &a.SuccessRate); err != nil {
			return nil, fmt.Errorf("scan top action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// #endregion top-actions

// #region successful-by-action

// SuccessfulByAction returns recent successful uses of one action across all
// situations, newest first. Parameter optimization mines these.
func (s *Store) SuccessfulByAction(action string, limit int) ([]ActionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, hour, day_of_week, is_weekend, time_of_day,
		        battery_percent, situation, action_taken, action_params,
		        success, execution_time_ms, context_json
		 FROM action_history
		 WHERE action_taken = ? AND success = 1
		 ORDER BY timestamp DESC LIMIT ?`,
		action, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("successful by action: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// #endregion successful-by-action

// #region learning-stats

// LearningStats summarizes the whole history table.
func (s *Store) LearningStats() (LearningStats, error) {
	var total, situations, actions, successes sql.NullInt64
	var avgExec sql.NullFloat64

	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COUNT(DISTINCT situation),
		        COUNT(DISTINCT action_taken),
		        SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		        AVG(execution_time_ms)
		 FROM action_history`,
	).Scan(&total, &situations, &actions, &successes, &avgExec)
	if err != nil {
		return LearningStats{}, fmt.Errorf("learning stats: %w", err)
	}

	stats := LearningStats{
		TotalActions:     int(total.Int64),
		UniqueSituations: int(situations.Int64),
		UniqueActions:    int(actions.Int64),
		AvgExecMs:        avgExec.Float64,
	}
	if stats.TotalActions > 0 {
		stats.SuccessRate = float64(successes.Int64) / float64(stats.TotalActions)
	}
	return stats, nil
}

// #endregion learning-stats

// #region prune

// Prune deletes records older than the retention window and reclaims space.
func (s *Store) Prune(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)

	res, err := s.db.Exec(`DELETE FROM action_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return deleted, fmt.Errorf("vacuum: %w", err)
	}
	return deleted, nil
}

// #endregion prune

// #region scan

func scanRecords(rows *sql.Rows) ([]ActionRecord, error) {
	var records []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		var tsStr string
		var dow, tod, situation sql.NullString
		var weekend, battery, hour sql.NullInt64
		var paramsJSON, ctxJSON sql.NullString
		var success int
		var execMs sql.NullInt64

		if err := rows.Scan(
			&rec.ID, &tsStr, &hour, &dow, &weekend, &tod,
			&battery, &situation, &rec.Action, &paramsJSON,
			&success, &execMs, &ctxJSON,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		rec.Hour = int(hour.Int64)
		rec.DayOfWeek = dow.String
		rec.IsWeekend = weekend.Int64 == 1
		rec.TimeOfDay = tod.String
		rec.BatteryPercent = int(battery.Int64)
		rec.Situation = situation.String
		rec.Outcome = Outcome(success)
		rec.ExecutionMs = execMs.Int64

		if paramsJSON.Valid && paramsJSON.String != "" {
			if err := json.Unmarshal([]byte(paramsJSON.String), &rec.Params); err != nil {
				return nil, fmt.Errorf("unmarshal params: %w", err)
			}
		}
		if ctxJSON.Valid && ctxJSON.String != "" {
			if err := json.Unmarshal([]byte(ctxJSON.String), &rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal context: %w", err)
			}
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion scan
