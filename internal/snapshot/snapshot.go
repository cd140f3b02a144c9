package snapshot

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// #region clock-collector

// ClockCollector builds snapshots from the local clock plus an optional
// battery probe. Now and Battery may be nil; they default to time.Now and
// the env-var probe.
type ClockCollector struct {
	Now     func() time.Time
	Battery BatteryProbe
}

// NewClockCollector returns a collector wired to the real clock and the
// env-var battery probe.
func NewClockCollector() *ClockCollector {
	return &ClockCollector{Now: time.Now, Battery: EnvBatteryProbe}
}

// Current builds a snapshot for the given situation and recent action list.
func (c *ClockCollector) Current(situation string, recentActions []string) Context {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	snap := FromTime(now)
	snap.Situation = situation
	snap.RecentActions = recentActions

	probe := c.Battery
	if probe == nil {
		probe = EnvBatteryProbe
	}
	if pct, charging, ok := probe(); ok {
		snap.BatteryPercent = pct
		snap.IsCharging = charging
	}

	return snap
}

// EnvBatteryProbe reads battery state from BATTERY_PERCENT / BATTERY_CHARGING.
// Hosts with real device access replace this with their own probe.
func EnvBatteryProbe() (int, bool, bool) {
	v := os.Getenv("BATTERY_PERCENT")
	if v == "" {
		return 0, false, false
	}
	pct, err := strconv.Atoi(v)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false, false
	}
	charging := os.Getenv("BATTERY_CHARGING") == "true" || os.Getenv("BATTERY_CHARGING") == "1"
	return pct, charging, true
}

// #endregion clock-collector

// #region from-time

// FromTime derives the temporal fields of a snapshot from a wall-clock time.
// Battery is left unknown (-1).
func FromTime(now time.Time) Context {
	return Context{
		Timestamp:      now,
		Hour:           now.Hour(),
		Minute:         now.Minute(),
		DayOfWeek:      strings.ToLower(now.Weekday().String()),
		IsWeekend:      now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
		TimeOfDay:      TimeOfDay(now.Hour()),
		BatteryPercent: -1,
	}
}

// #endregion from-time

// #region buckets

// TimeOfDay buckets an hour into morning/afternoon/evening/night.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// TimeCategory buckets an hour into meal/activity windows for pattern matching.
func TimeCategory(hour int) string {
	switch {
	case hour >= 6 && hour < 10:
		return "breakfast_time"
	case hour >= 12 && hour < 14:
		return "lunch_time"
	case hour >= 18 && hour < 21:
		return "dinner_time"
	case hour >= 21 || hour < 6:
		return "late_night"
	default:
		return "work_hours"
	}
}

// #endregion buckets

// #region similarity

// Similarity scores how alike two snapshots are, in [0,1].
// Weights: time-of-day 0.3 (hour within 2h gets 0.15), day-of-week 0.2,
// weekend 0.1, battery closeness 0.1, situation 0.3.
func Similarity(a, b Context) float64 {
	score := 0.0

	if a.TimeOfDay == b.TimeOfDay {
		score += 0.3
	} else if abs(a.Hour-b.Hour) <= 2 {
		score += 0.15
	}

	if a.DayOfWeek == b.DayOfWeek {
		score += 0.2
	}

	if a.IsWeekend == b.IsWeekend {
		score += 0.1
	}

	if a.BatteryPercent >= 0 && b.BatteryPercent >= 0 {
		diff := abs(a.BatteryPercent - b.BatteryPercent)
		score += 0.1 * (1 - float64(diff)/100.0)
	}

	if a.Situation == b.Situation {
		score += 0.3
	}

	return score
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// #endregion similarity
