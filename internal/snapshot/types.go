package snapshot

import "time"

// #region context

// Context is a structured snapshot of the conditions a decision is made under.
// BatteryPercent is -1 when the host could not report battery state.
type Context struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
	DayOfWeek string    `json:"day_of_week"` // lowercase weekday name
	IsWeekend bool      `json:"is_weekend"`
	TimeOfDay string    `json:"time_of_day"` // morning | afternoon | evening | night

	BatteryPercent int    `json:"battery_percent"`
	IsCharging     bool   `json:"is_charging"`
	ActiveApp      string `json:"active_app,omitempty"`

	RecentActions       []string `json:"recent_actions,omitempty"`
	Situation           string   `json:"situation,omitempty"`
	DetectionConfidence float64  `json:"detection_confidence,omitempty"`
}

// #endregion context

// #region collector

// Collector builds the current context snapshot. Hosts inject their own
// implementation when they have richer device signals.
type Collector interface {
	Current(situation string, recentActions []string) Context
}

// BatteryProbe reports battery state. ok is false when unavailable.
type BatteryProbe func() (percent int, charging bool, ok bool)

// #endregion collector
