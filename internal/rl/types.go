package rl

// #region config

// Config holds the Q-learning constants.
type Config struct {
	LearningRate float64 // alpha
	Discount     float64 // gamma
	Epsilon      float64 // exploration probability
}

// DefaultConfig returns the standard learning constants.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.1,
		Discount:     0.9,
		Epsilon:      0.2,
	}
}

// #endregion config

// #region selection

// Selection is the outcome of one epsilon-greedy action pick.
type Selection struct {
	Action     string
	QValue     float64
	Method     string // "explore" | "exploit"
	StateKey   string
	Confidence float64 // min(|QValue|, 1)
}

// #endregion selection

// #region stats

// Stats reports learner activity counters.
type Stats struct {
	LoadedValues  int
	Updates       int
	Explorations  int
	Exploitations int
}

// #endregion stats
