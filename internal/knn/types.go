package knn

// #region config

// Config holds voting parameters.
type Config struct {
	K                int     // neighbors considered in the vote
	MinConfidence    float64 // abstain below this
	WorkflowMinCount int     // occurrences needed to suggest a workflow step
}

// DefaultConfig returns the standard voting parameters.
func DefaultConfig() Config {
	return Config{
		K:                10,
		MinConfidence:    0.7,
		WorkflowMinCount: 5,
	}
}

// #endregion config

// #region vote

// Vote is the winning action from a weighted nearest-neighbor vote.
type Vote struct {
	Action     string
	Confidence float64
	Params     map[string]string
	Reason     string
	SampleSize int // how many of the top-k voted for the winner
}

// #endregion vote

// #region workflow

// Workflow is a detected action sequence continuation.
type Workflow struct {
	Pattern     []string
	NextAction  string
	Confidence  float64
	Occurrences int
}

// #endregion workflow
