package walletsync

// State is a stage of a sync run.
type State int

const (
	StateFetching State = iota
	StateClassifying
	StateSynthesizing
	StateReconciling
	StateFiltering
	StateSubmitting
	StateReporting
	StateCompleted
	StateCompletedWithFailures
	StateAborted
)

var stateNames = [...]string{
	StateFetching:              "fetching",
	StateClassifying:           "classifying",
	StateSynthesizing:          "synthesizing",
	StateReconciling:           "reconciling",
	StateFiltering:             "filtering",
	StateSubmitting:            "submitting",
	StateReporting:             "reporting",
	StateCompleted:             "completed",
	StateCompletedWithFailures: "completed-with-partial-failures",
	StateAborted:               "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s >= StateCompleted
}
