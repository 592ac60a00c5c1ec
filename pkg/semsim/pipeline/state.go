package pipeline

// State is a pipeline lifecycle state.
type State int

const (
	Initializing State = iota
	Iterating
	Flushing
	Finalizing
	Done
	Aborted
)

var stateNames = [...]string{
	Initializing: "initializing",
	Iterating:    "iterating",
	Flushing:     "flushing",
	Finalizing:   "finalizing",
	Done:         "done",
	Aborted:      "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Done || s == Aborted
}
