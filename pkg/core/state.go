package core

// State is a step of the pipeline state machine.
type State uint8

const (
	StateInit State = iota
	StateDataFetch
	StateNormalize
	StateWriteWorkspace
	StateDefinitionDiscovery
	StateTypeset
	StateRasterize
	StateBackgroundComposite
	StateFinalize
	StateDone
	StateError
)

var stateNames = [...]string{
	StateInit:                "init",
	StateDataFetch:           "data_fetch",
	StateNormalize:           "normalize",
	StateWriteWorkspace:      "write_workspace",
	StateDefinitionDiscovery: "definition_discovery",
	StateTypeset:             "typeset",
	StateRasterize:           "rasterize",
	StateBackgroundComposite: "background_composite",
	StateFinalize:            "finalize",
	StateDone:                "done",
	StateError:               "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateError }
