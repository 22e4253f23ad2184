package orchestrator

type State int

const (
	Idle State = iota
	Authorizing
	Patching
	Launching
	Running
	Completing
	ForceTerminating
	Cleanup
	Done
)

var stateNames = [...]string{
	Idle:             "idle",
	Authorizing:      "authorizing",
	Patching:         "patching",
	Launching:        "launching",
	Running:          "running",
	Completing:       "completing",
	ForceTerminating: "force_terminating",
	Cleanup:          "cleanup",
	Done:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// next lists the states reachable from each state. Completing follows a
// natural child exit and ForceTerminating follows a completion trigger or
// cancellation. Cleanup is reachable from everywhere because every exit path
// goes through it.
var next = map[State][]State{
	Idle:             {Authorizing},
	Authorizing:      {Patching},
	Patching:         {Launching},
	Launching:        {Running},
	Running:          {Completing, ForceTerminating},
	Completing:       {},
	ForceTerminating: {},
	Cleanup:          {Done},
	Done:             {},
}

func canTransition(from, to State) bool {
	if to == Cleanup {
		return from != Cleanup && from != Done
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
