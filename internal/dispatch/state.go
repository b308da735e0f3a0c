package dispatch

// State is the lifecycle position of one invocation.
type State int32

const (
	// Received indicates the request was accepted.
	Received State = iota
	// Resolving indicates the operation is being looked up.
	Resolving
	// Executing indicates the module is running.
	Executing
	// Succeeded indicates the invocation produced an output.
	Succeeded
	// Failed indicates the invocation ended with a structured error.
	Failed
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Resolving:
		return "resolving"
	case Executing:
		return "executing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }
