package ingest

// State is the ingestion pipeline lifecycle state.
type State int32

const (
	// StateStarting covers checkpoint load and the initial subscription.
	StateStarting State = iota
	// StateCatchingUp means the pipeline is replaying a historical backlog.
	StateCatchingUp
	// StateStreaming means the pipeline is at the chain tip.
	StateStreaming
	// StateRecovering means a transient source fault is being retried.
	StateRecovering
	// StateStopped is terminal, after shutdown or a fatal error.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateCatchingUp:
		return "catching_up"
	case StateStreaming:
		return "streaming"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// AllStates lists every pipeline state, for the state gauge.
var AllStates = []string{
	StateStarting.String(),
	StateCatchingUp.String(),
	StateStreaming.String(),
	StateRecovering.String(),
	StateStopped.String(),
}
