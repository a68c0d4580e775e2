package process

// State represents process lifecycle state
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateTerminated
)

var stateNames = [...]string{"ready", "running", "blocked", "terminated"}

// String returns state name
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsAlive returns true for any state but StateTerminated
func (s State) IsAlive() bool {
	return s != StateTerminated
}
