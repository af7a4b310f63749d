package session

type State int

const (
	Idle State = iota
	DeviceInitializing
	Ready
	SessionStarting
	SessionReady
	Recording
	Stopping
	Processing
)

var stateNames = [...]string{
	Idle:               "idle",
	DeviceInitializing: "device initializing",
	Ready:              "ready",
	SessionStarting:    "session starting",
	SessionReady:       "session ready",
	Recording:          "recording",
	Stopping:           "stopping",
	Processing:         "processing",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Trigger is a user intent.
type Trigger int

const (
	Activate Trigger = iota
	Retry
	Start
	Stop
	Process
	Deactivate
)

var triggerNames = [...]string{
	Activate:   "activate",
	Retry:      "retry",
	Start:      "start",
	Stop:       "stop",
	Process:    "process",
	Deactivate: "deactivate",
}

func (t Trigger) String() string {
	if t < 0 || int(t) >= len(triggerNames) {
		return "unknown"
	}
	return triggerNames[t]
}

var transitions = map[State][]Trigger{
	Idle:               {Activate, Deactivate},
	DeviceInitializing: {Deactivate},
	Ready:              {Activate, Retry, Deactivate},
	SessionStarting:    {Deactivate},
	SessionReady:       {Start, Deactivate},
	Recording:          {Stop, Process, Deactivate},
	Stopping:           {Deactivate},
	Processing:         {Deactivate},
}

// Allows reports whether t may be applied in state s.
func (s State) Allows(t Trigger) bool {
	for _, allowed := range transitions[s] {
		if allowed == t {
			return true
		}
	}
	return false
}

// Live reports whether a capture source is held in state s.
func (s State) Live() bool {
	return s != Idle && s != DeviceInitializing
}
