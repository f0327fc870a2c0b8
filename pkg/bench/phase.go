package bench

// Phase is a step of a trial. A trial moves forward through the phases in
// declaration order and ends in Done or Failed.
type Phase int

const (
	Idle Phase = iota
	Launching
	BaselineWait
	OpeningTabs
	Stabilizing
	Sampling
	TearingDown
	Done
	Failed
)

var phaseNames = [...]string{
	Idle:         "idle",
	Launching:    "launching",
	BaselineWait: "baseline-wait",
	OpeningTabs:  "opening-tabs",
	Stabilizing:  "stabilizing",
	Sampling:     "sampling",
	TearingDown:  "tearing-down",
	Done:         "done",
	Failed:       "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
