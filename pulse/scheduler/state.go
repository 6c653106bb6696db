package scheduler

// LoopState is a state of the scheduler loop
type LoopState string

const (
	StateIdle            LoopState = "IDLE"
	StateLoadingConfig   LoopState = "LOADING_CONFIG"
	StateWaitingSchedule LoopState = "WAITING_SCHEDULE"
	StateBudgetPaused    LoopState = "BUDGET_PAUSED"
	StateSelectingJob    LoopState = "SELECTING_JOB"
	StateDispatching     LoopState = "DISPATCHING"
	StateRecording       LoopState = "RECORDING"
	StateSleeping        LoopState = "SLEEPING"
	StateDraining        LoopState = "DRAINING"
	StateTerminated      LoopState = "TERMINATED"
)

// Waiting reports whether the loop is parked without a job in flight
func (s LoopState) Waiting() bool {
	switch s {
	case StateWaitingSchedule, StateBudgetPaused, StateSleeping:
		return true
	}
	return false
}
