package domain

// Status is the lifecycle state of a chain run.
type Status string

const (
	StatusReady            Status = "ready"             // Built, never run
	StatusStart            Status = "start"             // Step in progress
	StatusPauseForInput    Status = "pause_for_input"   // Suspended until missing parameters arrive
	StatusPauseForWakeUp   Status = "pause_for_wake_up" // Suspended until an external wake-up delivers values
	StatusError            Status = "error"             // Step failed, not yet finalized
	StatusFinishedNormal   Status = "finished_normal"   // Terminal
	StatusFinishedAbnormal Status = "finished_abnormal" // Terminal after an error
)

// IsPaused reports whether the run is suspended and may be resumed.
func (s Status) IsPaused() bool {
	return s == StatusPauseForInput || s == StatusPauseForWakeUp
}

// IsFinished reports whether the run reached a terminal status.
func (s Status) IsFinished() bool {
	return s == StatusFinishedNormal || s == StatusFinishedAbnormal
}
