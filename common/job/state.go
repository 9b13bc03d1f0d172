package job

// State is the lifecycle state of a Job.
//
//	Created -> Queued -> Sent -> Completed
//	              ^        |
//	              +--------+  (the owning connection failed; the job is rescheduled elsewhere)
//
// Discarded is only reachable when the whole system shuts down with the job still outstanding.
type State int32

const (
	Created State = iota
	Queued
	Sent
	Completed
	Discarded
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Queued:
		return "Queued"
	case Sent:
		return "Sent"
	case Completed:
		return "Completed"
	case Discarded:
		return "Discarded"
	default:
		return "Unknown"
	}
}
