package speech

// StatusKind is how a status message is rendered.
type StatusKind string

const (
	Loading StatusKind = "loading"
	Success StatusKind = "success"
	Error   StatusKind = "error"
)

// Status is a user-facing progress message.
type Status struct {
	Message string
	Kind    StatusKind
}

// Notifier receives status updates. Notify may be called from background
// goroutines.
type Notifier interface {
	Notify(Status)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Status)

func (f NotifierFunc) Notify(s Status) { f(s) }

// SessionStatus is the outcome of one Generate call.
type SessionStatus int

const (
	Idle SessionStatus = iota
	InFlight
	Succeeded
	Failed
	Cancelled
)

func (s SessionStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in-flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Phase is what the controller is doing right now.
type Phase int

const (
	PhaseIdle Phase = iota
	GeneratingModel
	GeneratingService
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case GeneratingModel:
		return "generating with model"
	case GeneratingService:
		return "generating with service"
	default:
		return "unknown"
	}
}

// Session describes the most recent generation.
type Session struct {
	ID     int64
	Mode   Mode
	Status SessionStatus
	Err    error
}
