package debugger

import "fmt"

type EventKind int

const (
	EventStopOnEntry EventKind = iota
	EventStopOnStep
	EventStopOnBreakpoint
	EventBreakpointValidated
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStopOnEntry:
		return "stopOnEntry"
	case EventStopOnStep:
		return "stopOnStep"
	case EventStopOnBreakpoint:
		return "stopOnBreakpoint"
	case EventBreakpointValidated:
		return "breakpointValidated"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is an outbound runtime notification. Breakpoint is set for EventBreakpointValidated,
// HitBreakpoints for EventStopOnBreakpoint and Err for EventError.
type Event struct {
	Kind           EventKind
	Breakpoint     *Breakpoint
	HitBreakpoints []int
	Err            error
}
