package harvest

type State int

const (
	Idle State = iota
	Triggered
	AwaitingRender
	Harvesting
	Closing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Triggered:
		return "triggered"
	case AwaitingRender:
		return "awaiting_render"
	case Harvesting:
		return "harvesting"
	case Closing:
		return "closing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
