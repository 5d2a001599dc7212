package collab

// ChangeKind identifies what part of the coordinator state changed.
type ChangeKind int

const (
	ChangeSnapshot ChangeKind = iota + 1
	ChangeRoster
	ChangeFocus
	ChangeCursor
	ChangeField
	ChangeFinalized
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSnapshot:
		return "snapshot"
	case ChangeRoster:
		return "roster"
	case ChangeFocus:
		return "focus"
	case ChangeCursor:
		return "cursor"
	case ChangeField:
		return "field"
	case ChangeFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Change describes one applied state change. Field and UserID are set when the change
// concerns a single field or user.
type Change struct {
	Kind   ChangeKind
	Field  string
	UserID string
}
