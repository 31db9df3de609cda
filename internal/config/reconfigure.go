package config

import "fmt"

// ReconfigureKind tells long-lived tasks how the committee changed.
type ReconfigureKind uint8

const (
	// NewEpoch starts a new epoch with a new committee.
	NewEpoch ReconfigureKind = iota + 1

	// UpdateCommittee changes addresses within the current epoch.
	UpdateCommittee

	// Shutdown asks every task to stop.
	Shutdown
)

func (k ReconfigureKind) String() string {
	switch k {
	case NewEpoch:
		return "new_epoch"
	case UpdateCommittee:
		return "update_committee"
	case Shutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("reconfigure(%d)", uint8(k))
	}
}

// ReconfigureNotification is broadcast on committee change or shutdown.
// Committee is nil for Shutdown.
type ReconfigureNotification struct {
	Kind      ReconfigureKind
	Committee *Committee
}

// IsShutdown reports whether the notification asks tasks to stop.
func (n ReconfigureNotification) IsShutdown() bool {
	return n.Kind == Shutdown
}

// Epoch returns the epoch carried by the notification, 0 for Shutdown.
func (n ReconfigureNotification) Epoch() uint64 {
	if n.Committee == nil {
		return 0
	}

	return n.Committee.Epoch
}
