package metadata

import "fmt"

// Status is the operational state of an asset.
type Status string

const (
	StatusAvailable        Status = "available"
	StatusInUse            Status = "in_use"
	StatusBorrowed         Status = "borrowed"
	StatusInTransit        Status = "in_transit"
	StatusUnderMaintenance Status = "under_maintenance"
	StatusRetired          Status = "retired"
	StatusDisposed         Status = "disposed"
	StatusUnavailable      Status = "unavailable" // not yet authorized
)

func NewStatus(value string) (Status, error) {
	status := Status(value)
	if !status.isValid() {
		return "", fmt.Errorf("invalid status: %s", value)
	}
	return status, nil
}

func (s Status) isValid() bool {
	switch s {
	case StatusAvailable, StatusInUse, StatusBorrowed, StatusInTransit,
		StatusUnderMaintenance, StatusRetired, StatusDisposed, StatusUnavailable:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
