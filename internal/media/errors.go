package media

import "fmt"

// ConfirmationError means the spelled-out confirmation did not match the
// target device. Nothing has touched the disk when this is returned.
type ConfirmationError struct {
	Device       string
	Confirmation string
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirmation %q does not match target device %q; refusing to write",
		e.Confirmation, e.Device)
}

// StateError means an operation was called out of order.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while media is %s", e.Op, e.State)
}
