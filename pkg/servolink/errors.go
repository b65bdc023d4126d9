package servolink

import (
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// CommError reports a request/response round trip that did not complete.
type CommError struct {
	ID  int
	Op  string
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("servo %d %s: %v", e.ID, e.Op, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

// Timeout reports whether the servo never answered in time.
func (e *CommError) Timeout() bool {
	return feetech.IsTimeout(e.Err) || feetech.IsNoResponse(e.Err)
}

// DeviceError reports a completed round trip where the servo set a nonzero
// status byte.
type DeviceError struct {
	ID     int
	Status feetech.StatusError
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("servo %d: %v", e.ID, e.Status)
}

// Unwrap exposes the status so single flags match with errors.Is.
func (e *DeviceError) Unwrap() error { return e.Status }
