package robot

import (
	"errors"
	"fmt"

	"github.com/gwillem/armctl/pkg/servolink"
)

var (
	// ErrTransport means the endpoint could not be opened at the requested baud rate.
	ErrTransport = errors.New("transport error")
	// ErrCommunication means a request/response round trip did not complete.
	ErrCommunication = errors.New("communication error")
	// ErrProtocol means the servo answered with a nonzero status.
	ErrProtocol = errors.New("protocol error")
	// ErrModeMismatch means a command does not fit the motor's current mode.
	ErrModeMismatch = errors.New("mode mismatch")
	// ErrCalibrationTimeout means stall detection did not converge in time.
	ErrCalibrationTimeout = errors.New("calibration timeout")
	// ErrCalibrationRange means the backed-off limits left no usable range.
	ErrCalibrationRange = errors.New("calibration range too small")
	// ErrMotionTimeout means a motor did not stop moving in time.
	ErrMotionTimeout = errors.New("motion timeout")
	// ErrUnknownMotor means the id is not in the session's registry.
	ErrUnknownMotor = errors.New("unknown motor")
	// ErrInvalidID means the id cannot address a single motor.
	ErrInvalidID = errors.New("invalid motor id")
	// ErrClosed means the session's link has been closed.
	ErrClosed = errors.New("session closed")
)

// classify tags a link error with ErrProtocol or ErrCommunication.
func classify(op string, id int, err error) error {
	if err == nil {
		return nil
	}
	var devErr *servolink.DeviceError
	if errors.As(err, &devErr) {
		return fmt.Errorf("%s motor %d: %w: %w", op, id, ErrProtocol, err)
	}
	return fmt.Errorf("%s motor %d: %w: %w", op, id, ErrCommunication, err)
}
