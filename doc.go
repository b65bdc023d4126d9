// Package armctl controls and calibrates servo-bus robot arms built from
// Feetech STS servos, such as the SO-101.
//
// # Installation
//
//	go install github.com/gwillem/armctl/cmd/armctl@latest
//
// # Usage
//
// Pick the serial port once:
//
//	armctl setup
//
// Find each motor's mechanical limits by stall detection:
//
//	armctl calibrate
//
// Then inspect and drive the motors:
//
//	armctl telemetry
//	armctl mode --id 3 --mode wheel
//	armctl velocity --id 3 --speed 200
//	armctl move --id 1 --to 2048 --wait
//	armctl monitor
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armctl: CLI for setup, discovery, motion and calibration
//   - pkg/servolink: STS wire protocol over a serial port
//   - pkg/robot: Session, motor registry, modes, limits and calibration
//   - pkg/discovery: Serial port enumeration, probing and hotplug watching
//   - pkg/monitor: Telemetry loop with jog commands
package armctl
