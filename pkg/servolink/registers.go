// Package servolink talks to a bus of Feetech STS servos.
//
// It exposes raw register reads and writes on top of the feetech bus;
// everything above that (modes, limits, calibration) lives in package robot.
package servolink

import "github.com/hipsterbrown/feetech-servo/feetech"

// Register is an address in the STS memory table.
type Register byte

// EEPROM registers. Writes require the lock register to be cleared first.
const (
	RegModel         Register = 3
	RegID            Register = 5
	RegBaudRate      Register = 6
	RegMinAngleLimit Register = 9
	RegMaxAngleLimit Register = 11
	RegCWDeadZone    Register = 26
	RegCCWDeadZone   Register = 27
	RegOffset        Register = 31
	RegMode          Register = 33
)

// SRAM registers.
const (
	RegTorqueEnable       Register = 40
	RegAcceleration       Register = 41
	RegGoalPosition       Register = 42
	RegGoalTime           Register = 44
	RegGoalSpeed          Register = 46
	RegLock               Register = 55
	RegPresentPosition    Register = 56
	RegPresentSpeed       Register = 58
	RegPresentLoad        Register = 60
	RegPresentVoltage     Register = 62
	RegPresentTemperature Register = 63
	RegMoving             Register = 66
	RegPresentCurrent     Register = 69
)

// Values for RegMode.
const (
	ModePosition byte = 0
	ModeWheel    byte = 1
	ModeOpenLoop byte = 2
)

// Values for RegLock.
const (
	EEPROMUnlocked byte = 0
	EEPROMLocked   byte = 1
)

// MaxID is the highest addressable servo id.
const MaxID = feetech.MaxServoID

// SupportedBaud reports whether the STS servos can run at baud.
func SupportedBaud(baud int) bool {
	return feetech.ModelSTS3215.BaudRateIndex(baud) >= 0
}

// EncodeSigned converts v into the sign-magnitude form the servo expects,
// with the sign carried in bit signBit.
func EncodeSigned(v int, signBit uint) uint16 {
	if v < 0 {
		return uint16(-v)&^(1<<signBit) | 1<<signBit
	}
	return uint16(v) &^ (1 << signBit)
}

// DecodeSigned converts a sign-magnitude register value into an int.
func DecodeSigned(raw uint16, signBit uint) int {
	if raw&(1<<signBit) != 0 {
		return -int(raw &^ (1 << signBit))
	}
	return int(raw)
}

// LoByte returns the low byte of v.
func LoByte(v uint16) byte { return byte(v & 0xFF) }

// HiByte returns the high byte of v.
func HiByte(v uint16) byte { return byte(v >> 8) }

// Word assembles a little-endian register pair.
func Word(lo, hi byte) uint16 { return uint16(lo) | uint16(hi)<<8 }
