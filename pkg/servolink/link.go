package servolink

import "context"

// Link is a half-duplex request/response connection to a servo bus.
//
// Implementations are not required to be safe for concurrent use; callers
// must serialize access to a single Link.
type Link interface {
	// Read reads n bytes starting at reg from servo id.
	Read(ctx context.Context, id int, reg Register, n int) ([]byte, error)
	// Write writes data starting at reg on servo id and waits for the status packet.
	Write(ctx context.Context, id int, reg Register, data []byte) error
	// Ping checks that servo id answers.
	Ping(ctx context.Context, id int) error
	Close() error
}

// ReadByte reads a single byte register.
func ReadByte(ctx context.Context, l Link, id int, reg Register) (byte, error) {
	data, err := l.Read(ctx, id, reg, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReadWord reads a little-endian two byte register.
func ReadWord(ctx context.Context, l Link, id int, reg Register) (uint16, error) {
	data, err := l.Read(ctx, id, reg, 2)
	if err != nil {
		return 0, err
	}
	return Word(data[0], data[1]), nil
}

// WriteByte writes a single byte register.
func WriteByte(ctx context.Context, l Link, id int, reg Register, v byte) error {
	return l.Write(ctx, id, reg, []byte{v})
}

// MotionBlock builds the seven byte block written at RegAcceleration:
// acceleration, goal position, goal time (unused) and goal speed.
func MotionBlock(acc byte, position uint16, speed uint16) []byte {
	return []byte{
		acc,
		LoByte(position), HiByte(position),
		0, 0,
		LoByte(speed), HiByte(speed),
	}
}
