package servolink

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sts = feetech.NewProtocol(feetech.ProtocolSTS)

// statusPacket builds a servo answer: FF FF id len status params.. checksum.
func statusPacket(id int, status feetech.StatusError, params ...byte) []byte {
	return sts.Encode(feetech.Packet{ID: byte(id), Instruction: byte(status), Parameters: params})
}

// replies serves one canned answer per read, then nothing.
func replies(answers ...[]byte) *feetech.MockTransport {
	m := &feetech.MockTransport{}
	m.ReadFunc = func(p []byte) (int, error) {
		if len(answers) == 0 {
			return 0, io.EOF
		}
		n := copy(p, answers[0])
		answers = answers[1:]
		return n, nil
	}
	return m
}

func newTestBus(t *testing.T, tr feetech.Transport) *Bus {
	t.Helper()
	b, err := NewBus(tr, 10*time.Millisecond)
	require.NoError(t, err)
	return b
}

func TestReadWord(t *testing.T) {
	tr := replies(statusPacket(1, 0, 0x00, 0x08))
	b := newTestBus(t, tr)

	v, err := ReadWord(context.Background(), b, 1, RegPresentPosition)
	require.NoError(t, err)
	require.Equal(t, uint16(2048), v)
	require.Equal(t, sts.ReadPacket(1, byte(RegPresentPosition), 2), tr.WriteData)
	assert.True(t, tr.Flushed)
}

func TestReadDeviceError(t *testing.T) {
	b := newTestBus(t, replies(statusPacket(1, feetech.ErrOverload, 0x00)))

	_, err := ReadByte(context.Background(), b, 1, RegMode)
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, 1, devErr.ID)
	assert.Equal(t, feetech.ErrOverload, devErr.Status)
	assert.ErrorIs(t, err, feetech.ErrOverload)
	assert.Contains(t, err.Error(), "overload")
}

func TestReadTimeout(t *testing.T) {
	b := newTestBus(t, replies())

	_, err := ReadByte(context.Background(), b, 7, RegMode)
	var commErr *CommError
	require.True(t, errors.As(err, &commErr))
	assert.True(t, commErr.Timeout())
	assert.Equal(t, 7, commErr.ID)
	assert.Equal(t, "read", commErr.Op)
}

func TestReadBadChecksum(t *testing.T) {
	pkt := statusPacket(1, 0, 0x01)
	pkt[len(pkt)-1]++
	b := newTestBus(t, replies(pkt))

	_, err := ReadByte(context.Background(), b, 1, RegMode)
	var commErr *CommError
	require.True(t, errors.As(err, &commErr))
	assert.False(t, commErr.Timeout())
}

func TestReadWrongServo(t *testing.T) {
	b := newTestBus(t, replies(statusPacket(4, 0, 0x01)))

	_, err := ReadByte(context.Background(), b, 1, RegMode)
	var commErr *CommError
	require.True(t, errors.As(err, &commErr))
	assert.Equal(t, 1, commErr.ID)
}

func TestWriteByte(t *testing.T) {
	tr := replies(statusPacket(6, 0))
	b := newTestBus(t, tr)

	require.NoError(t, WriteByte(context.Background(), b, 6, RegID, 12))
	require.Equal(t, sts.WritePacket(6, byte(RegID), []byte{12}), tr.WriteData)
}

func TestWriteDeviceError(t *testing.T) {
	b := newTestBus(t, replies(statusPacket(2, feetech.ErrAngleLimit)))

	err := b.Write(context.Background(), 2, RegAcceleration, MotionBlock(50, 5000, 100))
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, feetech.ErrAngleLimit, devErr.Status)
}

func TestPing(t *testing.T) {
	tr := replies(statusPacket(1, 0), statusPacket(1, 0, 0x09, 0x03))
	b := newTestBus(t, tr)

	require.NoError(t, b.Ping(context.Background(), 1))
	require.Equal(t, sts.PingPacket(1), tr.WriteData[:6])
}

func TestCanceledContext(t *testing.T) {
	tr := replies()
	b := newTestBus(t, tr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Ping(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, tr.WriteData)
}

func TestClose(t *testing.T) {
	tr := replies()
	b := newTestBus(t, tr)
	require.NoError(t, b.Close())
	require.True(t, tr.Closed)
}

func TestRegistersMatchLibrary(t *testing.T) {
	tests := []struct {
		ours Register
		lib  feetech.Register
	}{
		{RegID, feetech.RegID},
		{RegMinAngleLimit, feetech.RegMinAngleLimit},
		{RegMaxAngleLimit, feetech.RegMaxAngleLimit},
		{RegMode, feetech.RegOperatingMode},
		{RegTorqueEnable, feetech.RegTorqueEnable},
		{RegAcceleration, feetech.RegAcceleration},
		{RegGoalPosition, feetech.RegGoalPosition},
		{RegGoalSpeed, feetech.RegGoalVelocity},
		{RegLock, feetech.RegLock},
		{RegPresentPosition, feetech.RegPresentPosition},
		{RegPresentSpeed, feetech.RegPresentVelocity},
		{RegPresentLoad, feetech.RegPresentLoad},
		{RegPresentVoltage, feetech.RegPresentVoltage},
		{RegPresentTemperature, feetech.RegPresentTemp},
		{RegMoving, feetech.RegMoving},
		{RegPresentCurrent, feetech.RegPresentCurrent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.lib.Address, byte(tt.ours))
	}
}

func TestSupportedBaud(t *testing.T) {
	assert.True(t, SupportedBaud(1_000_000))
	assert.True(t, SupportedBaud(115_200))
	assert.False(t, SupportedBaud(9_600))
}

func TestSigned(t *testing.T) {
	tests := []struct {
		v   int
		raw uint16
	}{
		{0, 0x0000},
		{1000, 0x03E8},
		{-1000, 0x83E8},
		{-1, 0x8001},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.raw, EncodeSigned(tt.v, 15), "encode %d", tt.v)
		assert.Equal(t, tt.v, DecodeSigned(tt.raw, 15), "decode 0x%04x", tt.raw)
	}
}

func TestMotionBlock(t *testing.T) {
	require.Equal(t,
		[]byte{50, 0xAC, 0x0D, 0, 0, 0xF4, 0x01},
		MotionBlock(50, 3500, 500))
}
