package servolink

import (
	"context"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds one request/response round trip.
const DefaultTimeout = 100 * time.Millisecond

// Bus implements Link on a feetech bus.
type Bus struct {
	bus *feetech.Bus
}

// Open opens a serial servo bus at the given baud rate.
func Open(name string, baud int, timeout time.Duration) (*Bus, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b, err := feetech.NewBus(feetech.BusConfig{
		Port:     name,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return &Bus{bus: b}, nil
}

// NewBus wraps an already open transport.
func NewBus(t feetech.Transport, timeout time.Duration) (*Bus, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b, err := feetech.NewBus(feetech.BusConfig{
		Transport: t,
		Protocol:  feetech.ProtocolSTS,
		Timeout:   timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new bus")
	}
	return &Bus{bus: b}, nil
}

// Close closes the underlying transport.
func (b *Bus) Close() error {
	return b.bus.Close()
}

// Ping implements Link.
func (b *Bus) Ping(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return &CommError{ID: id, Op: "ping", Err: err}
	}
	if _, err := b.bus.Ping(ctx, id); err != nil {
		return wrap("ping", id, err)
	}
	return nil
}

// Read implements Link.
func (b *Bus) Read(ctx context.Context, id int, reg Register, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CommError{ID: id, Op: "read", Err: err}
	}
	data, err := b.bus.ReadRegister(ctx, id, byte(reg), n)
	if err != nil {
		return nil, wrap("read", id, err)
	}
	if len(data) != n {
		return nil, &CommError{ID: id, Op: "read", Err: errors.Errorf("expected %d bytes, got %d", n, len(data))}
	}
	return data, nil
}

// Write implements Link.
func (b *Bus) Write(ctx context.Context, id int, reg Register, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &CommError{ID: id, Op: "write", Err: err}
	}
	if err := b.bus.WriteRegister(ctx, id, byte(reg), data); err != nil {
		return wrap("write", id, err)
	}
	return nil
}

// wrap turns a nonzero servo status into a DeviceError and anything else
// into a CommError.
func wrap(op string, id int, err error) error {
	var servoErr *feetech.ServoError
	if errors.As(err, &servoErr) && servoErr.Status.HasError() {
		return &DeviceError{ID: id, Status: servoErr.Status}
	}
	var status feetech.StatusError
	if errors.As(err, &status) && status.HasError() {
		return &DeviceError{ID: id, Status: status}
	}
	return &CommError{ID: id, Op: op, Err: err}
}
