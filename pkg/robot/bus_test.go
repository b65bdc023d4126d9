package robot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armctl/pkg/servolink"
)

// failRead in a scripted sequence makes that read time out.
const failRead = -1

type regKey struct {
	id  int
	reg servolink.Register
}

type busWrite struct {
	id   int
	reg  servolink.Register
	data []byte
}

// simBus is an in-memory servo bus. Each servo has a flat register table;
// scripted sequences override reads of a register until they run out.
type simBus struct {
	mu       sync.Mutex
	regs     map[int]*[256]byte
	scripts  map[regKey][]int
	failW    map[regKey]error
	writes   []busWrite
	reads    map[regKey]int
	closed   bool
	closeCnt int
}

func newSimBus(ids ...int) *simBus {
	b := &simBus{
		regs:    make(map[int]*[256]byte),
		scripts: make(map[regKey][]int),
		failW:   make(map[regKey]error),
		reads:   make(map[regKey]int),
	}
	for _, id := range ids {
		b.addServo(id)
	}
	return b
}

func (b *simBus) addServo(id int) {
	var r [256]byte
	r[servolink.RegID] = byte(id)
	r[servolink.RegLock] = servolink.EEPROMLocked
	r[servolink.RegMaxAngleLimit] = 0xFF
	r[servolink.RegMaxAngleLimit+1] = 0x0F
	r[servolink.RegPresentPosition] = 0xFF
	r[servolink.RegPresentPosition+1] = 0x07
	r[servolink.RegPresentVoltage] = 121
	r[servolink.RegPresentTemperature] = 35
	b.regs[id] = &r
}

func (b *simBus) setByte(id int, reg servolink.Register, v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[id][reg] = v
}

func (b *simBus) setWord(id int, reg servolink.Register, v uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs[id][reg] = servolink.LoByte(v)
	b.regs[id][reg+1] = servolink.HiByte(v)
}

func (b *simBus) byteAt(id int, reg servolink.Register) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[id][reg]
}

// script queues values returned by successive reads of reg.
func (b *simBus) script(id int, reg servolink.Register, values ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := regKey{id, reg}
	b.scripts[k] = append(b.scripts[k], values...)
}

func (b *simBus) failWrite(id int, reg servolink.Register, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failW[regKey{id, reg}] = err
}

func (b *simBus) readCount(id int, reg servolink.Register) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[regKey{id, reg}]
}

// writesTo returns the writes to reg on any servo, in order.
func (b *simBus) writesTo(reg servolink.Register) []busWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busWrite
	for _, w := range b.writes {
		if w.reg == reg {
			out = append(out, w)
		}
	}
	return out
}

func (b *simBus) resetWrites() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = nil
}

func rxTimeout(id int) error {
	return &servolink.CommError{ID: id, Op: "read", Err: feetech.ErrNoResponse}
}

func (b *simBus) Read(ctx context.Context, id int, reg servolink.Register, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.regs[id]
	if !ok {
		return nil, rxTimeout(id)
	}
	k := regKey{id, reg}
	b.reads[k]++
	if seq := b.scripts[k]; len(seq) > 0 {
		v := seq[0]
		b.scripts[k] = seq[1:]
		if v == failRead {
			return nil, rxTimeout(id)
		}
		if n == 1 {
			return []byte{byte(v)}, nil
		}
		return []byte{servolink.LoByte(uint16(v)), servolink.HiByte(uint16(v))}, nil
	}
	out := make([]byte, n)
	copy(out, r[int(reg):int(reg)+n])
	return out, nil
}

func (b *simBus) Write(ctx context.Context, id int, reg servolink.Register, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes = append(b.writes, busWrite{id: id, reg: reg, data: append([]byte(nil), data...)})
	r, ok := b.regs[id]
	if !ok {
		return rxTimeout(id)
	}
	if err := b.failW[regKey{id, reg}]; err != nil {
		return err
	}
	copy(r[int(reg):], data)
	if reg == servolink.RegID {
		delete(b.regs, id)
		b.regs[int(data[0])] = r
	}
	return nil
}

func (b *simBus) Ping(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.regs[id]; !ok {
		return rxTimeout(id)
	}
	return nil
}

func (b *simBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.closeCnt++
	return nil
}

// sleepLog records requested sleeps without waiting.
type sleepLog struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.sleeps = append(l.sleeps, d)
	l.mu.Unlock()
	return ctx.Err()
}

func testConfig(link servolink.Link, sl *sleepLog) SessionConfig {
	return SessionConfig{
		Port:     "/dev/ttyTEST",
		ProbeMin: 1,
		ProbeMax: 12,
		Dial: func(string, int, time.Duration) (servolink.Link, error) {
			return link, nil
		},
		sleep: sl.sleep,
	}
}

// openSim opens a session on bus and discovers its servos.
func openSim(t *testing.T, bus *simBus) (*Session, *sleepLog) {
	t.Helper()
	sl := &sleepLog{}
	s, err := Open(context.Background(), testConfig(bus, sl))
	require.NoError(t, err)
	_, err = s.Discover(context.Background())
	require.NoError(t, err)
	bus.resetWrites()
	return s, sl
}
