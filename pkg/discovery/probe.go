package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds the scan of one port.
const DefaultProbeTimeout = 2 * time.Second

// Prober reports the ids of the servos answering on a port.
type Prober func(ctx context.Context, port string, baud, lo, hi int) ([]int, error)

// FeetechProber scans a port with the feetech STS driver.
func FeetechProber(ctx context.Context, port string, baud, lo, hi int) ([]int, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", port, err)
	}
	ids := make([]int, 0, len(servos))
	for _, s := range servos {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// Found is a port with at least one servo on it.
type Found struct {
	Port Port  `json:"port"`
	IDs  []int `json:"ids"`
}

// Scanner probes candidate ports in parallel.
type Scanner struct {
	Probe    Prober
	BaudRate int
	MinID    int
	MaxID    int
	Timeout  time.Duration // per port
	Logger   log.FieldLogger
}

// Scan probes every port and returns those with servos, in port order.
// A port that fails to open or answers nothing is skipped.
func (s *Scanner) Scan(ctx context.Context, ports []Port) ([]Found, error) {
	probe := s.Probe
	if probe == nil {
		probe = FeetechProber
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	logger := s.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	var (
		mu      sync.Mutex
		results = make([][]int, len(ports))
	)
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range ports {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			ids, err := probe(pctx, p.Name, s.BaudRate, s.MinID, s.MaxID)
			if err != nil {
				logger.WithField("port", p.Name).WithError(err).Debug("probe failed")
				return nil
			}
			mu.Lock()
			results[i] = ids
			mu.Unlock()
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var found []Found
	for i, ids := range results {
		if len(ids) == 0 {
			continue
		}
		logger.WithField("port", ports[i].Name).WithField("servos", len(ids)).Info("servos found")
		found = append(found, Found{Port: ports[i], IDs: ids})
	}
	return found, nil
}
