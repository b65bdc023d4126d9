package discovery

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often a Watcher lists ports.
const DefaultPollInterval = time.Second

// EventKind says whether a port appeared or went away.
type EventKind int

const (
	PortAdded EventKind = iota
	PortRemoved
)

func (k EventKind) String() string {
	if k == PortAdded {
		return "added"
	}
	return "removed"
}

// Event reports a change in the set of candidate ports.
type Event struct {
	Kind EventKind
	Port Port
}

// Watcher polls the candidate ports and reports hotplug changes.
type Watcher struct {
	list     Lister
	interval time.Duration
	log      log.FieldLogger
	events   chan Event
	known    map[string]Port
}

// NewWatcher creates a watcher. A nil list uses SystemPorts.
func NewWatcher(list Lister, interval time.Duration) *Watcher {
	if list == nil {
		list = SystemPorts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		list:     list,
		interval: interval,
		log:      log.WithField("component", "port-watcher"),
		events:   make(chan Event, 16),
		known:    make(map[string]Port),
	}
}

// Events returns the event channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run polls until ctx is done. Ports present on the first poll are
// reported as added. Run always returns nil; the error result lets it
// join an errgroup.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ports, err := Candidates(w.list)
	if err != nil {
		w.log.WithError(err).Warn("listing ports failed")
		return
	}

	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		seen[p.Name] = true
		if _, ok := w.known[p.Name]; ok {
			continue
		}
		w.known[p.Name] = p
		w.emit(ctx, Event{Kind: PortAdded, Port: p})
	}
	for name, p := range w.known {
		if seen[name] {
			continue
		}
		delete(w.known, name)
		w.emit(ctx, Event{Kind: PortRemoved, Port: p})
	}
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	w.log.WithField("port", ev.Port.Name).WithField("event", ev.Kind).Debug("port change")
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
