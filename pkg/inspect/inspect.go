// Package inspect serves a live view of a reactive runtime: a dependency
// graph snapshot API, a ring of recent track/trigger events, and a
// WebSocket feed for dashboards.
//
// The runtime is single-goroutine; the inspector is the bridge to the
// rest of the process. Its hooks run on the runtime goroutine and only
// touch inspector-owned state, so HTTP handlers on server goroutines can
// read safely.
package inspect

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// Config configures an Inspector.
type Config struct {
	// RingSize is how many recent events are kept for the events API
	// (default: 256).
	RingSize int

	// FeedSize is the live feed channel capacity (default: 256).
	// Events beyond it are dropped rather than blocking the runtime.
	FeedSize int

	// Logger is used for inspector diagnostics (default: zap.NewNop()).
	Logger *zap.Logger
}

// Option configures an Inspector.
type Option func(*Config)

// WithRingSize sets how many recent events are retained.
func WithRingSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RingSize = n
		}
	}
}

// WithFeedSize sets the live feed channel capacity.
func WithFeedSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FeedSize = n
		}
	}
}

// WithLogger sets the inspector logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// defaultConfig returns the default inspector configuration.
func defaultConfig() Config {
	return Config{
		RingSize: 256,
		FeedSize: 256,
		Logger:   zap.NewNop(),
	}
}

// Event is one track or trigger observation in wire form.
type Event struct {
	Time      time.Time `json:"time"`
	Type      string    `json:"type"` // "track" or "trigger"
	Op        string    `json:"op"`
	Target    string    `json:"target"`
	Key       string    `json:"key"`
	Effect    uint64    `json:"effect,omitempty"`    // track: the subscriber
	Scheduled int       `json:"scheduled,omitempty"` // trigger: fan-out size
}

// Inspector captures runtime activity for the inspect server.
type Inspector struct {
	rt     *quiver.Runtime
	logger *zap.Logger

	feed chan Event

	mu         sync.RWMutex
	ring       []Event
	ringIndex  int
	ringCount  int
	graph      []quiver.GraphNode
	graphTaken time.Time
}

// New attaches an Inspector to rt. The hooks it installs stay for the
// life of the runtime.
func New(rt *quiver.Runtime, opts ...Option) *Inspector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	ins := &Inspector{
		rt:     rt,
		logger: config.Logger,
		feed:   make(chan Event, config.FeedSize),
		ring:   make([]Event, config.RingSize),
	}
	rt.AddTrackHook(ins.onTrack)
	rt.AddTriggerHook(ins.onTrigger)
	return ins
}

func (ins *Inspector) onTrack(ev quiver.TrackEvent) {
	e := Event{
		Time:   time.Now(),
		Type:   "track",
		Op:     ev.Op.String(),
		Target: quiver.TargetLabel(ev.Target),
		Key:    fmt.Sprintf("%v", ev.Key),
	}
	if ev.Effect != nil {
		e.Effect = ev.Effect.ID()
	}
	ins.record(e)
}

func (ins *Inspector) onTrigger(ev quiver.TriggerEvent) {
	ins.record(Event{
		Time:      time.Now(),
		Type:      "trigger",
		Op:        ev.Op.String(),
		Target:    quiver.TargetLabel(ev.Target),
		Key:       fmt.Sprintf("%v", ev.Key),
		Scheduled: ev.Scheduled,
	})
}

// record stores the event in the ring and offers it to the live feed.
// It runs on the runtime goroutine and must never block.
func (ins *Inspector) record(e Event) {
	ins.mu.Lock()
	ins.ring[ins.ringIndex] = e
	ins.ringIndex = (ins.ringIndex + 1) % len(ins.ring)
	if ins.ringCount < len(ins.ring) {
		ins.ringCount++
	}
	ins.mu.Unlock()

	select {
	case ins.feed <- e:
	default:
		// Feed is full; the ring still has the event.
	}
}

// Events returns the retained events, oldest first.
func (ins *Inspector) Events() []Event {
	ins.mu.RLock()
	defer ins.mu.RUnlock()

	out := make([]Event, 0, ins.ringCount)
	start := ins.ringIndex - ins.ringCount + len(ins.ring)
	for i := 0; i < ins.ringCount; i++ {
		out = append(out, ins.ring[(start+i)%len(ins.ring)])
	}
	return out
}

// SnapshotGraph captures the dependency graph for the graph API. Call it
// on the runtime's home goroutine, like any tracked read; a natural spot
// is right after a flush.
func (ins *Inspector) SnapshotGraph() {
	g := ins.rt.Graph()
	ins.mu.Lock()
	ins.graph = g
	ins.graphTaken = time.Now()
	ins.mu.Unlock()
}

// GraphSnapshot returns the last captured graph and when it was taken.
// The time is zero when SnapshotGraph has never run.
func (ins *Inspector) GraphSnapshot() ([]quiver.GraphNode, time.Time) {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	return ins.graph, ins.graphTaken
}

// Stats reads the runtime counters. Safe from any goroutine.
func (ins *Inspector) Stats() quiver.Stats { return ins.rt.Stats() }

// Feed returns the live event channel. The inspect server's hub is its
// consumer; events are dropped when the channel is full.
func (ins *Inspector) Feed() <-chan Event { return ins.feed }
