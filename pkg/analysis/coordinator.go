// Package analysis implements the Analysis Coordinator: it binds the
// currently viewed node to a running engine search and throttles the
// resulting PV stream down to the emission cadence -- at most once per
// 500ms for the first 5s of a search, then at most once per 1000ms --
// restarting the search whenever the node, enabled flag, or MultiPV count
// changes.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/usi"
)

const (
	fastCadence   = 500 * time.Millisecond
	slowCadence   = 1000 * time.Millisecond
	cadenceFlipAt = 5 * time.Second
)

// Snapshot is one coalesced flush: the full current line set, elapsed time
// since the search started, and the best (pv_index 1) line if present.
type Snapshot struct {
	NodeID    string
	ElapsedMS int64
	MultiPV   int
	Lines     []usi.PVLine
	Best      *usi.PVLine
}

// StoppedEvent reports why analysis for NodeID ended: "disabled",
// "position_changed", "multipv_changed", the Subscription's own Reason
// (e.g. "exited") when the search ends by itself, a kifuerr.Kind string
// when the engine fails to start the search, or "engine_error" when that
// failure carries no kind. A node whose position command cannot be built
// is also reported as "position_changed".
type StoppedEvent struct {
	NodeID string
	Reason string
}

// Coordinator drives at most one active Subscription at a time. Its
// mutating methods (SetEnabled/SetMultiPV/NodeChanged) are meant to be
// called only from the State Synchronizer's single goroutine; the mutex
// exists because the per-search pump goroutines read the same fields.
type Coordinator struct {
	engine   Engine
	resolver PositionResolver

	mu           sync.Mutex
	enabled      bool
	multiPV      int
	nodeID       string
	activeNodeID string
	sub          Subscription
	generation   uint64

	updates chan Snapshot
	stopped chan StoppedEvent
	quit    chan struct{}
}

// New creates a disabled Coordinator. multiPV is the initial line count
// (1..5); SetMultiPV changes it later.
func New(engine Engine, resolver PositionResolver, multiPV int) *Coordinator {
	return &Coordinator{
		engine:   engine,
		resolver: resolver,
		multiPV:  multiPV,
		updates:  make(chan Snapshot, 8),
		stopped:  make(chan StoppedEvent, 8),
		quit:     make(chan struct{}),
	}
}

// Updates streams coalesced PV snapshots for the active search.
func (c *Coordinator) Updates() <-chan Snapshot { return c.updates }

// Stopped streams termination events, one per ended search.
func (c *Coordinator) Stopped() <-chan StoppedEvent { return c.stopped }

// SetEnabled turns analysis on or off. Disabling cancels any active search
// and emits a "disabled" stopped event; enabling starts one against the
// last known node, if any.
func (c *Coordinator) SetEnabled(ctx context.Context, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.stopActiveLocked(ctx, "disabled")
		return
	}
	c.startIfPossibleLocked(ctx)
}

// SetMultiPV changes the requested line count. If analysis is enabled, the
// active search is restarted so the engine sees the new MultiPV option.
func (c *Coordinator) SetMultiPV(ctx context.Context, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n == c.multiPV {
		return
	}
	c.multiPV = n
	if c.enabled {
		c.stopActiveLocked(ctx, "multipv_changed")
		c.startIfPossibleLocked(ctx)
	}
}

// NodeChanged reports the new current node. If analysis is enabled, the
// active search (if any) is cancelled and a new one started against nodeID.
func (c *Coordinator) NodeChanged(ctx context.Context, nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if nodeID == c.nodeID {
		return
	}
	c.nodeID = nodeID
	if c.enabled {
		c.stopActiveLocked(ctx, "position_changed")
		c.startIfPossibleLocked(ctx)
	}
}

// Shutdown cancels any active search and stops accepting further pumps.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	c.stopActiveLocked(ctx, "disabled")
	c.mu.Unlock()
	close(c.quit)
}

func (c *Coordinator) stopActiveLocked(ctx context.Context, reason string) {
	if c.sub == nil {
		return
	}
	sub := c.sub
	nodeID := c.activeNodeID
	c.sub = nil
	c.generation++
	go func() { _ = sub.Cancel(ctx) }()
	pushEvent(c.stopped, StoppedEvent{NodeID: nodeID, Reason: reason})
}

func (c *Coordinator) startIfPossibleLocked(ctx context.Context) {
	if c.nodeID == "" {
		return
	}

	cmd, err := c.resolver.PositionCommand(c.nodeID)
	if err != nil {
		pushEvent(c.stopped, StoppedEvent{NodeID: c.nodeID, Reason: "position_changed"})
		return
	}

	sub, err := c.engine.Analyze(ctx, cmd)
	if err != nil {
		reason := "engine_error"
		if kind, ok := kifuerr.KindOf(err); ok {
			reason = string(kind)
		}
		pushEvent(c.stopped, StoppedEvent{NodeID: c.nodeID, Reason: reason})
		return
	}

	c.generation++
	gen := c.generation
	c.sub = sub
	c.activeNodeID = c.nodeID
	go c.pump(ctx, gen, c.activeNodeID, sub)
}

func (c *Coordinator) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// pump owns one Subscription end to end: it coalesces Updates into the
// cadence-gated Snapshot stream and, if the search ends on its own (engine
// exit) rather than via an explicit cancel, reports why.
func (c *Coordinator) pump(ctx context.Context, gen uint64, nodeID string, sub Subscription) {
	start := sub.Started()

	ticker := time.NewTicker(fastCadence)
	defer ticker.Stop()
	flip := time.NewTimer(cadenceFlipAt)
	defer flip.Stop()

	var latest []usi.PVLine
	dirty := false

	for {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				continue
			}
			latest = snap
			dirty = true

		case <-flip.C:
			ticker.Reset(slowCadence)

		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			c.flush(gen, nodeID, latest, start)

		case <-sub.Done():
			if c.currentGeneration() == gen {
				pushEvent(c.stopped, StoppedEvent{NodeID: nodeID, Reason: sub.Reason()})
			}
			return

		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) flush(gen uint64, nodeID string, lines []usi.PVLine, start time.Time) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	multiPV := c.multiPV
	c.mu.Unlock()

	var best *usi.PVLine
	for i := range lines {
		if lines[i].PVIndex == 1 {
			b := lines[i]
			best = &b
			break
		}
	}

	pushEvent(c.updates, Snapshot{
		NodeID:    nodeID,
		ElapsedMS: time.Since(start).Milliseconds(),
		MultiPV:   multiPV,
		Lines:     lines,
		Best:      best,
	})
}

// pushEvent is a non-blocking send that drops the oldest buffered event in
// favor of the newest if the consumer has fallen behind.
func pushEvent[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
