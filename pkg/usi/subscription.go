package usi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
)

// Subscription is the handle returned by Supervisor.Analyze. The caller
// reads consolidated PV snapshots from Updates until Done fires, then reads
// Reason for why the search ended.
type Subscription struct {
	sup     *Supervisor
	started time.Time

	updates    chan []PVLine
	closer     iox.AsyncCloser
	completing atomic.Bool
	reason     string

	mu sync.Mutex
	pv map[int]PVLine
}

func newSubscription(sup *Supervisor) *Subscription {
	return &Subscription{
		sup:     sup,
		started: time.Now(),
		updates: make(chan []PVLine, 32),
		closer:  iox.NewAsyncCloser(),
		pv:      map[int]PVLine{},
	}
}

// Updates is the consolidated-set-on-change stream: every element is the
// full current map of pv_index -> PVLine, as a slice sorted by pv_index.
func (sub *Subscription) Updates() <-chan []PVLine { return sub.updates }

// Done closes when the search has ended (cancelled or the engine exited).
func (sub *Subscription) Done() <-chan struct{} { return sub.closer.Closed() }

// Reason is valid only after Done has closed: "cancelled", "exited" or
// "shutdown".
func (sub *Subscription) Reason() string { return sub.reason }

// Started is when this subscription's search began, for elapsed_ms framing.
func (sub *Subscription) Started() time.Time { return sub.started }

// Cancel sends stop and waits (bounded) for the engine to confirm with
// bestmove. Safe to call more than once or after the search already ended.
func (sub *Subscription) Cancel(ctx context.Context) error {
	return sub.sup.cancel(ctx, sub)
}

func (sub *Subscription) applyUpdate(incoming PVLine) {
	sub.mu.Lock()
	existing, had := sub.pv[incoming.PVIndex]
	sub.pv[incoming.PVIndex] = mergePVLine(existing, had, incoming)
	snapshot := sub.snapshotLocked()
	sub.mu.Unlock()

	sub.push(snapshot)
}

func (sub *Subscription) snapshotLocked() []PVLine {
	out := make([]PVLine, 0, len(sub.pv))
	for _, pv := range sub.pv {
		out = append(out, pv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PVIndex < out[j].PVIndex })
	return out
}

// push is non-blocking: if the consumer has fallen behind, the oldest
// buffered snapshot is dropped in favor of the newest, since every snapshot
// is a consolidated superset keyed by pv_index.
func (sub *Subscription) push(snapshot []PVLine) {
	select {
	case sub.updates <- snapshot:
		return
	default:
	}
	select {
	case <-sub.updates:
	default:
	}
	select {
	case sub.updates <- snapshot:
	default:
	}
}

func (sub *Subscription) complete(reason string) {
	if sub.completing.CompareAndSwap(false, true) {
		sub.reason = reason
		sub.closer.Close()
	}
}
