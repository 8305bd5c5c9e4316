package sync

import (
	"context"
	"sync"

	"github.com/sekiba/kifuroom/pkg/store"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/iox"
)

// snapshotWriter persists AnalysisSnapshots off the broadcast path (spec
// §4.8: "write-behind is acceptable if ordering per node_id is preserved").
// enqueue never blocks; the writer goroutine wakes on iox.Pulse rather than
// a dedicated channel per caller and drains the queue in arrival order.
type snapshotWriter struct {
	ctx   context.Context
	store *store.Store
	pulse *iox.Pulse

	mu    sync.Mutex
	queue []store.AnalysisSnapshotRecord
}

func newSnapshotWriter(ctx context.Context, s *store.Store) *snapshotWriter {
	w := &snapshotWriter{ctx: ctx, store: s, pulse: iox.NewPulse()}
	go w.run()
	return w
}

func (w *snapshotWriter) enqueue(rec store.AnalysisSnapshotRecord) {
	w.mu.Lock()
	w.queue = append(w.queue, rec)
	w.mu.Unlock()
	w.pulse.Emit()
}

func (w *snapshotWriter) run() {
	for range w.pulse.Chan() {
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			rec := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			if err := w.store.AppendSnapshot(w.ctx, rec); err != nil {
				logw.Errorf(w.ctx, "append analysis snapshot for node %v: %v", rec.NodeID, err)
			}
		}
	}
}
