package sync

import (
	"context"
	"sync"

	"github.com/sekiba/kifuroom/pkg/analysis"
	"github.com/sekiba/kifuroom/pkg/usi"
)

// respawningEngine adapts a *usi.Supervisor to analysis.Engine, adding the
// one policy the Supervisor itself deliberately does not own: after the
// engine exits or crashes, the next Analyze call resets and respawns it
// rather than failing forever. "The Supervisor does not auto-restart; the
// caller decides" -- this is that caller.
type respawningEngine struct {
	cfg usi.Config

	mu  sync.Mutex
	sup *usi.Supervisor
}

func newRespawningEngine(ctx context.Context, cfg usi.Config) *respawningEngine {
	return &respawningEngine{cfg: cfg, sup: usi.New(ctx, cfg)}
}

func (e *respawningEngine) Analyze(ctx context.Context, positionCmd string) (analysis.Subscription, error) {
	e.mu.Lock()
	sup := e.sup
	switch sup.State() {
	case usi.Failed:
		if err := sup.Reset(); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		fallthrough
	case usi.Idle:
		if err := sup.Spawn(ctx); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	e.mu.Unlock()

	return sup.Analyze(ctx, positionCmd)
}

// supervisor returns the live Supervisor, for status reporting and shutdown.
func (e *respawningEngine) supervisor() *usi.Supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sup
}
