package analysis

import (
	"context"
	"time"

	"github.com/sekiba/kifuroom/pkg/usi"
)

// Subscription is the shape the Coordinator needs from a running search.
// *usi.Subscription satisfies this directly.
type Subscription interface {
	Updates() <-chan []usi.PVLine
	Done() <-chan struct{}
	Reason() string
	Started() time.Time
	Cancel(ctx context.Context) error
}

// Engine starts a search and hands back a Subscription. *usi.Supervisor
// does not satisfy this directly (it returns a concrete *usi.Subscription),
// so SupervisorEngine adapts it -- this also keeps the Coordinator testable
// against a fake Engine that never spawns a process.
type Engine interface {
	Analyze(ctx context.Context, positionCmd string) (Subscription, error)
}

type supervisorEngine struct {
	sup *usi.Supervisor
}

// SupervisorEngine adapts a Supervisor to Engine.
func SupervisorEngine(sup *usi.Supervisor) Engine {
	return supervisorEngine{sup: sup}
}

func (e supervisorEngine) Analyze(ctx context.Context, positionCmd string) (Subscription, error) {
	return e.sup.Analyze(ctx, positionCmd)
}
