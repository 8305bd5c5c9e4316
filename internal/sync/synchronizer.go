// Package sync implements the State Synchronizer (spec §4.7): the single
// goroutine that applies every tree/session/engine mutation, persists it,
// and broadcasts the result. Every other task -- connection readers, the
// Supervisor's stdout reader, the Analysis Coordinator's timer -- only ever
// reaches the tree, the session slot, or the engine through this loop's
// inbound channels, matching the teacher's "no locks needed outside the
// owning goroutine" convention at the application level.
package sync

import (
	"context"
	"encoding/json"

	"github.com/sekiba/kifuroom/internal/router"
	"github.com/sekiba/kifuroom/internal/version"
	"github.com/sekiba/kifuroom/internal/wsconn"
	"github.com/sekiba/kifuroom/pkg/analysis"
	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/session"
	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/sekiba/kifuroom/pkg/store"
	"github.com/sekiba/kifuroom/pkg/tree"
	"github.com/sekiba/kifuroom/pkg/usi"
	"github.com/seekerror/logw"
)

// marshalLines serializes a snapshot's PV lines for persistence, reusing
// router's Optional-to-nullable-pointer DTO conversion so a stored snapshot
// round-trips the same shape sent over the wire.
func marshalLines(lines []usi.PVLine) (string, error) {
	raw, err := json.Marshal(router.ToPVLineDTOs(lines))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type connectEvent struct{ connID string }
type disconnectEvent struct{ connID string }
type messageEvent struct {
	connID string
	raw    []byte
}

// Synchronizer owns the live Tree, the session slot, the Analysis
// Coordinator, and the engine. All mutation enters through Run's select
// loop; nothing outside it calls tree/session/engine mutators directly.
type Synchronizer struct {
	hub      *wsconn.Hub
	store    *store.Store
	sessions *session.Manager
	engine   *respawningEngine
	coord    *analysis.Coordinator
	snaps    *snapshotWriter

	tree *tree.Tree

	ownerConnID string

	connects    chan connectEvent
	disconnects chan disconnectEvent
	messages    chan messageEvent
}

// New wires a Synchronizer around its dependencies. engineCfg configures the
// USI engine the Analysis Coordinator drives.
func New(ctx context.Context, hub *wsconn.Hub, st *store.Store, engineCfg usi.Config) *Synchronizer {
	eng := newRespawningEngine(ctx, engineCfg)

	s := &Synchronizer{
		hub:         hub,
		store:       st,
		sessions:    session.New(),
		engine:      eng,
		snaps:       newSnapshotWriter(ctx, st),
		connects:    make(chan connectEvent, 8),
		disconnects: make(chan disconnectEvent, 8),
		messages:    make(chan messageEvent, 64),
	}
	s.coord = analysis.New(eng, resolverFor(nil), 1)
	return s
}

// resolverFor returns a PositionResolver over t, or a resolver that always
// errors if t is nil (no game loaded yet).
func resolverFor(t *tree.Tree) analysis.PositionResolver {
	if t == nil {
		return noGameResolver{}
	}
	return analysis.TreeResolver{Tree: t}
}

type noGameResolver struct{}

func (noGameResolver) PositionCommand(string) (string, error) {
	return "", kifuerr.New(kifuerr.UnknownNode, "no game loaded")
}

// NotifyConnected tells the Synchronizer a new websocket connection exists.
// Called from the HTTP handler goroutine that accepted it, not Run's own
// goroutine -- Run serializes the actual Grant/Busy decision.
func (s *Synchronizer) NotifyConnected(connID string) {
	s.connects <- connectEvent{connID: connID}
}

// NotifyDisconnected tells the Synchronizer a connection has closed.
func (s *Synchronizer) NotifyDisconnected(connID string) {
	s.disconnects <- disconnectEvent{connID: connID}
}

// HandleMessage queues an inbound frame for processing by Run's goroutine.
// This is wsconn.OnMessage's shape, used directly as the callback.
func (s *Synchronizer) HandleMessage(connID string, raw []byte) {
	s.messages <- messageEvent{connID: connID, raw: raw}
}

// EngineStatus reports the live USI engine state for /healthz and
// session:granted. Safe to call from any goroutine: it only reads the
// respawningEngine's own mutex-guarded Supervisor reference and the
// Supervisor's own mutex-guarded state.
func (s *Synchronizer) EngineStatus() string {
	if sup := s.engine.supervisor(); sup != nil {
		return sup.State().String()
	}
	return "idle"
}

// Run processes events until ctx is cancelled. It restores any persisted
// current game first, per §7's crash-safety note, then enters the main
// loop: connection lifecycle, inbound intents, and Coordinator output are
// all serialized through this one select.
func (s *Synchronizer) Run(ctx context.Context) {
	s.restore(ctx)

	for {
		select {
		case <-ctx.Done():
			s.coord.Shutdown(ctx)
			if sup := s.engine.supervisor(); sup != nil {
				_ = sup.Shutdown(ctx)
			}
			return

		case ev := <-s.connects:
			s.handleConnect(ctx, ev.connID)

		case ev := <-s.disconnects:
			s.handleDisconnect(ctx, ev.connID)

		case ev := <-s.messages:
			s.handleMessage(ctx, ev.connID, ev.raw)

		case snap, ok := <-s.coord.Updates():
			if ok {
				s.handleAnalysisUpdate(snap)
			}

		case stopped, ok := <-s.coord.Stopped():
			if ok {
				s.handleAnalysisStopped(stopped)
			}
		}
	}
}

func (s *Synchronizer) restore(ctx context.Context) {
	gameID, ok, err := s.store.GetAppState(ctx, "current_game_id")
	if err != nil || !ok || gameID == "" {
		return
	}
	game, nodes, err := s.store.GetGameWithTree(ctx, gameID)
	if err != nil {
		logw.Warningf(ctx, "restore current game %v: %v", gameID, err)
		return
	}
	s.tree = tree.Load(game, nodes)
	s.coord = analysis.New(s.engine, resolverFor(s.tree), game.UIState.MultiPV)
	logw.Infof(ctx, "restored game %v (%v nodes)", gameID, len(nodes))
}

func (s *Synchronizer) handleConnect(ctx context.Context, connID string) {
	if slot, ok := s.sessions.Grant(); ok {
		s.ownerConnID = connID
		s.sendGranted(ctx, connID, slot)
		logw.Infof(ctx, "connection %v granted ownership", connID)
		return
	}
	slot := s.sessions.Current()
	s.send(connID, router.TypeSessionBusy, router.SessionBusyPayload{OwnerSince: slot.Since})
}

func (s *Synchronizer) handleDisconnect(ctx context.Context, connID string) {
	if connID != s.ownerConnID {
		return
	}
	s.sessions.Clear()
	s.ownerConnID = ""
	s.coord.SetEnabled(ctx, false)
	logw.Infof(ctx, "owner connection %v disconnected, session cleared", connID)
}

// handleMessage decodes one inbound frame and applies it. Every message
// other than session:takeover is gated by the freshness check: one that
// carries no session_id/owner_token at all is silently dropped, per the
// propagation policy; a stale owner-bearing message gets an explicit
// session:stale reply.
func (s *Synchronizer) handleMessage(ctx context.Context, connID string, raw []byte) {
	intent, err := router.Decode(raw)
	if err != nil {
		s.toast(connID, "error", err.Error())
		return
	}

	if router.RequiresOwner(intent.Type) {
		tok := session.Token{SessionID: intent.SessionID, OwnerToken: intent.OwnerToken}
		if !s.sessions.IsOwner(tok) {
			if intent.SessionID == "" && intent.OwnerToken == "" {
				return
			}
			s.send(connID, router.TypeSessionStale, struct{}{})
			return
		}
	}

	switch intent.Type {
	case router.TypeSessionTakeover:
		s.handleTakeover(ctx, connID)
	case router.TypeGameNew:
		s.handleGameNew(ctx, connID, intent.Payload.(router.GameNewPayload))
	case router.TypeGameLoad:
		s.handleGameLoad(ctx, connID, intent.Payload.(router.GameLoadPayload))
	case router.TypeGameSave:
		s.handleGameSave(ctx, connID, intent.Payload.(router.GameSavePayload))
	case router.TypeNodePlayMove:
		s.handlePlayMove(ctx, connID, intent.Payload.(router.NodePlayMovePayload))
	case router.TypeNodeJump:
		s.handleJump(ctx, connID, intent.Payload.(router.NodeJumpPayload))
	case router.TypeNodeReorderChildren:
		s.handleReorder(ctx, connID, intent.Payload.(router.NodeReorderChildrenPayload))
	case router.TypeNodeSetComment:
		s.handleSetComment(ctx, connID, intent.Payload.(router.NodeSetCommentPayload))
	case router.TypeAnalysisSetEnabled:
		p := intent.Payload.(router.AnalysisSetEnabledPayload)
		s.coord.SetEnabled(ctx, p.Enabled)
	case router.TypeAnalysisSetMultiPV:
		p := intent.Payload.(router.AnalysisSetMultiPVPayload)
		s.coord.SetMultiPV(ctx, p.MultiPV)
		s.persistMultiPV(ctx, p.MultiPV)
	case router.TypeAnalysisStart:
		s.coord.SetEnabled(ctx, true)
	case router.TypeAnalysisStop:
		s.coord.SetEnabled(ctx, false)
	}
}

func (s *Synchronizer) handleTakeover(ctx context.Context, connID string) {
	_, granted := s.sessions.Takeover()
	oldOwner := s.ownerConnID
	s.ownerConnID = connID

	if oldOwner != "" && oldOwner != connID {
		s.send(oldOwner, router.TypeSessionKicked, router.SessionKickedPayload{Reason: "takeover"})
		s.hub.Close(oldOwner)
	}
	s.sendGranted(ctx, connID, granted)
	logw.Infof(ctx, "connection %v took over ownership from %v", connID, oldOwner)
}

func (s *Synchronizer) handleGameNew(ctx context.Context, connID string, p router.GameNewPayload) {
	initial := p.InitialSFEN
	if initial == "" {
		initial = shogi.Initial
	}
	title := p.Title
	if title == "" {
		title = "Untitled"
	}

	t := tree.New(title, initial)
	game := t.Game()
	if err := s.store.PutGame(ctx, game, t.Nodes()); err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	if err := s.store.PutAppState(ctx, "current_game_id", game.ID); err != nil {
		logw.Warningf(ctx, "persist current_game_id: %v", err)
	}

	s.coord.Shutdown(ctx)
	s.tree = t
	s.coord = analysis.New(s.engine, resolverFor(s.tree), 1)
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) handleGameLoad(ctx context.Context, connID string, p router.GameLoadPayload) {
	game, nodes, err := s.store.GetGameWithTree(ctx, p.GameID)
	if err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	if err := s.store.PutAppState(ctx, "current_game_id", game.ID); err != nil {
		logw.Warningf(ctx, "persist current_game_id: %v", err)
	}

	s.coord.Shutdown(ctx)
	s.tree = tree.Load(game, nodes)
	s.coord = analysis.New(s.engine, resolverFor(s.tree), game.UIState.MultiPV)
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) handleGameSave(ctx context.Context, connID string, p router.GameSavePayload) {
	if s.tree == nil {
		s.toast(connID, "error", "no game loaded")
		return
	}
	s.tree.SetMeta(p.Title, p.Meta)
	game := s.tree.Game()
	if err := s.store.SetGameMeta(ctx, game.ID, game.Title, game.Meta, game.UIState); err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) handlePlayMove(ctx context.Context, connID string, p router.NodePlayMovePayload) {
	if s.tree == nil {
		s.toast(connID, "error", "no game loaded")
		return
	}
	nodeID, err := s.tree.PlayMove(p.FromNodeID, p.MoveUSI)
	if err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	s.persistNodeAndCursor(ctx, connID, nodeID)
}

func (s *Synchronizer) handleJump(ctx context.Context, connID string, p router.NodeJumpPayload) {
	if s.tree == nil {
		s.toast(connID, "error", "no game loaded")
		return
	}
	if err := s.tree.Jump(p.NodeID); err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	game := s.tree.Game()
	if err := s.store.SetCurrentNode(ctx, game.ID, p.NodeID); err != nil {
		logw.Warningf(ctx, "persist current node: %v", err)
	}
	s.coord.NodeChanged(ctx, p.NodeID)
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) handleReorder(ctx context.Context, connID string, p router.NodeReorderChildrenPayload) {
	if s.tree == nil {
		s.toast(connID, "error", "no game loaded")
		return
	}
	if err := s.tree.ReorderChildren(p.ParentID, p.OrderedChildIDs); err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	if err := s.store.RewriteChildrenOrder(ctx, p.ParentID, p.OrderedChildIDs); err != nil {
		logw.Warningf(ctx, "persist reorder for %v: %v", p.ParentID, err)
	}
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) handleSetComment(ctx context.Context, connID string, p router.NodeSetCommentPayload) {
	if s.tree == nil {
		s.toast(connID, "error", "no game loaded")
		return
	}
	if err := s.tree.SetComment(p.NodeID, p.Comment); err != nil {
		s.toast(connID, "error", err.Error())
		return
	}
	n, err := s.tree.Node(p.NodeID)
	if err != nil {
		return
	}
	if err := s.store.UpsertNode(ctx, n); err != nil {
		logw.Warningf(ctx, "persist comment for %v: %v", p.NodeID, err)
	}
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) persistNodeAndCursor(ctx context.Context, connID, nodeID string) {
	n, err := s.tree.Node(nodeID)
	if err != nil {
		return
	}
	if err := s.store.UpsertNode(ctx, n); err != nil {
		logw.Warningf(ctx, "persist node %v: %v", nodeID, err)
	}
	game := s.tree.Game()
	if err := s.store.SetCurrentNode(ctx, game.ID, nodeID); err != nil {
		logw.Warningf(ctx, "persist current node: %v", err)
	}
	s.coord.NodeChanged(ctx, nodeID)
	s.broadcastGameState(ctx)
}

func (s *Synchronizer) persistMultiPV(ctx context.Context, n int) {
	if s.tree == nil {
		return
	}
	game := s.tree.Game()
	ui := game.UIState
	ui.MultiPV = n
	s.tree.SetUIState(ui)
	if err := s.store.SetGameMeta(ctx, game.ID, game.Title, game.Meta, ui); err != nil {
		logw.Warningf(ctx, "persist multipv: %v", err)
	}
}

func (s *Synchronizer) sendGranted(ctx context.Context, connID string, slot session.Slot) {
	var state router.FullGameState
	if s.tree != nil {
		var err error
		state, err = router.BuildFullGameState(s.tree)
		if err != nil {
			logw.Warningf(ctx, "build full game state: %v", err)
		}
	}
	s.send(connID, router.TypeSessionGranted, router.SessionGrantedPayload{
		SessionID:     slot.SessionID,
		OwnerToken:    slot.OwnerToken,
		ServerVersion: version.Server.String(),
		EngineStatus:  s.EngineStatus(),
		State:         state,
	})
}

func (s *Synchronizer) send(connID, msgType string, payload any) {
	raw, err := router.Encode(msgType, payload)
	if err != nil {
		logw.Errorf(context.Background(), "encode %v: %v", msgType, err)
		return
	}
	s.hub.Send(connID, raw)
}

func (s *Synchronizer) broadcast(msgType string, payload any) {
	raw, err := router.Encode(msgType, payload)
	if err != nil {
		logw.Errorf(context.Background(), "encode %v: %v", msgType, err)
		return
	}
	s.hub.Broadcast(raw)
}

func (s *Synchronizer) toast(connID, level, message string) {
	raw, err := router.Encode(router.TypeToast, router.ToastPayload{Level: level, Message: message})
	if err != nil {
		return
	}
	s.hub.Send(connID, raw)
}

func (s *Synchronizer) broadcastGameState(ctx context.Context) {
	if s.tree == nil {
		return
	}
	state, err := router.BuildFullGameState(s.tree)
	if err != nil {
		logw.Warningf(ctx, "build full game state: %v", err)
		return
	}
	s.broadcast(router.TypeGameState, state)
}

func (s *Synchronizer) handleAnalysisUpdate(snap analysis.Snapshot) {
	s.broadcast(router.TypeAnalysisUpdate, router.BuildAnalysisUpdate(snap))

	linesJSON, err := marshalLines(snap.Lines)
	if err != nil {
		return
	}
	s.snaps.enqueue(store.AnalysisSnapshotRecord{
		NodeID: snap.NodeID, ElapsedMS: snap.ElapsedMS, MultiPV: snap.MultiPV, LinesJSON: linesJSON,
	})
}

// engineFailureKinds are the kifuerr kinds that, per the propagation
// policy, also surface as a toast alongside the analysis:stopped event.
var engineFailureKinds = map[string]bool{
	string(kifuerr.SpawnFailed):      true,
	string(kifuerr.HandshakeTimeout): true,
	string(kifuerr.EngineExited):     true,
	string(kifuerr.ProtocolError):    true,
}

func (s *Synchronizer) handleAnalysisStopped(ev analysis.StoppedEvent) {
	s.broadcast(router.TypeAnalysisStopped, router.AnalysisStoppedPayload{NodeID: ev.NodeID, Reason: ev.Reason})

	if engineFailureKinds[ev.Reason] || ev.Reason == "exited" {
		s.broadcast(router.TypeToast, router.ToastPayload{Level: "error", Message: "engine analysis stopped: " + ev.Reason})
	}
}
