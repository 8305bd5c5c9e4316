package router

import (
	"time"

	"github.com/sekiba/kifuroom/pkg/analysis"
	"github.com/sekiba/kifuroom/pkg/tree"
	"github.com/sekiba/kifuroom/pkg/usi"
)

// NodeDTO is one flat node entry inside FullGameState.Nodes.
type NodeDTO struct {
	ID           string `json:"id"`
	ParentID     string `json:"parent_id,omitempty"`
	OrderIndex   int    `json:"order_index"`
	MoveUSI      string `json:"move_usi,omitempty"`
	Comment      string `json:"comment,omitempty"`
	PositionSFEN string `json:"position_sfen"`
}

// FullGameState is the complete game snapshot sent with session:granted and
// every game:state broadcast (spec §6).
type FullGameState struct {
	GameID              string              `json:"game_id"`
	Title               string              `json:"title"`
	Meta                map[string]string   `json:"meta"`
	InitialSFEN         string              `json:"initial_sfen"`
	CurrentPositionSFEN string              `json:"current_position_sfen"`
	RootNodeID          string              `json:"root_node_id"`
	CurrentNodeID       string              `json:"current_node_id"`
	Nodes               []NodeDTO           `json:"nodes"`
	ChildrenIndex       map[string][]string `json:"children_index"`
	CurrentPathNodeIDs  []string            `json:"current_path_node_ids"`
	UIState             tree.UIState        `json:"ui_state"`
}

// BuildFullGameState renders t's current state into the wire shape.
func BuildFullGameState(t *tree.Tree) (FullGameState, error) {
	game := t.Game()
	nodes := t.Nodes()
	path, err := t.PathTo(game.CurrentNodeID)
	if err != nil {
		return FullGameState{}, err
	}

	dtos := make([]NodeDTO, 0, len(nodes))
	for _, n := range nodes {
		dtos = append(dtos, NodeDTO{
			ID: n.ID, ParentID: n.ParentID, OrderIndex: n.OrderIndex,
			MoveUSI: n.MoveUSI, Comment: n.Comment, PositionSFEN: n.PositionSFEN,
		})
	}

	return FullGameState{
		GameID:              game.ID,
		Title:               game.Title,
		Meta:                game.Meta,
		InitialSFEN:         game.InitialSFEN,
		CurrentPositionSFEN: t.CurrentPositionSFEN(),
		RootNodeID:          game.RootNodeID,
		CurrentNodeID:       game.CurrentNodeID,
		Nodes:               dtos,
		ChildrenIndex:       t.ChildrenIndex(),
		CurrentPathNodeIDs:  path,
		UIState:             game.UIState,
	}, nil
}

// PVLineDTO mirrors usi.PVLine, expanding its Optional fields to nullable
// JSON numbers so an absent token is visibly distinct from a reported zero.
type PVLineDTO struct {
	PVIndex    int      `json:"pv_index"`
	ScoreType  string   `json:"score_type"`
	ScoreValue int      `json:"score_value"`
	Depth      int      `json:"depth"`
	SelDepth   *int     `json:"seldepth,omitempty"`
	Nodes      *uint64  `json:"nodes,omitempty"`
	NPS        *uint64  `json:"nps,omitempty"`
	HashFull   *int     `json:"hashfull,omitempty"`
	PVUSI      []string `json:"pv_usi"`
}

// ToPVLineDTOs converts a snapshot's lines to their wire/storage shape, for
// callers (e.g. the analysis snapshot writer) that need the same
// Optional-to-nullable-pointer expansion outside an AnalysisUpdatePayload.
func ToPVLineDTOs(lines []usi.PVLine) []PVLineDTO {
	dtos := make([]PVLineDTO, 0, len(lines))
	for _, pv := range lines {
		dtos = append(dtos, toPVLineDTO(pv))
	}
	return dtos
}

func toPVLineDTO(pv usi.PVLine) PVLineDTO {
	dto := PVLineDTO{
		PVIndex: pv.PVIndex, ScoreType: pv.ScoreType, ScoreValue: pv.ScoreValue,
		Depth: pv.Depth, PVUSI: pv.PVUSI,
	}
	if v, ok := pv.SelDepth.V(); ok {
		dto.SelDepth = &v
	}
	if v, ok := pv.Nodes.V(); ok {
		dto.Nodes = &v
	}
	if v, ok := pv.NPS.V(); ok {
		dto.NPS = &v
	}
	if v, ok := pv.HashFull.V(); ok {
		dto.HashFull = &v
	}
	return dto
}

// AnalysisUpdatePayload is the analysis:update outgoing payload.
type AnalysisUpdatePayload struct {
	NodeID    string      `json:"node_id"`
	ElapsedMS int64       `json:"elapsed_ms"`
	MultiPV   int         `json:"multipv"`
	Lines     []PVLineDTO `json:"lines"`
	Best      *PVLineDTO  `json:"best,omitempty"`
}

// BuildAnalysisUpdate converts a Coordinator Snapshot to its wire payload.
func BuildAnalysisUpdate(snap analysis.Snapshot) AnalysisUpdatePayload {
	lines := make([]PVLineDTO, 0, len(snap.Lines))
	for _, pv := range snap.Lines {
		lines = append(lines, toPVLineDTO(pv))
	}
	payload := AnalysisUpdatePayload{
		NodeID: snap.NodeID, ElapsedMS: snap.ElapsedMS, MultiPV: snap.MultiPV, Lines: lines,
	}
	if snap.Best != nil {
		best := toPVLineDTO(*snap.Best)
		payload.Best = &best
	}
	return payload
}

// AnalysisStoppedPayload is the analysis:stopped outgoing payload.
type AnalysisStoppedPayload struct {
	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

// ToastPayload is a user-facing notice.
type ToastPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// SessionGrantedPayload is sent to a connection that becomes (or remains)
// owner: initial FullGameState, server capabilities, engine status.
type SessionGrantedPayload struct {
	SessionID     string        `json:"session_id"`
	OwnerToken    string        `json:"owner_token"`
	ServerVersion string        `json:"server_version"`
	EngineStatus  string        `json:"engine_status"`
	State         FullGameState `json:"state"`
}

// SessionBusyPayload is sent to a newcomer when the slot is occupied.
type SessionBusyPayload struct {
	OwnerSince time.Time `json:"owner_since"`
}

// SessionKickedPayload is sent to an evicted owner.
type SessionKickedPayload struct {
	Reason string `json:"reason"`
}
