package router

import (
	"encoding/json"
	"fmt"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
)

// Intent is one decoded inbound message, ready for internal/sync to apply.
// Payload is one of the *Payload types below, selected by Type.
type Intent struct {
	Type       string
	SessionID  string
	OwnerToken string
	Payload    any
}

type GameNewPayload struct {
	Title       string `json:"title"`
	InitialSFEN string `json:"initial_sfen"`
}

type GameLoadPayload struct {
	GameID string `json:"game_id"`
}

type GameSavePayload struct {
	Title string            `json:"title"`
	Meta  map[string]string `json:"meta"`
}

type NodePlayMovePayload struct {
	FromNodeID string `json:"from_node_id"`
	MoveUSI    string `json:"move_usi"`
}

type NodeJumpPayload struct {
	NodeID string `json:"node_id"`
}

type NodeReorderChildrenPayload struct {
	ParentID        string   `json:"parent_id"`
	OrderedChildIDs []string `json:"ordered_child_ids"`
}

type NodeSetCommentPayload struct {
	NodeID  string `json:"node_id"`
	Comment string `json:"comment"`
}

type AnalysisSetEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

type AnalysisSetMultiPVPayload struct {
	MultiPV int `json:"multipv"`
}

// Decode parses a raw inbound frame into a typed Intent. An unrecognized
// type is a Malformed error; a recognized type with an unparsable payload
// is also Malformed, carrying the json error as detail.
func Decode(raw []byte) (Intent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Intent{}, kifuerr.Wrap(kifuerr.Malformed, err, "decode envelope")
	}

	intent := Intent{Type: env.Type, SessionID: env.SessionID, OwnerToken: env.OwnerToken}

	var err error
	switch env.Type {
	case TypeSessionTakeover, TypeAnalysisStart, TypeAnalysisStop:
		// no payload
	case TypeGameNew:
		intent.Payload, err = decodePayload[GameNewPayload](env.Payload)
	case TypeGameLoad:
		intent.Payload, err = decodePayload[GameLoadPayload](env.Payload)
	case TypeGameSave:
		intent.Payload, err = decodePayload[GameSavePayload](env.Payload)
	case TypeNodePlayMove:
		intent.Payload, err = decodePayload[NodePlayMovePayload](env.Payload)
	case TypeNodeJump:
		intent.Payload, err = decodePayload[NodeJumpPayload](env.Payload)
	case TypeNodeReorderChildren:
		intent.Payload, err = decodePayload[NodeReorderChildrenPayload](env.Payload)
	case TypeNodeSetComment:
		intent.Payload, err = decodePayload[NodeSetCommentPayload](env.Payload)
	case TypeAnalysisSetEnabled:
		intent.Payload, err = decodePayload[AnalysisSetEnabledPayload](env.Payload)
	case TypeAnalysisSetMultiPV:
		intent.Payload, err = decodePayload[AnalysisSetMultiPVPayload](env.Payload)
	default:
		return Intent{}, kifuerr.New(kifuerr.Malformed, "unknown message type %q", env.Type)
	}
	if err != nil {
		return Intent{}, kifuerr.Wrap(kifuerr.Malformed, err, "decode %v payload", env.Type)
	}
	return intent, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w", err)
	}
	return v, nil
}
