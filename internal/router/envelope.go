// Package router demultiplexes the JSON message envelope carried over the
// websocket channel (spec §4.6): it decodes inbound frames into typed
// Intents and encodes outbound events back into the wire envelope. It knows
// nothing about sessions, trees, or engines -- internal/sync applies
// whatever an Intent asks for.
package router

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	OwnerToken string          `json:"owner_token,omitempty"`
}

// Incoming message types (spec §4.6).
const (
	TypeSessionTakeover       = "session:takeover"
	TypeGameNew               = "game:new"
	TypeGameLoad              = "game:load"
	TypeGameSave              = "game:save"
	TypeNodePlayMove          = "node:play_move"
	TypeNodeJump              = "node:jump"
	TypeNodeReorderChildren   = "node:reorder_children"
	TypeNodeSetComment        = "node:set_comment"
	TypeAnalysisSetEnabled    = "analysis:set_enabled"
	TypeAnalysisSetMultiPV    = "analysis:set_multipv"
	TypeAnalysisStart         = "analysis:start"
	TypeAnalysisStop          = "analysis:stop"
)

// Outgoing message types (spec §4.6).
const (
	TypeSessionGranted  = "session:granted"
	TypeSessionBusy     = "session:busy"
	TypeSessionKicked   = "session:kicked"
	TypeSessionStale    = "session:stale"
	TypeGameState       = "game:state"
	TypeAnalysisUpdate  = "analysis:update"
	TypeAnalysisStopped = "analysis:stopped"
	TypeToast           = "toast"
)

// RequiresOwner reports whether a message of this type must pass the
// freshness check before the Synchronizer applies it. session:takeover is
// the one incoming type a non-owner may send.
func RequiresOwner(msgType string) bool {
	return msgType != TypeSessionTakeover
}

// Encode wraps payload into an outgoing Envelope and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %v payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
