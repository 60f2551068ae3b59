package messages

import (
	"encoding/json"

	"github.com/openvtt/battlemap/pkg/types"
)

// Event types. Client events carry a battlefield ID for room scoping;
// server events are already room-scoped and omit it.
const (
	// client -> server
	EventJoinBattlefield  = "join-battlefield"
	EventLeaveBattlefield = "leave-battlefield"
	EventTokenMove        = "token-move"
	EventTokensUpdate     = "tokens-update"
	EventMapUpdate        = "map-update"

	// server -> room, excluding sender
	EventTokenMoved    = "token-moved"
	EventTokensUpdated = "tokens-updated"
	EventMapUpdated    = "map-updated"

	// server -> sender
	EventError = "error"
)

// Message is the envelope for all realtime traffic.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds a message, marshaling the payload. It panics if the payload
// cannot be marshaled, which only happens with a programming error.
func New(eventType string, payload interface{}) *Message {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &Message{
		Type:    eventType,
		Payload: b,
	}
}

type JoinBattlefield struct {
	BattlefieldID string `json:"battlefieldId"`
}

type LeaveBattlefield struct {
	BattlefieldID string `json:"battlefieldId"`
}

type TokenMove struct {
	BattlefieldID string  `json:"battlefieldId"`
	TokenID       string  `json:"tokenId"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
}

type TokenMoved struct {
	TokenID string  `json:"tokenId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type TokensUpdate struct {
	BattlefieldID string        `json:"battlefieldId"`
	Tokens        []types.Token `json:"tokens"`
}

type TokensUpdated struct {
	Tokens []types.Token `json:"tokens"`
}

type MapUpdate struct {
	BattlefieldID string  `json:"battlefieldId"`
	MapImageURL   *string `json:"mapImageUrl,omitempty"`
	GridSize      *int    `json:"gridSize,omitempty"`
}

type MapUpdated struct {
	MapImageURL *string `json:"mapImageUrl,omitempty"`
	GridSize    *int    `json:"gridSize,omitempty"`
}

type Error struct {
	Reason string `json:"reason"`
}
