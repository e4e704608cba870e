// Package protocol defines the JSON text frames exchanged between clients and
// a room. Every frame carries a "type" tag and is dispatched on it.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/joehewett/eriswood/internal/model"
)

type MessageType string

// Client -> server.
const (
	TypePlayerUpdate   MessageType = "player_update"
	TypeLocationChange MessageType = "location_change"
	TypeHeartbeat      MessageType = "heartbeat"
)

// Server -> client.
const (
	TypePlayerList    MessageType = "player_list"
	TypePlayerJoined  MessageType = "player_joined"
	TypePlayerUpdated MessageType = "player_updated"
	TypePlayerLeft    MessageType = "player_left"
	TypeError         MessageType = "error"
)

// PlayerUpdate publishes the sender's full state vector. The first update from
// an unseen playerId creates the roster entry.
type PlayerUpdate struct {
	Type            MessageType           `json:"type"`
	PlayerID        string                `json:"playerId"`
	PlayerName      string                `json:"playerName"`
	Position        model.Position        `json:"position"`
	CurrentFrame    int                   `json:"currentFrame"`
	CurrentLocation model.GameLocation    `json:"currentLocation"`
	IsMoving        bool                  `json:"isMoving"`
	SpriteVariant   int                   `json:"spriteVariant"`
	FacingDirection model.FacingDirection `json:"facingDirection"`
}

// LocationChange announces the sender is leaving this room for another.
type LocationChange struct {
	Type        MessageType        `json:"type"`
	PlayerID    string             `json:"playerId"`
	NewLocation model.GameLocation `json:"newLocation"`
}

type Heartbeat struct {
	Type     MessageType `json:"type"`
	PlayerID string      `json:"playerId"`
}

// PlayerList is the roster snapshot sent once to a newly attached connection.
type PlayerList struct {
	Type    MessageType         `json:"type"`
	Players []model.PlayerState `json:"players"`
}

type PlayerJoined struct {
	Type   MessageType       `json:"type"`
	Player model.PlayerState `json:"player"`
}

type PlayerUpdated struct {
	Type   MessageType       `json:"type"`
	Player model.PlayerState `json:"player"`
}

type PlayerLeft struct {
	Type     MessageType `json:"type"`
	PlayerID string      `json:"playerId"`
}

type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// envelope peeks at the tag before the full payload is decoded.
type envelope struct {
	Type MessageType `json:"type"`
}

// DecodeClientMessage parses a client frame into one of PlayerUpdate,
// LocationChange or Heartbeat.
func DecodeClientMessage(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	switch env.Type {
	case TypePlayerUpdate:
		var msg PlayerUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode player_update: %w", err)
		}
		return msg, nil
	case TypeLocationChange:
		var msg LocationChange
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode location_change: %w", err)
		}
		return msg, nil
	case TypeHeartbeat:
		var msg Heartbeat
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode heartbeat: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// DecodeServerMessage parses a server frame into one of PlayerList,
// PlayerJoined, PlayerUpdated, PlayerLeft or Error.
func DecodeServerMessage(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	switch env.Type {
	case TypePlayerList:
		var msg PlayerList
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode player_list: %w", err)
		}
		return msg, nil
	case TypePlayerJoined:
		var msg PlayerJoined
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode player_joined: %w", err)
		}
		return msg, nil
	case TypePlayerUpdated:
		var msg PlayerUpdated
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode player_updated: %w", err)
		}
		return msg, nil
	case TypePlayerLeft:
		var msg PlayerLeft
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode player_left: %w", err)
		}
		return msg, nil
	case TypeError:
		var msg Error
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// NewPlayerUpdate fills in the tag so callers cannot forget it.
func NewPlayerUpdate(state model.PlayerState) PlayerUpdate {
	return PlayerUpdate{
		Type:            TypePlayerUpdate,
		PlayerID:        state.PlayerID,
		PlayerName:      state.PlayerName,
		Position:        state.Position,
		CurrentFrame:    state.CurrentFrame,
		CurrentLocation: state.CurrentLocation,
		IsMoving:        state.IsMoving,
		SpriteVariant:   state.SpriteVariant,
		FacingDirection: state.FacingDirection,
	}
}

func NewLocationChange(playerID string, newLocation model.GameLocation) LocationChange {
	return LocationChange{Type: TypeLocationChange, PlayerID: playerID, NewLocation: newLocation}
}

func NewHeartbeat(playerID string) Heartbeat {
	return Heartbeat{Type: TypeHeartbeat, PlayerID: playerID}
}

// RoomName derives the deterministic room identifier for a location.
func RoomName(location model.GameLocation) string {
	return fmt.Sprintf("location-%d", int(location))
}
