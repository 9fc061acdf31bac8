package main

import "encoding/json"

// Message Types (client -> server)
const (
	MsgTypeJoinGame   = "JOIN_GAME"
	MsgTypePosition   = "POSITION"
	MsgTypeReachedTop = "REACHED_TOP"
	MsgTypeAttack     = "ATTACK"
	MsgTypeUpdateSkin = "UPDATE_SKIN"
	MsgTypeLeaveGame  = "LEAVE_GAME"
)

// Message Types (server -> client)
const (
	MsgTypeJoined       = "JOINED"
	MsgTypeJoinError    = "JOIN_ERROR"
	MsgTypePlayerJoined = "PLAYER_JOINED"
	MsgTypePlayerLeft   = "PLAYER_LEFT"
	MsgTypePlayerPos    = "PLAYER_POSITION"
	MsgTypeCountdown    = "COUNTDOWN"
	MsgTypeRaceStart    = "RACE_START"
	MsgTypeGameOver     = "GAME_OVER"
	MsgTypeKnockback    = "KNOCKBACK" // unicast to the victim only
	MsgTypePlayerHit    = "PLAYER_HIT"
	MsgTypeSkinChanged  = "PLAYER_SKIN_CHANGED"
)

// Game-over reasons
const (
	ReasonReachedTop   = "reached_top"
	ReasonOpponentLeft = "opponent_disconnected"
)

// GameMessage is the wire envelope for everything flowing over the websocket.
// Inbound payloads stay raw until the handler knows the concrete shape.
type GameMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage mirrors GameMessage with a typed payload for marshaling.
type OutboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// encodeMessage builds the wire bytes for an outbound event. Marshal errors
// are a programming bug (all payload types are plain structs/maps), so they
// are logged and swallowed rather than propagated into room logic.
func encodeMessage(msgType string, payload interface{}) []byte {
	b, err := json.Marshal(OutboundMessage{Type: msgType, Payload: payload})
	if err != nil {
		Log.Errorf("[WS] failed to encode %s message: %v", msgType, err)
		return nil
	}
	return b
}

// --- Inbound payloads ---

type JoinGamePayload struct {
	SkinID string `json:"skinId"`
}

type PositionPayload struct {
	X         float64                `json:"x"`
	Y         float64                `json:"y"`
	VelocityY float64                `json:"velocityY"`
	State     map[string]interface{} `json:"state,omitempty"`
}

type ReachedTopPayload struct {
	Time float64 `json:"time"` // client race clock, milliseconds
}

type AttackPayload struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Direction Direction `json:"direction"`
}

type Direction struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type UpdateSkinPayload struct {
	SkinID string `json:"skinId"`
}

// --- Outbound payloads ---

type JoinedPayload struct {
	RoomID       string       `json:"roomId"`
	PlayerID     string       `json:"playerId"`
	PlayerNumber int          `json:"playerNumber"`
	StartX       float64      `json:"startX"`
	Players      []PlayerView `json:"players"`
	State        string       `json:"state"`
}

type JoinErrorPayload struct {
	Error string `json:"error"`
}

type PlayerLeftPayload struct {
	ID string `json:"id"`
}

type PlayerPositionPayload struct {
	ID        string                 `json:"id"`
	X         float64                `json:"x"`
	Y         float64                `json:"y"`
	VelocityY float64                `json:"velocityY"`
	State     map[string]interface{} `json:"state,omitempty"`
}

type CountdownPayload struct {
	Count int `json:"count"`
}

type RaceStartPayload struct {
	Timestamp int64 `json:"timestamp"` // server clock, unix milliseconds
}

type GameOverPayload struct {
	WinnerID     string   `json:"winnerId"`
	WinnerNumber int      `json:"winnerNumber"`
	WinnerTime   *float64 `json:"winnerTime,omitempty"` // absent on forfeit
	Reason       string   `json:"reason"`
}

type KnockbackPayload struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	AttackerID string  `json:"attackerId"`
}

type PlayerHitPayload struct {
	HitPlayerID string    `json:"hitPlayerId"`
	AttackerID  string    `json:"attackerId"`
	Direction   Direction `json:"direction"`
}

type SkinChangedPayload struct {
	ID     string `json:"id"`
	SkinID string `json:"skinId"`
}
