package main

import "time"

// Spawn offsets by player number. Player 1 spawns left of center, player 2
// right of it; everything else about the spawn is client-side.
const (
	player1StartX = -2.0
	player2StartX = 2.0
	defaultSkinID = "player"
)

// GamePlayer is the per-connection record a room owns. All mutation happens
// under the owning room's lock; the struct itself carries no locking.
type GamePlayer struct {
	ID     string
	Number int // 1 or 2, assigned by join order

	X         float64
	Y         float64
	VelocityY float64
	// State is an opaque bag of animation flags (jumping, gliding, ...)
	// relayed to the opponent verbatim. The server never interprets it.
	State map[string]interface{}

	SkinID     string
	Finished   bool
	FinishTime float64 // client race clock, ms; valid only when Finished

	lastHitTime time.Time

	conn *Client // send side only; nil in tests
}

// PlayerView is the network-safe projection of a player record.
type PlayerView struct {
	ID           string                 `json:"id"`
	PlayerNumber int                    `json:"playerNumber"`
	X            float64                `json:"x"`
	Y            float64                `json:"y"`
	SkinID       string                 `json:"skinId"`
	State        map[string]interface{} `json:"state,omitempty"`
	Finished     bool                   `json:"finished"`
}

func NewGamePlayer(id string, number int, skinID string, conn *Client) *GamePlayer {
	if skinID == "" {
		skinID = defaultSkinID
	}
	return &GamePlayer{
		ID:     id,
		Number: number,
		X:      spawnX(number),
		SkinID: skinID,
		conn:   conn,
	}
}

func spawnX(number int) float64 {
	if number == 1 {
		return player1StartX
	}
	return player2StartX
}

// UpdatePosition overwrites the last self-reported position. No validation:
// the client is authoritative for its own movement.
func (p *GamePlayer) UpdatePosition(x, y, velocityY float64, state map[string]interface{}) {
	p.X = x
	p.Y = y
	p.VelocityY = velocityY
	p.State = state
}

// MarkFinished records the client-reported race time. The room gates this by
// state, so calling it is always valid here.
func (p *GamePlayer) MarkFinished(t float64) {
	p.Finished = true
	p.FinishTime = t
}

// ResetForRematch restores the spawn position and clears the finish flags.
// Rematches normally go back through matchmaking into a fresh room, but the
// record supports an in-place reset.
func (p *GamePlayer) ResetForRematch() {
	p.X = spawnX(p.Number)
	p.Y = 0
	p.VelocityY = 0
	p.State = nil
	p.Finished = false
	p.FinishTime = 0
}

// Serialize returns the view sent to clients, excluding the connection.
func (p *GamePlayer) Serialize() PlayerView {
	return PlayerView{
		ID:           p.ID,
		PlayerNumber: p.Number,
		X:            p.X,
		Y:            p.Y,
		SkinID:       p.SkinID,
		State:        p.State,
		Finished:     p.Finished,
	}
}
