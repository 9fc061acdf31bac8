package main

import (
	"sync"
	"time"
)

// RoomState is the match lifecycle. Every room operation switches on this at
// entry, so transitions live in one place instead of scattered string checks.
type RoomState int

const (
	RoomWaiting RoomState = iota
	RoomCountdown
	RoomRacing
	RoomFinished
)

func (s RoomState) String() string {
	switch s {
	case RoomWaiting:
		return "waiting"
	case RoomCountdown:
		return "countdown"
	case RoomRacing:
		return "racing"
	case RoomFinished:
		return "finished"
	default:
		return "unknown"
	}
}

const (
	maxPlayersPerRoom = 2
	countdownStart    = 3

	// Combat tuning. The attack hitbox is centered attackReach units from the
	// attacker's reported position along the attack direction; bodies are
	// fixed-size boxes around the last reported position.
	hitCooldown      = 500 * time.Millisecond
	attackReach      = 1.5
	attackHalfWidth  = 1.2
	attackHalfHeight = 1.0
	bodyHalfWidth    = 0.5
	bodyHalfHeight   = 0.9

	knockbackX    = 8.0  // horizontal shove on a sideways hit
	knockbackY    = 5.0  // upward lift added to a sideways hit
	knockbackUp   = 12.0 // launch on an upward hit
	knockbackDown = -10.0
	knockbackSide = 3.0 // sideways nudge on vertical hits, away from the attacker
)

// countdownInterval is a var so tests can compress the countdown.
var countdownInterval = time.Second

// RaceResult is handed to the recorder once, when a room reaches finished.
type RaceResult struct {
	RaceID       string
	WinnerUserID string
	WinnerName   string
	LoserUserID  string
	LoserName    string
	Reason       string
	WinnerTimeMs float64 // zero on forfeit
	FinishedAt   int64   // unix seconds
}

// ResultRecorder persists finished races. Implementations must not block the
// caller; the room invokes it while holding its lock.
type ResultRecorder interface {
	RecordResult(res RaceResult)
}

// GameRoom owns one two-player match. Every exported method takes the room
// lock for its whole duration, so the two member connections (and the
// countdown goroutine) never interleave mutations.
type GameRoom struct {
	ID string

	mu       sync.Mutex
	players  map[string]*GamePlayer
	state    RoomState
	winnerID string

	// Non-nil exactly while state == RoomCountdown. Closing it cancels the
	// countdown goroutine.
	countdownStop chan struct{}

	recorder ResultRecorder // optional
}

func NewGameRoom(id string, recorder ResultRecorder) *GameRoom {
	return &GameRoom{
		ID:       id,
		players:  make(map[string]*GamePlayer),
		state:    RoomWaiting,
		recorder: recorder,
	}
}

// IsAvailable reports whether the registry may route a join here.
func (r *GameRoom) IsAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == RoomWaiting && len(r.players) < maxPlayersPerRoom
}

func (r *GameRoom) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *GameRoom) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *GameRoom) WinnerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winnerID
}

// AddPlayer admits a connection. The caller must have checked IsAvailable via
// the registry; a room never refuses here. The join result is unicast to the
// new player, the opponent (if present) gets PLAYER_JOINED, and the second
// admission starts the countdown.
func (r *GameRoom) AddPlayer(id, skinID string, conn *Client) JoinedPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	player := NewGamePlayer(id, len(r.players)+1, skinID, conn)

	// Announce to the existing occupant; the newcomer is not in the map yet
	// so this never echoes back.
	r.broadcast(MsgTypePlayerJoined, player.Serialize())

	r.players[id] = player

	if len(r.players) == maxPlayersPerRoom {
		r.startCountdown()
	}

	views := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		views = append(views, p.Serialize())
	}

	joined := JoinedPayload{
		RoomID:       r.ID,
		PlayerID:     id,
		PlayerNumber: player.Number,
		StartX:       player.X,
		Players:      views,
		State:        r.state.String(),
	}
	r.sendTo(player, MsgTypeJoined, joined)

	Log.Infof("[ROOM] %s: player %s joined as #%d (state=%s)", r.ID, id, player.Number, r.state)
	return joined
}

// UpdatePosition overwrites the player's self-reported position and relays it
// to the other occupant. Late messages for departed players are dropped.
func (r *GameRoom) UpdatePosition(id string, pos PositionPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return
	}
	p.UpdatePosition(pos.X, pos.Y, pos.VelocityY, pos.State)

	r.broadcastExcept(id, MsgTypePlayerPos, PlayerPositionPayload{
		ID:        id,
		X:         pos.X,
		Y:         pos.Y,
		VelocityY: pos.VelocityY,
		State:     pos.State,
	})
}

// PlayerReachedTop settles the race in favor of the reporting player. Only
// the first report during racing counts; everything else is a no-op.
func (r *GameRoom) PlayerReachedTop(id string, raceTime float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomRacing {
		return
	}
	winner, ok := r.players[id]
	if !ok {
		return
	}

	winner.MarkFinished(raceTime)
	r.state = RoomFinished
	r.winnerID = id

	t := raceTime
	r.broadcast(MsgTypeGameOver, GameOverPayload{
		WinnerID:     id,
		WinnerNumber: winner.Number,
		WinnerTime:   &t,
		Reason:       ReasonReachedTop,
	})

	var loser *GamePlayer
	for pid, p := range r.players {
		if pid != id {
			loser = p
		}
	}
	r.recordResult(winner, loser, ReasonReachedTop, raceTime)

	Log.Infof("[ROOM] %s: player %s reached the top at %.0fms", r.ID, id, raceTime)
}

// HandleAttack resolves a melee swing against every other player in the room.
// Direction has at most one non-zero axis. Victims inside their hit cooldown
// are skipped; a landed hit sends a private KNOCKBACK to the victim and a
// PLAYER_HIT broadcast to everyone, attacker included.
func (r *GameRoom) HandleAttack(attackerID string, atk AttackPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RoomRacing {
		return
	}
	attacker, ok := r.players[attackerID]
	if !ok {
		return
	}

	boxX := atk.X + atk.Direction.X*attackReach
	boxY := atk.Y + atk.Direction.Y*attackReach
	now := time.Now()

	for id, victim := range r.players {
		if id == attackerID {
			continue
		}
		if now.Sub(victim.lastHitTime) < hitCooldown {
			continue
		}
		if !boxesOverlap(boxX, boxY, attackHalfWidth, attackHalfHeight,
			victim.X, victim.Y, bodyHalfWidth, bodyHalfHeight) {
			continue
		}

		victim.lastHitTime = now
		kx, ky := knockbackVector(atk.Direction, attacker, victim)

		r.sendTo(victim, MsgTypeKnockback, KnockbackPayload{X: kx, Y: ky, AttackerID: attackerID})
		r.broadcast(MsgTypePlayerHit, PlayerHitPayload{
			HitPlayerID: id,
			AttackerID:  attackerID,
			Direction:   atk.Direction,
		})
	}
}

// knockbackVector computes the impulse sent to a hit player. Horizontal hits
// shove along the attack direction with some lift; vertical hits launch up or
// slam down with a small push away from the attacker's side.
func knockbackVector(dir Direction, attacker, victim *GamePlayer) (float64, float64) {
	side := 1.0
	if victim.X < attacker.X {
		side = -1.0
	}
	switch {
	case dir.X > 0:
		return knockbackX, knockbackY
	case dir.X < 0:
		return -knockbackX, knockbackY
	case dir.Y > 0:
		return side * knockbackSide, knockbackUp
	default:
		return side * knockbackSide, knockbackDown
	}
}

func boxesOverlap(ax, ay, ahw, ahh, bx, by, bhw, bhh float64) bool {
	if ax+ahw < bx-bhw || bx+bhw < ax-ahw {
		return false
	}
	if ay+ahh < by-bhh || by+bhh < ay-ahh {
		return false
	}
	return true
}

// RemovePlayer handles leave and disconnect. Mid-match it forfeits in favor
// of the remaining player; pre-match it renumbers whoever is left back to
// player 1. Returns true when the room is now empty so the caller can evict.
func (r *GameRoom) RemovePlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	leaver, ok := r.players[id]
	if !ok {
		return len(r.players) == 0
	}
	delete(r.players, id)

	// Remaining client cleans up its opponent sprite regardless of state.
	r.broadcast(MsgTypePlayerLeft, PlayerLeftPayload{ID: id})

	switch r.state {
	case RoomCountdown, RoomRacing:
		r.cancelCountdown()
		r.state = RoomFinished
		if len(r.players) == 1 {
			for wid, winner := range r.players {
				r.winnerID = wid
				r.broadcast(MsgTypeGameOver, GameOverPayload{
					WinnerID:     wid,
					WinnerNumber: winner.Number,
					Reason:       ReasonOpponentLeft,
				})
				r.recordResult(winner, leaver, ReasonOpponentLeft, 0)
			}
			Log.Infof("[ROOM] %s: %s left mid-match, forfeit to %s", r.ID, id, r.winnerID)
		}
	case RoomWaiting:
		for _, p := range r.players {
			p.Number = 1
			p.X = spawnX(1)
		}
	case RoomFinished:
		// Nothing to settle; players drain out after game over.
	}

	return len(r.players) == 0
}

// UpdateSkin is a cosmetic change, allowed in any state including mid-race.
func (r *GameRoom) UpdateSkin(id, skinID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return
	}
	p.SkinID = skinID
	r.broadcast(MsgTypeSkinChanged, SkinChangedPayload{ID: id, SkinID: skinID})
}

// CancelCountdown is the registry's defensive hook for concurrent teardown.
func (r *GameRoom) CancelCountdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelCountdown()
}

// startCountdown transitions to countdown and launches the ticker goroutine.
// Caller holds r.mu.
func (r *GameRoom) startCountdown() {
	r.state = RoomCountdown
	stop := make(chan struct{})
	r.countdownStop = stop
	go r.runCountdown(stop)
}

// cancelCountdown stops a pending countdown, if any. Caller holds r.mu.
func (r *GameRoom) cancelCountdown() {
	if r.countdownStop != nil {
		close(r.countdownStop)
		r.countdownStop = nil
	}
}

// runCountdown broadcasts 3, 2, 1 one second apart, then RACE_START with the
// server timestamp. A tick that fires after cancellation finds the state
// changed and exits without acting; that race is benign.
func (r *GameRoom) runCountdown(stop <-chan struct{}) {
	count := countdownStart
	ticker := time.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		if r.state != RoomCountdown {
			r.mu.Unlock()
			return
		}
		if count > 0 {
			r.broadcast(MsgTypeCountdown, CountdownPayload{Count: count})
		} else {
			r.state = RoomRacing
			r.countdownStop = nil
			r.broadcast(MsgTypeRaceStart, RaceStartPayload{Timestamp: time.Now().UnixMilli()})
			r.mu.Unlock()
			Log.Infof("[ROOM] %s: race started", r.ID)
			return
		}
		r.mu.Unlock()
		count--

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// --- outbound plumbing (always called with r.mu held) ---

func (r *GameRoom) broadcast(msgType string, payload interface{}) {
	b := encodeMessage(msgType, payload)
	if b == nil {
		return
	}
	for _, p := range r.players {
		if p.conn != nil {
			p.conn.enqueue(b)
		}
	}
}

func (r *GameRoom) broadcastExcept(exceptID, msgType string, payload interface{}) {
	b := encodeMessage(msgType, payload)
	if b == nil {
		return
	}
	for id, p := range r.players {
		if id != exceptID && p.conn != nil {
			p.conn.enqueue(b)
		}
	}
}

func (r *GameRoom) sendTo(p *GamePlayer, msgType string, payload interface{}) {
	if p.conn == nil {
		return
	}
	if b := encodeMessage(msgType, payload); b != nil {
		p.conn.enqueue(b)
	}
}

// recordResult hands the settled race to the recorder. Caller holds r.mu; the
// recorder must return promptly (the production one spawns a goroutine).
func (r *GameRoom) recordResult(winner, loser *GamePlayer, reason string, winnerTime float64) {
	if r.recorder == nil || winner == nil {
		return
	}
	res := RaceResult{
		RaceID:       r.ID,
		Reason:       reason,
		WinnerTimeMs: winnerTime,
		FinishedAt:   time.Now().Unix(),
	}
	res.WinnerUserID, res.WinnerName = playerIdentity(winner)
	if loser != nil {
		res.LoserUserID, res.LoserName = playerIdentity(loser)
	}
	r.recorder.RecordResult(res)
}

func playerIdentity(p *GamePlayer) (string, string) {
	if p.conn != nil && p.conn.userID != "" {
		return p.conn.userID, p.conn.name
	}
	return p.ID, ""
}
