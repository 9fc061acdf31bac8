package main

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// cleanupInterval is how often the scheduler sweeps for rooms that emptied
// without the normal eviction firing. The sweep is a safety net; the primary
// path is immediate removal when RemovePlayer reports an empty room.
const cleanupInterval = 5 // minutes

// RoomRegistry tracks every live room. Lock order is always registry before
// room; rooms never call back into the registry.
type RoomRegistry struct {
	mu       sync.Mutex
	rooms    map[string]*GameRoom
	recorder ResultRecorder
}

// RegistryStats is the payload of the operational stats endpoint.
type RegistryStats struct {
	TotalRooms   int `json:"totalRooms"`
	WaitingRooms int `json:"waitingRooms"`
	PlayingRooms int `json:"playingRooms"`
	TotalPlayers int `json:"totalPlayers"`
}

func NewRoomRegistry(recorder ResultRecorder) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[string]*GameRoom),
		recorder: recorder,
	}
}

// FindOrCreateRoom returns the first room with a free waiting slot, creating
// a fresh one when none exists.
func (reg *RoomRegistry) FindOrCreateRoom() *GameRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.findOrCreateLocked()
}

// Join runs matchmaking and admission as one step under the registry lock, so
// two racing joins cannot both land the last slot of the same room: exactly
// one becomes player 2, the other falls through to a fresh room.
func (reg *RoomRegistry) Join(clientID, skinID string, conn *Client) (*GameRoom, JoinedPayload) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room := reg.findOrCreateLocked()
	joined := room.AddPlayer(clientID, skinID, conn)
	return room, joined
}

// findOrCreateLocked is the first-fit scan. Caller holds reg.mu.
func (reg *RoomRegistry) findOrCreateLocked() *GameRoom {
	for _, room := range reg.rooms {
		if room.IsAvailable() {
			return room
		}
	}

	room := NewGameRoom(fmt.Sprintf("room_%s", uuid.NewString()), reg.recorder)
	reg.rooms[room.ID] = room
	Log.Infof("[REGISTRY] created room %s (total=%d)", room.ID, len(reg.rooms))
	return room
}

// GetRoom looks a room up by id.
func (reg *RoomRegistry) GetRoom(id string) *GameRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[id]
}

// RemoveRoom evicts a room once it has drained. Matchmaking can admit a new
// player between the caller observing the room empty and this call taking the
// registry lock, so occupancy is re-checked here; Join holds the same lock,
// which makes the check race-free. A refilled room is kept.
func (reg *RoomRegistry) RemoveRoom(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[id]
	if !ok {
		return
	}
	if room.PlayerCount() > 0 {
		Log.Infof("[REGISTRY] kept room %s: refilled before eviction", id)
		return
	}
	room.CancelCountdown()
	delete(reg.rooms, id)
	Log.Infof("[REGISTRY] removed room %s (total=%d)", id, len(reg.rooms))
}

// CleanupEmptyRooms removes rooms with zero players. Run periodically by the
// scheduler in main.
func (reg *RoomRegistry) CleanupEmptyRooms() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	for id, room := range reg.rooms {
		if room.PlayerCount() == 0 {
			room.CancelCountdown()
			delete(reg.rooms, id)
			removed++
		}
	}
	if removed > 0 {
		Log.Infof("[REGISTRY] sweep removed %d empty room(s), %d remain", removed, len(reg.rooms))
	}
}

// Stats aggregates room and player counts for the ops endpoint.
func (reg *RoomRegistry) Stats() RegistryStats {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	stats := RegistryStats{TotalRooms: len(reg.rooms)}
	for _, room := range reg.rooms {
		stats.TotalPlayers += room.PlayerCount()
		switch room.State() {
		case RoomWaiting:
			stats.WaitingRooms++
		case RoomCountdown, RoomRacing:
			stats.PlayingRooms++
		}
	}
	return stats
}
