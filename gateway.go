package main

import (
	"encoding/json"
	"sync"
)

// GameServer is the connection gateway: it tracks live clients, routes every
// inbound message to the registry or the client's current room, and owns the
// client-to-room mapping. Room state itself is only ever touched through the
// room's own lock.
type GameServer struct {
	registry *RoomRegistry

	mu          sync.Mutex
	clients     map[*Client]bool
	clientRooms map[*Client]*GameRoom

	register   chan *Client
	unregister chan *Client
}

func NewGameServer(registry *RoomRegistry) *GameServer {
	return &GameServer{
		registry:    registry,
		clients:     make(map[*Client]bool),
		clientRooms: make(map[*Client]*GameRoom),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
	}
}

// Run serializes connect/disconnect bookkeeping. Gameplay messages do not
// pass through here; readPump dispatches them directly.
func (gs *GameServer) Run() {
	for {
		select {
		case client := <-gs.register:
			gs.mu.Lock()
			gs.clients[client] = true
			gs.mu.Unlock()
			Log.Infof("[WS] client connected: %s (%s)", client.id, client.name)

		case client := <-gs.unregister:
			gs.mu.Lock()
			_, known := gs.clients[client]
			if known {
				delete(gs.clients, client)
			}
			gs.mu.Unlock()
			if !known {
				continue
			}
			gs.leaveRoom(client)
			close(client.send)
			Log.Infof("[WS] client disconnected: %s", client.id)
		}
	}
}

// handleMessage is the single entry point for inbound traffic. Malformed
// envelopes and messages for rooms the client is not in are dropped silently;
// a panic while handling one room's message must never take down the other
// rooms, so everything below runs behind a recover.
func (gs *GameServer) handleMessage(client *Client, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			Log.Errorf("[WS] panic handling message from %s: %v", client.id, rec)
		}
	}()

	var msg GameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		Log.Debugf("[WS] invalid message from %s: %v", client.id, err)
		return
	}

	switch msg.Type {
	case MsgTypeJoinGame:
		gs.handleJoin(client, msg.Payload)

	case MsgTypePosition:
		var pos PositionPayload
		if err := json.Unmarshal(msg.Payload, &pos); err != nil {
			return
		}
		if room := gs.roomFor(client); room != nil {
			room.UpdatePosition(client.id, pos)
		}

	case MsgTypeReachedTop:
		var top ReachedTopPayload
		if err := json.Unmarshal(msg.Payload, &top); err != nil {
			return
		}
		if room := gs.roomFor(client); room != nil {
			room.PlayerReachedTop(client.id, top.Time)
		}

	case MsgTypeAttack:
		var atk AttackPayload
		if err := json.Unmarshal(msg.Payload, &atk); err != nil {
			return
		}
		if room := gs.roomFor(client); room != nil {
			room.HandleAttack(client.id, atk)
		}

	case MsgTypeUpdateSkin:
		var skin UpdateSkinPayload
		if err := json.Unmarshal(msg.Payload, &skin); err != nil || skin.SkinID == "" {
			return
		}
		if room := gs.roomFor(client); room != nil {
			room.UpdateSkin(client.id, skin.SkinID)
		}

	case MsgTypeLeaveGame:
		gs.leaveRoom(client)

	default:
		Log.Debugf("[WS] unknown message type %q from %s", msg.Type, client.id)
	}
}

// handleJoin runs matchmaking for one client. A failure while joining is the
// one error that is reported back to the sender instead of being swallowed.
func (gs *GameServer) handleJoin(client *Client, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			Log.Errorf("[WS] join failed for %s: %v", client.id, rec)
			client.enqueue(encodeMessage(MsgTypeJoinError, JoinErrorPayload{Error: "failed to join game"}))
		}
	}()

	if gs.roomFor(client) != nil {
		// Already matched; a rematch goes LEAVE_GAME first.
		return
	}

	var join JoinGamePayload
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &join) // missing skin falls back to default
	}

	room, joined := gs.registry.Join(client.id, join.SkinID, client)

	gs.mu.Lock()
	gs.clientRooms[client] = room
	gs.mu.Unlock()

	Log.Infof("[WS] %s joined %s as player %d", client.id, joined.RoomID, joined.PlayerNumber)
}

// leaveRoom detaches the client from its room (if any), forfeiting the match
// where the room rules say so, and evicts the room once it empties.
func (gs *GameServer) leaveRoom(client *Client) {
	gs.mu.Lock()
	room := gs.clientRooms[client]
	delete(gs.clientRooms, client)
	gs.mu.Unlock()

	if room == nil {
		return
	}
	if empty := room.RemovePlayer(client.id); empty {
		gs.registry.RemoveRoom(room.ID)
	}
}

func (gs *GameServer) roomFor(client *Client) *GameRoom {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.clientRooms[client]
}
