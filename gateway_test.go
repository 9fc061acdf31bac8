package main

import (
	"encoding/json"
	"testing"
)

func newTestServer() *GameServer {
	return NewGameServer(NewRoomRegistry(nil))
}

func sendRaw(t *testing.T, gs *GameServer, c *Client, msgType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(OutboundMessage{Type: msgType, Payload: payload})
	if err != nil {
		t.Fatalf("failed to build test message: %v", err)
	}
	gs.handleMessage(c, raw)
}

func TestJoinGameRoutesThroughMatchmaking(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")
	b := newTestClient("b")

	sendRaw(t, gs, a, MsgTypeJoinGame, JoinGamePayload{SkinID: "ninja"})
	sendRaw(t, gs, b, MsgTypeJoinGame, nil)

	roomA := gs.roomFor(a)
	roomB := gs.roomFor(b)
	if roomA == nil || roomA != roomB {
		t.Fatal("two joins did not land in the same room")
	}
	defer roomA.CancelCountdown()

	joins := messagesOfType(drainMessages(t, a), MsgTypeJoined)
	if len(joins) != 1 {
		t.Fatalf("got %d JOINED, want 1", len(joins))
	}
	var joined JoinedPayload
	decodePayload(t, joins[0], &joined)
	if joined.Players[0].SkinID != "ninja" {
		t.Errorf("skin from join payload not applied: got %q", joined.Players[0].SkinID)
	}
}

func TestDuplicateJoinIgnored(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")

	sendRaw(t, gs, a, MsgTypeJoinGame, nil)
	room := gs.roomFor(a)
	sendRaw(t, gs, a, MsgTypeJoinGame, nil)

	if gs.roomFor(a) != room {
		t.Error("second JOIN_GAME moved the client to a different room")
	}
	if got := room.PlayerCount(); got != 1 {
		t.Errorf("room holds %d players after duplicate join, want 1", got)
	}
}

func TestLeaveGameEvictsEmptyRoom(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")

	sendRaw(t, gs, a, MsgTypeJoinGame, nil)
	room := gs.roomFor(a)

	sendRaw(t, gs, a, MsgTypeLeaveGame, nil)

	if gs.roomFor(a) != nil {
		t.Error("client still mapped to a room after LEAVE_GAME")
	}
	if gs.registry.GetRoom(room.ID) != nil {
		t.Error("emptied room not evicted from the registry")
	}
}

func TestGameplayMessagesDispatchToRoom(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")
	b := newTestClient("b")
	sendRaw(t, gs, a, MsgTypeJoinGame, nil)
	sendRaw(t, gs, b, MsgTypeJoinGame, nil)
	room := gs.roomFor(a)
	forceRacing(room)
	drainMessages(t, a)
	drainMessages(t, b)

	sendRaw(t, gs, a, MsgTypePosition, PositionPayload{X: 5, Y: 2})
	if got := messagesOfType(drainMessages(t, b), MsgTypePlayerPos); len(got) != 1 {
		t.Errorf("POSITION not relayed: got %d PLAYER_POSITION", len(got))
	}

	sendRaw(t, gs, a, MsgTypeUpdateSkin, UpdateSkinPayload{SkinID: "robot"})
	if got := messagesOfType(drainMessages(t, b), MsgTypeSkinChanged); len(got) != 1 {
		t.Errorf("UPDATE_SKIN not broadcast: got %d PLAYER_SKIN_CHANGED", len(got))
	}

	sendRaw(t, gs, a, MsgTypeReachedTop, ReachedTopPayload{Time: 31000})
	if room.WinnerID() != "a" {
		t.Errorf("REACHED_TOP did not settle the race: winner %q", room.WinnerID())
	}
}

func TestGameplayMessagesBeforeJoinDropped(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")

	sendRaw(t, gs, a, MsgTypePosition, PositionPayload{X: 1})
	sendRaw(t, gs, a, MsgTypeReachedTop, ReachedTopPayload{Time: 100})
	sendRaw(t, gs, a, MsgTypeLeaveGame, nil)

	if msgs := drainMessages(t, a); len(msgs) != 0 {
		t.Errorf("roomless client received %d messages, want 0", len(msgs))
	}
}

func TestMalformedMessagesDoNotPanic(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")

	gs.handleMessage(a, []byte("not json"))
	gs.handleMessage(a, []byte(`{"type":"POSITION","payload":"not an object"}`))
	gs.handleMessage(a, []byte(`{"type":"NO_SUCH_TYPE"}`))

	if msgs := drainMessages(t, a); len(msgs) != 0 {
		t.Errorf("malformed traffic produced %d responses, want 0", len(msgs))
	}

	// A join with a garbage payload still succeeds on the default skin.
	gs.handleMessage(a, []byte(`{"type":"JOIN_GAME","payload":[1,2,3]}`))
	room := gs.roomFor(a)
	if room == nil {
		t.Fatal("join with unreadable payload should fall back to defaults")
	}
	defer room.CancelCountdown()
	if got := messagesOfType(drainMessages(t, a), MsgTypeJoined); len(got) != 1 {
		t.Errorf("got %d JOINED, want 1", len(got))
	}
}

func TestEmptySkinFieldRejectedForUpdate(t *testing.T) {
	gs := newTestServer()
	a := newTestClient("a")
	b := newTestClient("b")
	sendRaw(t, gs, a, MsgTypeJoinGame, nil)
	sendRaw(t, gs, b, MsgTypeJoinGame, nil)
	room := gs.roomFor(a)
	defer room.CancelCountdown()
	drainMessages(t, a)
	drainMessages(t, b)

	sendRaw(t, gs, a, MsgTypeUpdateSkin, UpdateSkinPayload{})

	if got := messagesOfType(drainMessages(t, b), MsgTypeSkinChanged); len(got) != 0 {
		t.Errorf("empty skin update still broadcast %d PLAYER_SKIN_CHANGED", len(got))
	}
}
