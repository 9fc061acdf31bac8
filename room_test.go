package main

import (
	"sync"
	"testing"
	"time"
)

// testRecorder captures settled races so tests can assert on what would have
// been persisted.
type testRecorder struct {
	mu      sync.Mutex
	results []RaceResult
}

func (tr *testRecorder) RecordResult(res RaceResult) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.results = append(tr.results, res)
}

func (tr *testRecorder) all() []RaceResult {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]RaceResult, len(tr.results))
	copy(out, tr.results)
	return out
}

func shortCountdown(t *testing.T) {
	t.Helper()
	old := countdownInterval
	countdownInterval = 5 * time.Millisecond
	t.Cleanup(func() { countdownInterval = old })
}

// forceRacing skips the countdown so combat and finish tests don't wait on
// real ticks.
func forceRacing(r *GameRoom) {
	r.mu.Lock()
	r.cancelCountdown()
	r.state = RoomRacing
	r.mu.Unlock()
}

// newPairedRoom admits two fake clients and drains the join traffic.
func newPairedRoom(t *testing.T, rec ResultRecorder) (*GameRoom, *Client, *Client) {
	t.Helper()
	room := NewGameRoom("room_test", rec)
	a := newTestClient("a")
	b := newTestClient("b")
	room.AddPlayer(a.id, "", a)
	room.AddPlayer(b.id, "ninja", b)
	drainMessages(t, a)
	drainMessages(t, b)
	return room, a, b
}

func TestAddPlayerAssignsNumbersAndSpawns(t *testing.T) {
	room := NewGameRoom("room_test", nil)
	a := newTestClient("a")
	b := newTestClient("b")

	first := room.AddPlayer(a.id, "", a)
	if first.PlayerNumber != 1 {
		t.Errorf("first join: got player number %d, want 1", first.PlayerNumber)
	}
	if first.StartX != player1StartX {
		t.Errorf("first join: got startX %.1f, want %.1f", first.StartX, player1StartX)
	}
	if first.State != "waiting" {
		t.Errorf("first join: got state %q, want waiting", first.State)
	}
	if len(first.Players) != 1 {
		t.Errorf("first join: roster has %d players, want 1", len(first.Players))
	}

	second := room.AddPlayer(b.id, "ninja", b)
	if second.PlayerNumber != 2 {
		t.Errorf("second join: got player number %d, want 2", second.PlayerNumber)
	}
	if second.StartX != player2StartX {
		t.Errorf("second join: got startX %.1f, want %.1f", second.StartX, player2StartX)
	}
	if second.State != "countdown" {
		t.Errorf("second join: got state %q, want countdown", second.State)
	}
	if len(second.Players) != 2 {
		t.Errorf("second join: roster has %d players, want 2", len(second.Players))
	}

	// The first occupant must have been told about the newcomer.
	msgs := drainMessages(t, a)
	joined := messagesOfType(msgs, MsgTypePlayerJoined)
	if len(joined) != 1 {
		t.Fatalf("got %d PLAYER_JOINED for first occupant, want 1", len(joined))
	}
	var view PlayerView
	decodePayload(t, joined[0], &view)
	if view.ID != b.id || view.PlayerNumber != 2 {
		t.Errorf("PLAYER_JOINED announced %s as #%d, want %s as #2", view.ID, view.PlayerNumber, b.id)
	}
	if view.SkinID != "ninja" {
		t.Errorf("PLAYER_JOINED carried skin %q, want ninja", view.SkinID)
	}

	// The newcomer never sees its own PLAYER_JOINED, only JOINED.
	bMsgs := drainMessages(t, b)
	if got := messagesOfType(bMsgs, MsgTypePlayerJoined); len(got) != 0 {
		t.Errorf("newcomer received %d PLAYER_JOINED about itself, want 0", len(got))
	}
	if got := messagesOfType(bMsgs, MsgTypeJoined); len(got) != 1 {
		t.Errorf("newcomer received %d JOINED, want 1", len(got))
	}
}

func TestEmptySkinFallsBackToDefault(t *testing.T) {
	room := NewGameRoom("room_test", nil)
	a := newTestClient("a")
	joined := room.AddPlayer(a.id, "", a)
	if joined.Players[0].SkinID != defaultSkinID {
		t.Errorf("got skin %q, want default %q", joined.Players[0].SkinID, defaultSkinID)
	}
}

func TestCountdownRunsThreeToRaceStart(t *testing.T) {
	shortCountdown(t)
	room, a, _ := newPairedRoom(t, nil)

	waitForRoomState(t, room, RoomRacing, time.Second)

	msgs := drainMessages(t, a)
	counts := messagesOfType(msgs, MsgTypeCountdown)
	if len(counts) != 3 {
		t.Fatalf("got %d COUNTDOWN messages, want 3", len(counts))
	}
	for i, want := range []int{3, 2, 1} {
		var p CountdownPayload
		decodePayload(t, counts[i], &p)
		if p.Count != want {
			t.Errorf("countdown tick %d: got %d, want %d", i, p.Count, want)
		}
	}

	starts := messagesOfType(msgs, MsgTypeRaceStart)
	if len(starts) != 1 {
		t.Fatalf("got %d RACE_START messages, want 1", len(starts))
	}
	var start RaceStartPayload
	decodePayload(t, starts[0], &start)
	if start.Timestamp <= 0 {
		t.Errorf("RACE_START carried timestamp %d, want a server unix-ms value", start.Timestamp)
	}
}

func TestLeaveDuringCountdownForfeits(t *testing.T) {
	rec := &testRecorder{}
	room, _, b := newPairedRoom(t, rec)

	if room.State() != RoomCountdown {
		t.Fatalf("room in state %s after two joins, want countdown", room.State())
	}
	empty := room.RemovePlayer("a")
	if empty {
		t.Error("RemovePlayer reported empty with one player left")
	}
	if room.State() != RoomFinished {
		t.Errorf("room in state %s after countdown forfeit, want finished", room.State())
	}
	if room.WinnerID() != "b" {
		t.Errorf("winner is %q, want b", room.WinnerID())
	}

	msgs := drainMessages(t, b)
	overs := messagesOfType(msgs, MsgTypeGameOver)
	if len(overs) != 1 {
		t.Fatalf("got %d GAME_OVER messages, want 1", len(overs))
	}
	var over GameOverPayload
	decodePayload(t, overs[0], &over)
	if over.Reason != ReasonOpponentLeft {
		t.Errorf("got reason %q, want %q", over.Reason, ReasonOpponentLeft)
	}
	if over.WinnerTime != nil {
		t.Errorf("forfeit carried a winner time %v, want none", *over.WinnerTime)
	}

	// The cancelled countdown must never fire a race start.
	time.Sleep(50 * time.Millisecond)
	if got := messagesOfType(drainMessages(t, b), MsgTypeRaceStart); len(got) != 0 {
		t.Errorf("cancelled countdown still emitted %d RACE_START", len(got))
	}

	results := rec.all()
	if len(results) != 1 {
		t.Fatalf("recorder captured %d results, want 1", len(results))
	}
	if results[0].WinnerUserID != "user_b" || results[0].LoserUserID != "user_a" {
		t.Errorf("recorded winner/loser %s/%s, want user_b/user_a",
			results[0].WinnerUserID, results[0].LoserUserID)
	}
	if results[0].WinnerTimeMs != 0 {
		t.Errorf("forfeit recorded winner time %.0f, want 0", results[0].WinnerTimeMs)
	}
}

func TestReachedTopSettlesRace(t *testing.T) {
	rec := &testRecorder{}
	room, a, b := newPairedRoom(t, rec)
	forceRacing(room)

	room.PlayerReachedTop("a", 42000)

	if room.State() != RoomFinished {
		t.Errorf("room in state %s after finish, want finished", room.State())
	}
	if room.WinnerID() != "a" {
		t.Errorf("winner is %q, want a", room.WinnerID())
	}

	for _, c := range []*Client{a, b} {
		overs := messagesOfType(drainMessages(t, c), MsgTypeGameOver)
		if len(overs) != 1 {
			t.Fatalf("client %s got %d GAME_OVER, want 1", c.id, len(overs))
		}
		var over GameOverPayload
		decodePayload(t, overs[0], &over)
		if over.WinnerID != "a" || over.WinnerNumber != 1 {
			t.Errorf("client %s: winner %s #%d, want a #1", c.id, over.WinnerID, over.WinnerNumber)
		}
		if over.Reason != ReasonReachedTop {
			t.Errorf("client %s: reason %q, want %q", c.id, over.Reason, ReasonReachedTop)
		}
		if over.WinnerTime == nil || *over.WinnerTime != 42000 {
			t.Errorf("client %s: winner time %v, want 42000", c.id, over.WinnerTime)
		}
	}

	results := rec.all()
	if len(results) != 1 {
		t.Fatalf("recorder captured %d results, want 1", len(results))
	}
	res := results[0]
	if res.WinnerUserID != "user_a" || res.LoserUserID != "user_b" {
		t.Errorf("recorded winner/loser %s/%s, want user_a/user_b", res.WinnerUserID, res.LoserUserID)
	}
	if res.WinnerTimeMs != 42000 {
		t.Errorf("recorded winner time %.0f, want 42000", res.WinnerTimeMs)
	}
	if res.Reason != ReasonReachedTop {
		t.Errorf("recorded reason %q, want %q", res.Reason, ReasonReachedTop)
	}
}

func TestSecondFinishReportIgnored(t *testing.T) {
	rec := &testRecorder{}
	room, a, b := newPairedRoom(t, rec)
	forceRacing(room)

	room.PlayerReachedTop("a", 42000)
	room.PlayerReachedTop("b", 43000)

	if room.WinnerID() != "a" {
		t.Errorf("winner is %q after late report, want a", room.WinnerID())
	}
	if got := messagesOfType(drainMessages(t, a), MsgTypeGameOver); len(got) != 1 {
		t.Errorf("got %d GAME_OVER, want 1", len(got))
	}
	if got := messagesOfType(drainMessages(t, b), MsgTypeGameOver); len(got) != 1 {
		t.Errorf("got %d GAME_OVER, want 1", len(got))
	}
	if len(rec.all()) != 1 {
		t.Errorf("recorder captured %d results, want 1", len(rec.all()))
	}
}

func TestFinishReportBeforeRaceStartIgnored(t *testing.T) {
	room := NewGameRoom("room_test", nil)
	a := newTestClient("a")
	room.AddPlayer(a.id, "", a)

	room.PlayerReachedTop("a", 100)

	if room.State() != RoomWaiting {
		t.Errorf("room in state %s, want waiting", room.State())
	}
	if got := messagesOfType(drainMessages(t, a), MsgTypeGameOver); len(got) != 0 {
		t.Errorf("got %d GAME_OVER before race start, want 0", len(got))
	}
}

func TestForfeitDuringRace(t *testing.T) {
	rec := &testRecorder{}
	room, _, b := newPairedRoom(t, rec)
	forceRacing(room)

	room.RemovePlayer("a")

	if room.State() != RoomFinished {
		t.Errorf("room in state %s, want finished", room.State())
	}
	msgs := drainMessages(t, b)
	if got := messagesOfType(msgs, MsgTypePlayerLeft); len(got) != 1 {
		t.Errorf("got %d PLAYER_LEFT, want 1", len(got))
	}
	overs := messagesOfType(msgs, MsgTypeGameOver)
	if len(overs) != 1 {
		t.Fatalf("got %d GAME_OVER, want 1", len(overs))
	}
	var over GameOverPayload
	decodePayload(t, overs[0], &over)
	if over.WinnerID != "b" || over.Reason != ReasonOpponentLeft {
		t.Errorf("got winner %s reason %s, want b %s", over.WinnerID, over.Reason, ReasonOpponentLeft)
	}
	if len(rec.all()) != 1 {
		t.Errorf("recorder captured %d results, want 1", len(rec.all()))
	}
}

func TestLeaveAfterFinishDoesNotResettle(t *testing.T) {
	rec := &testRecorder{}
	room, a, _ := newPairedRoom(t, rec)
	forceRacing(room)

	room.PlayerReachedTop("a", 30000)
	drainMessages(t, a)

	empty := room.RemovePlayer("b")
	if empty {
		t.Error("room reported empty with the winner still present")
	}
	if room.WinnerID() != "a" {
		t.Errorf("winner is %q after loser drained out, want a", room.WinnerID())
	}
	if got := messagesOfType(drainMessages(t, a), MsgTypeGameOver); len(got) != 0 {
		t.Errorf("got %d extra GAME_OVER, want 0", len(got))
	}
	if len(rec.all()) != 1 {
		t.Errorf("recorder captured %d results, want 1", len(rec.all()))
	}
}

func TestLeaveWhileWaitingPromotesRemainingPlayer(t *testing.T) {
	room, _, b := newPairedRoom(t, nil)
	// Wind the room back to waiting so the pre-match leave path runs.
	room.mu.Lock()
	room.cancelCountdown()
	room.state = RoomWaiting
	room.mu.Unlock()

	room.RemovePlayer("a")

	if room.State() != RoomWaiting {
		t.Errorf("room in state %s, want waiting", room.State())
	}
	room.mu.Lock()
	p := room.players["b"]
	room.mu.Unlock()
	if p.Number != 1 {
		t.Errorf("remaining player renumbered to %d, want 1", p.Number)
	}
	if p.X != player1StartX {
		t.Errorf("remaining player at x=%.1f, want %.1f", p.X, player1StartX)
	}
	if got := messagesOfType(drainMessages(t, b), MsgTypePlayerLeft); len(got) != 1 {
		t.Errorf("got %d PLAYER_LEFT, want 1", len(got))
	}
}

func TestRemoveLastPlayerReportsEmpty(t *testing.T) {
	room := NewGameRoom("room_test", nil)
	a := newTestClient("a")
	room.AddPlayer(a.id, "", a)
	if !room.RemovePlayer(a.id) {
		t.Error("RemovePlayer did not report the room empty")
	}
}

func TestPositionRelay(t *testing.T) {
	room, a, b := newPairedRoom(t, nil)
	forceRacing(room)

	room.UpdatePosition("a", PositionPayload{
		X: 3.5, Y: 12, VelocityY: -1.5,
		State: map[string]interface{}{"gliding": true},
	})

	relays := messagesOfType(drainMessages(t, b), MsgTypePlayerPos)
	if len(relays) != 1 {
		t.Fatalf("opponent got %d PLAYER_POSITION, want 1", len(relays))
	}
	var pos PlayerPositionPayload
	decodePayload(t, relays[0], &pos)
	if pos.ID != "a" || pos.X != 3.5 || pos.Y != 12 || pos.VelocityY != -1.5 {
		t.Errorf("relayed position %+v does not match the report", pos)
	}
	if pos.State["gliding"] != true {
		t.Errorf("animation state not relayed: %v", pos.State)
	}

	// The reporter never gets its own position echoed back.
	if got := messagesOfType(drainMessages(t, a), MsgTypePlayerPos); len(got) != 0 {
		t.Errorf("reporter received %d echoes of its own position", len(got))
	}

	room.mu.Lock()
	stored := room.players["a"]
	room.mu.Unlock()
	if stored.X != 3.5 || stored.Y != 12 {
		t.Errorf("stored position (%.1f, %.1f), want (3.5, 12.0)", stored.X, stored.Y)
	}
}

func TestPositionFromDepartedPlayerDropped(t *testing.T) {
	room, _, b := newPairedRoom(t, nil)
	forceRacing(room)
	room.RemovePlayer("a")
	drainMessages(t, b)

	room.UpdatePosition("a", PositionPayload{X: 1})

	if got := messagesOfType(drainMessages(t, b), MsgTypePlayerPos); len(got) != 0 {
		t.Errorf("got %d PLAYER_POSITION from a departed player, want 0", len(got))
	}
}

func TestUpdateSkinBroadcasts(t *testing.T) {
	room, a, b := newPairedRoom(t, nil)

	room.UpdateSkin("a", "robot")

	for _, c := range []*Client{a, b} {
		msgs := messagesOfType(drainMessages(t, c), MsgTypeSkinChanged)
		if len(msgs) != 1 {
			t.Fatalf("client %s got %d PLAYER_SKIN_CHANGED, want 1", c.id, len(msgs))
		}
		var p SkinChangedPayload
		decodePayload(t, msgs[0], &p)
		if p.ID != "a" || p.SkinID != "robot" {
			t.Errorf("client %s: got %+v, want a/robot", c.id, p)
		}
	}
}
