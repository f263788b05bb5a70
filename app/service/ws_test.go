package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"marcel.works/circle-go/app/coordinator"
	"marcel.works/circle-go/app/model"
	"marcel.works/circle-go/app/registry"
)

type nopStore struct{}

func (nopStore) SaveRoom(context.Context, model.Room, []model.Participant) error  { return nil }
func (nopStore) SaveParticipant(context.Context, string, model.Participant) error { return nil }
func (nopStore) RemoveParticipant(context.Context, string, string) error          { return nil }
func (nopStore) SavePosition(context.Context, string, string, int, int) error     { return nil }
func (nopStore) RecordVote(context.Context, string) error                         { return nil }
func (nopStore) VoteCounts(context.Context) (model.VoteCounts, error) {
	return model.VoteCounts{}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop().Sugar()
	reg := registry.New()
	coord := &coordinator.Coordinator{
		Registry: reg,
		Sessions: registry.NewSessions(),
		Store:    nopStore{},
		Logger:   logger,
	}
	ws := NewWsService(coord, reg, logger)
	coord.Gateway = ws
	srv := httptest.NewServer(ws.Router())
	t.Cleanup(srv.Close)
	return srv
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func createRoom(t *testing.T, srv *httptest.Server, vsComputer bool) (string, string) {
	t.Helper()
	body, _ := json.Marshal(model.CreateRoomRequest{VsComputer: vsComputer})
	resp, err := http.Post(srv.URL+"/create-room", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create-room: %v", err)
	}
	defer resp.Body.Close()
	var created map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create-room response: %v", err)
	}
	if created["room_id"] == "" || created["pin"] == "" {
		t.Fatalf("incomplete create-room response: %v", created)
	}
	return created["room_id"], created["pin"]
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(data)
	payload, _ := json.Marshal(map[string]interface{}{"event": event, "data": json.RawMessage(raw)})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt model.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return evt
}

func readSnapshot(t *testing.T, conn *websocket.Conn) model.Snapshot {
	t.Helper()
	evt := readEvent(t, conn)
	if evt.Event != "update_players" {
		t.Fatalf("event %q, want update_players", evt.Event)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(evt.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestJoinAndMoveOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	roomId, pin := createRoom(t, srv, false)

	conn1 := dialWs(t, srv)
	sendEvent(t, conn1, "join_room", model.JoinRequest{RoomId: roomId, Pin: pin, Username: "alice"})
	if snap := readSnapshot(t, conn1); len(snap) != 1 {
		t.Fatalf("first snapshot has %d entries, want 1", len(snap))
	}

	conn2 := dialWs(t, srv)
	sendEvent(t, conn2, "join_room", model.JoinRequest{RoomId: roomId, Pin: pin, Username: "bob"})
	if snap := readSnapshot(t, conn2); len(snap) != 2 {
		t.Fatalf("joiner snapshot has %d entries, want 2", len(snap))
	}
	if snap := readSnapshot(t, conn1); len(snap) != 2 {
		t.Fatalf("existing member snapshot has %d entries, want 2", len(snap))
	}

	sendEvent(t, conn1, "move", model.MoveRequest{RoomId: roomId, X: 50, Y: 75})
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		snap := readSnapshot(t, conn)
		moved := false
		for _, entry := range snap {
			if entry.Username == "alice" && entry.X == 50 && entry.Y == 75 {
				moved = true
			}
		}
		if !moved {
			t.Fatalf("snapshot does not reflect the move: %+v", snap)
		}
	}
}

func TestJoinErrorSeversConnection(t *testing.T) {
	srv := newTestServer(t)

	conn := dialWs(t, srv)
	sendEvent(t, conn, "join_room", model.JoinRequest{RoomId: "nope42", Pin: "123456"})

	evt := readEvent(t, conn)
	if evt.Event != "join_error" {
		t.Fatalf("event %q, want join_error", evt.Event)
	}
	var failure map[string]string
	if err := json.Unmarshal(evt.Data, &failure); err != nil {
		t.Fatalf("decode join_error: %v", err)
	}
	if failure["message"] != "room not found" {
		t.Fatalf("message %q", failure["message"])
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection stayed open after join_error")
	}
}

func TestVoteCountBroadcast(t *testing.T) {
	srv := newTestServer(t)
	roomId, pin := createRoom(t, srv, false)

	conn1 := dialWs(t, srv)
	sendEvent(t, conn1, "join_room", model.JoinRequest{RoomId: roomId, Pin: pin, Username: "alice"})
	readSnapshot(t, conn1)
	conn2 := dialWs(t, srv)
	sendEvent(t, conn2, "join_room", model.JoinRequest{RoomId: roomId, Pin: pin, Username: "bob"})
	readSnapshot(t, conn2)
	readSnapshot(t, conn1)

	sendEvent(t, conn1, "vote", model.VoteRequest{Option: "option1"})
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		evt := readEvent(t, conn)
		if evt.Event != "vote_count" {
			t.Fatalf("event %q, want vote_count", evt.Event)
		}
		var counts model.VoteCounts
		if err := json.Unmarshal(evt.Data, &counts); err != nil {
			t.Fatalf("decode vote_count: %v", err)
		}
		if counts.Option1 != 1 || counts.Option2 != 0 {
			t.Fatalf("counts = %+v", counts)
		}
	}
}

func TestRoomInfoEndpoint(t *testing.T) {
	srv := newTestServer(t)
	roomId, _ := createRoom(t, srv, true)

	resp, err := http.Get(srv.URL + "/rooms/" + roomId)
	if err != nil {
		t.Fatalf("room info: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var info map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode room info: %v", err)
	}
	if info["room_id"] != roomId {
		t.Fatalf("room_id = %v", info["room_id"])
	}
	if _, leaked := info["pin"]; leaked {
		t.Fatal("room info leaks the pin")
	}

	missing, err := http.Get(srv.URL + "/rooms/nope42")
	if err != nil {
		t.Fatalf("room info: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d for unknown room", missing.StatusCode)
	}
}
