package service

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"marcel.works/circle-go/app/coordinator"
	"marcel.works/circle-go/app/model"
	"marcel.works/circle-go/app/registry"
)

const sendBufferSize = 16

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue hands a payload to the writer without blocking. A client whose
// buffer is full misses the frame and catches up on the next broadcast.
func (c *client) enqueue(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// shutdown stops the writer after it drained the queue, which closes the
// underlying connection.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writePump() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			break
		}
	}
	c.conn.Close()
}

// WsService is the websocket transport: it accepts connections, feeds their
// events to the coordinator and implements the coordinator's gateway.
type WsService struct {
	Coordinator *coordinator.Coordinator
	Registry    *registry.Registry
	Logger      *zap.SugaredLogger

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client            // connection id -> client
	rooms   map[string]map[string]*client // room id -> members
}

func NewWsService(coord *coordinator.Coordinator, reg *registry.Registry, logger *zap.SugaredLogger) *WsService {
	return &WsService{
		Coordinator: coord,
		Registry:    reg,
		Logger:      logger,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:     make(map[string]*client),
		rooms:       make(map[string]map[string]*client),
	}
}

func (s *WsService) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/create-room", s.handleCreateRoom).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{id}", s.handleRoomInfo).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleWs)
	return router
}

func (s *WsService) Serve() error {
	addr := os.Getenv("CIRCLE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	s.Logger.Infow("listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *WsService) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	// An empty or malformed body means a plain two-player room.
	var req model.CreateRoomRequest
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &req)

	room := s.Coordinator.CreateRoom(r.Context(), req.VsComputer)
	writeJSON(w, http.StatusOK, map[string]string{
		"room_id": room.Id,
		"pin":     room.Pin,
	})
}

func (s *WsService) handleRoomInfo(w http.ResponseWriter, r *http.Request) {
	room, err := s.Registry.GetRoom(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "room not found"})
		return
	}
	// The pin stays between the server and the creator.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":     room.Id,
		"max_players": room.Capacity,
		"vs_computer": room.VsComputer,
		"created_at":  room.CreatedAt,
	})
}

func (s *WsService) handleWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warnw("upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	go c.writePump()

	s.readLoop(c)

	s.drop(c)
	s.Coordinator.HandleDisconnect(context.Background(), c.id)
}

func (s *WsService) readLoop(c *client) {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var evt model.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			s.Logger.Debugw("dropping malformed frame", "conn", c.id, "error", err)
			continue
		}
		s.dispatch(c, evt)
	}
}

func (s *WsService) dispatch(c *client, evt model.Event) {
	ctx := context.Background()
	switch evt.Event {
	case "join_room":
		var req model.JoinRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			return
		}
		s.Coordinator.HandleJoin(ctx, c.id, req)
	case "move":
		var req model.MoveRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			return
		}
		s.Coordinator.HandleMove(ctx, c.id, req)
	case "vote":
		var req model.VoteRequest
		if err := json.Unmarshal(evt.Data, &req); err != nil {
			return
		}
		s.Coordinator.HandleVote(ctx, c.id, req.Option)
	default:
		s.Logger.Debugw("unknown event", "conn", c.id, "event", evt.Event)
	}
}

// drop unregisters the client from the hub and stops its writer.
func (s *WsService) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	for roomId, members := range s.rooms {
		delete(members, c.id)
		if len(members) == 0 {
			delete(s.rooms, roomId)
		}
	}
	s.mu.Unlock()
	c.shutdown()
}

// JoinRoom subscribes the connection to the room's broadcasts.
func (s *WsService) JoinRoom(connId, roomId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[connId]
	if !ok {
		return
	}
	members, ok := s.rooms[roomId]
	if !ok {
		members = make(map[string]*client)
		s.rooms[roomId] = members
	}
	members[connId] = c
}

func (s *WsService) PublishSnapshot(roomId string, snap model.Snapshot) {
	payload := encodeEvent("update_players", snap)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.rooms[roomId] {
		c.enqueue(payload)
	}
}

func (s *WsService) PublishVotes(counts model.VoteCounts) {
	payload := encodeEvent("vote_count", counts)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.enqueue(payload)
	}
}

// Reject delivers a join_error to one connection, then severs it once the
// writer flushed the message.
func (s *WsService) Reject(connId, message string) {
	s.mu.RLock()
	c, ok := s.clients[connId]
	s.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(encodeEvent("join_error", map[string]string{"message": message}))
	c.shutdown()
}

func encodeEvent(event string, data interface{}) []byte {
	payload, _ := json.Marshal(outbound{Event: event, Data: data})
	return payload
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, _ := json.Marshal(body)
	_, _ = w.Write(payload)
}
