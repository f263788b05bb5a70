package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"marcel.works/circle-go/app/model"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room full")
)

const (
	maxUsernameLen = 32
	maxColorLen    = 16

	defaultUsername = "Player"

	botUsername = "COMPUTER"
	botColor    = "#888888"
)

const (
	roomIdChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	roomPinChars = "0123456789"
	roomIdLen    = 6
	roomPinLen   = 6
)

type roomState struct {
	mu           sync.Mutex
	room         model.Room
	participants []*model.Participant // insertion order
}

// Registry owns all live rooms and their participants. Room lookups go
// through the registry lock, every mutation of a single room happens under
// that room's own lock so rooms never block each other. Mutating calls take
// an optional callback that runs before the room lock is released, so
// whatever the callback publishes is ordered with every later mutation of
// the same room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState

	connMu sync.Mutex
	conns  map[string]string // connection id -> room id
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]*roomState),
		conns: make(map[string]string),
	}
}

// CreateRoom generates a fresh id and pin and stores the room. With
// vsComputer the bot participant is created in the same step, so the room is
// never observable without its bot.
func (g *Registry) CreateRoom(vsComputer bool, capacity int) model.Room {
	state := &roomState{
		room: model.Room{
			Pin:        randString(roomPinChars, roomPinLen),
			Capacity:   capacity,
			VsComputer: vsComputer,
			CreatedAt:  time.Now().UTC(),
		},
	}
	if vsComputer {
		state.participants = append(state.participants, &model.Participant{
			Id:       uuid.New().String(),
			Username: botUsername,
			Color:    botColor,
			X:        200,
			Y:        200,
			IsBot:    true,
		})
	}

	g.mu.Lock()
	for {
		id := randString(roomIdChars, roomIdLen)
		if _, taken := g.rooms[id]; !taken {
			state.room.Id = id
			g.rooms[id] = state
			break
		}
	}
	g.mu.Unlock()
	return state.room
}

func (g *Registry) GetRoom(roomId string) (model.Room, error) {
	state, ok := g.state(roomId)
	if !ok {
		return model.Room{}, ErrRoomNotFound
	}
	return state.room, nil
}

// ListParticipants returns a copy of the room's participants in insertion
// order.
func (g *Registry) ListParticipants(roomId string) ([]model.Participant, error) {
	state, ok := g.state(roomId)
	if !ok {
		return nil, ErrRoomNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	out := make([]model.Participant, 0, len(state.participants))
	for _, p := range state.participants {
		out = append(out, *p)
	}
	return out, nil
}

// AddParticipant admits a human into the room, assigning id, default
// position and default color. The capacity check and the insert happen
// under the room lock, so two racing joins for the last slot can never both
// succeed. The admitted callback runs with the room still locked; a non-nil
// error from it rolls the insert back and becomes the returned error. The
// returned snapshot is the room state right after the insert.
func (g *Registry) AddParticipant(roomId string, connId, username, color string, admitted func(model.Participant, model.Snapshot) error) (model.Participant, model.Snapshot, error) {
	state, ok := g.state(roomId)
	if !ok {
		return model.Participant{}, nil, ErrRoomNotFound
	}

	if username == "" {
		username = defaultUsername
	}
	if color == "" {
		color = randColor()
	}
	p := &model.Participant{
		Id:       uuid.New().String(),
		ConnId:   connId,
		Username: truncate(username, maxUsernameLen),
		Color:    truncate(color, maxColorLen),
		X:        100,
		Y:        100,
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.humanCount()+botSlot(state.room) >= state.room.Capacity {
		return model.Participant{}, nil, ErrRoomFull
	}
	state.participants = append(state.participants, p)

	g.connMu.Lock()
	g.conns[connId] = roomId
	g.connMu.Unlock()

	snap := state.snapshot()
	if admitted != nil {
		if err := admitted(*p, snap); err != nil {
			state.participants = state.participants[:len(state.participants)-1]
			g.connMu.Lock()
			delete(g.conns, connId)
			g.connMu.Unlock()
			return model.Participant{}, nil, err
		}
	}
	return *p, snap, nil
}

// UpdatePosition moves the participant owned by connId. A connection that is
// not a member of the room is reported back as ok=false and changes nothing.
// The moved callback runs with the room still locked.
func (g *Registry) UpdatePosition(roomId, connId string, x, y int, moved func(model.Participant, model.Snapshot)) (model.Participant, model.Snapshot, bool) {
	state, ok := g.state(roomId)
	if !ok {
		return model.Participant{}, nil, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	for _, p := range state.participants {
		if !p.IsBot && p.ConnId == connId {
			p.X = x
			p.Y = y
			snap := state.snapshot()
			if moved != nil {
				moved(*p, snap)
			}
			return *p, snap, true
		}
	}
	return model.Participant{}, nil, false
}

// RemoveByConnection drops the participant owned by connId from whatever
// room it is in. At most one participant exists per connection; calling this
// again for the same connection is a no-op. The gone callback runs with the
// room still locked.
func (g *Registry) RemoveByConnection(connId string, gone func(string, model.Participant, model.Snapshot)) (string, model.Participant, model.Snapshot, bool) {
	g.connMu.Lock()
	roomId, ok := g.conns[connId]
	g.connMu.Unlock()
	if !ok {
		return "", model.Participant{}, nil, false
	}
	state, ok := g.state(roomId)
	if !ok {
		return "", model.Participant{}, nil, false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	for i, p := range state.participants {
		if !p.IsBot && p.ConnId == connId {
			removed := *p
			state.participants = append(state.participants[:i], state.participants[i+1:]...)
			g.connMu.Lock()
			delete(g.conns, connId)
			g.connMu.Unlock()
			snap := state.snapshot()
			if gone != nil {
				gone(roomId, removed, snap)
			}
			return roomId, removed, snap, true
		}
	}
	return "", model.Participant{}, nil, false
}

func (g *Registry) state(roomId string) (*roomState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	state, ok := g.rooms[roomId]
	return state, ok
}

// humanCount is called with the room lock held.
func (s *roomState) humanCount() int {
	count := 0
	for _, p := range s.participants {
		if !p.IsBot {
			count++
		}
	}
	return count
}

// snapshot is called with the room lock held.
func (s *roomState) snapshot() model.Snapshot {
	snap := make(model.Snapshot, len(s.participants))
	for _, p := range s.participants {
		snap[p.Id] = model.SnapshotEntry{
			Username: p.Username,
			X:        p.X,
			Y:        p.Y,
			Color:    p.Color,
			IsBot:    p.IsBot,
		}
	}
	return snap
}

func botSlot(room model.Room) int {
	if room.VsComputer {
		return 1
	}
	return 0
}

// truncate limits by characters, not bytes, so a multi-byte name is never
// cut mid-rune.
func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) > max {
		return string(runes[:max])
	}
	return value
}

func randString(charset string, length int) string {
	max := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out)
}

func randColor() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "#" + hex.EncodeToString(buf)
}
