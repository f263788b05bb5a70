package registry

import (
	"errors"
	"sync"
)

var ErrAlreadyBound = errors.New("connection already bound to a room")

// Sessions records which room a connection is currently a member of. A
// connection is bound to at most one room at a time.
type Sessions struct {
	mu    sync.Mutex
	rooms map[string]string // connection id -> room id
}

func NewSessions() *Sessions {
	return &Sessions{rooms: make(map[string]string)}
}

func (s *Sessions) Bind(connId, roomId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, bound := s.rooms[connId]; bound {
		return ErrAlreadyBound
	}
	s.rooms[connId] = roomId
	return nil
}

func (s *Sessions) Unbind(connId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, connId)
}

func (s *Sessions) RoomOf(connId string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomId, ok := s.rooms[connId]
	return roomId, ok
}
