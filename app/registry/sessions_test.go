package registry

import (
	"errors"
	"testing"
)

func TestSessionsBind(t *testing.T) {
	s := NewSessions()

	if err := s.Bind("conn-1", "room-a"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	roomId, ok := s.RoomOf("conn-1")
	if !ok || roomId != "room-a" {
		t.Fatalf("RoomOf = %q, %v", roomId, ok)
	}

	if err := s.Bind("conn-1", "room-b"); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
	if roomId, _ := s.RoomOf("conn-1"); roomId != "room-a" {
		t.Fatalf("failed rebind changed the binding to %q", roomId)
	}
}

func TestSessionsUnbindIdempotent(t *testing.T) {
	s := NewSessions()
	if err := s.Bind("conn-1", "room-a"); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	s.Unbind("conn-1")
	if _, ok := s.RoomOf("conn-1"); ok {
		t.Fatal("binding survived Unbind")
	}
	s.Unbind("conn-1")
	s.Unbind("conn-never")

	if err := s.Bind("conn-1", "room-b"); err != nil {
		t.Fatalf("rebind after unbind: %v", err)
	}
}
