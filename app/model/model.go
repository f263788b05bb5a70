package model

import (
	"encoding/json"
	"time"
)

// Event is the envelope of every inbound websocket message.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinRequest struct {
	RoomId   string `json:"room_id"`
	Pin      string `json:"pin"`
	Username string `json:"username"`
	Color    string `json:"color"`
}

type MoveRequest struct {
	RoomId string `json:"room_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type VoteRequest struct {
	Option string `json:"option"`
}

type CreateRoomRequest struct {
	VsComputer bool `json:"vs_computer"`
}

type Room struct {
	Id         string    `json:"id" rethinkdb:"id"`
	Pin        string    `json:"pin" rethinkdb:"pin"`
	Capacity   int       `json:"max_players" rethinkdb:"max_players"`
	VsComputer bool      `json:"vs_computer" rethinkdb:"vs_computer"`
	CreatedAt  time.Time `json:"created_at" rethinkdb:"created_at"`
}

type Participant struct {
	Id       string `json:"id" rethinkdb:"id"`
	ConnId   string `json:"sid,omitempty" rethinkdb:"sid,omitempty"`
	Username string `json:"username" rethinkdb:"username"`
	Color    string `json:"color" rethinkdb:"color"`
	X        int    `json:"x" rethinkdb:"x"`
	Y        int    `json:"y" rethinkdb:"y"`
	IsBot    bool   `json:"is_bot" rethinkdb:"is_bot"`
}

// SnapshotEntry is one participant as seen on the wire.
type SnapshotEntry struct {
	Username string `json:"username"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Color    string `json:"color"`
	IsBot    bool   `json:"is_bot"`
}

// Snapshot maps participant id to its current state for a whole room.
type Snapshot map[string]SnapshotEntry

type VoteCounts struct {
	Option1 int64 `json:"option1"`
	Option2 int64 `json:"option2"`
}

type Broadcast struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
