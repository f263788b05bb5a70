package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"marcel.works/circle-go/app/model"
	"marcel.works/circle-go/app/registry"
)

const defaultCapacity = 2

const (
	VoteOption1 = "option1"
	VoteOption2 = "option2"
)

// Gateway is the transport the coordinator pushes room state through. Calls
// are fire-and-forget, a slow or gone client is the gateway's problem.
type Gateway interface {
	JoinRoom(connId, roomId string)
	PublishSnapshot(roomId string, snap model.Snapshot)
	PublishVotes(counts model.VoteCounts)
	// Reject sends a join_error to one connection and severs it.
	Reject(connId, message string)
}

// Relay is an optional secondary fan-out, fed the same broadcasts as the
// gateway.
type Relay interface {
	PublishSnapshot(roomId string, snap model.Snapshot)
	PublishVotes(counts model.VoteCounts)
}

// Store persists rooms, participants and vote events. The in-memory
// registry stays authoritative, store failures are logged and absorbed.
type Store interface {
	SaveRoom(ctx context.Context, room model.Room, participants []model.Participant) error
	SaveParticipant(ctx context.Context, roomId string, p model.Participant) error
	RemoveParticipant(ctx context.Context, roomId, participantId string) error
	SavePosition(ctx context.Context, roomId, participantId string, x, y int) error
	RecordVote(ctx context.Context, option string) error
	VoteCounts(ctx context.Context) (model.VoteCounts, error)
}

// Coordinator serializes room mutations and triggers broadcasts. All
// transport events funnel through here.
type Coordinator struct {
	Registry *registry.Registry
	Sessions *registry.Sessions
	Gateway  Gateway
	Relay    Relay
	Store    Store
	Logger   *zap.SugaredLogger

	// voteMu spans increment and publish, so vote_count broadcasts leave
	// in counter order.
	voteMu  sync.Mutex
	option1 int64
	option2 int64
}

// SeedVotes loads the persisted vote counters, typically once at startup.
func (c *Coordinator) SeedVotes(ctx context.Context) {
	counts, err := c.Store.VoteCounts(ctx)
	if err != nil {
		c.Logger.Warnw("could not load vote counts", "error", err)
		return
	}
	atomic.StoreInt64(&c.option1, counts.Option1)
	atomic.StoreInt64(&c.option2, counts.Option2)
}

// CreateRoom registers a new room (with its bot, if vsComputer) and persists
// it. The returned room carries the plaintext pin for the creator.
func (c *Coordinator) CreateRoom(ctx context.Context, vsComputer bool) model.Room {
	room := c.Registry.CreateRoom(vsComputer, defaultCapacity)
	participants, _ := c.Registry.ListParticipants(room.Id)
	if err := c.Store.SaveRoom(ctx, room, participants); err != nil {
		c.Logger.Warnw("could not persist room", "room", room.Id, "error", err)
	}
	c.Logger.Infow("room created", "room", room.Id, "vs_computer", vsComputer)
	return room
}

// HandleJoin runs the join protocol: look up the room, check the pin, claim
// a capacity slot, bind the session, then broadcast. Every failure is
// reported to the joining connection only, which is then severed.
func (c *Coordinator) HandleJoin(ctx context.Context, connId string, req model.JoinRequest) {
	// A connection that is still bound elsewhere gets its stale membership
	// cleaned up first, then the join counts against capacity like any
	// other.
	if _, bound := c.Sessions.RoomOf(connId); bound {
		c.HandleDisconnect(ctx, connId)
	}

	room, err := c.Registry.GetRoom(req.RoomId)
	if err != nil {
		c.Gateway.Reject(connId, "room not found")
		return
	}
	if room.Pin != req.Pin {
		c.Gateway.Reject(connId, "wrong pin")
		return
	}

	// Binding and broadcasting happen inside the room's critical section:
	// the session map can never disagree with the presence table, and the
	// snapshot goes out before any later mutation of the room publishes.
	p, _, err := c.Registry.AddParticipant(room.Id, connId, req.Username, req.Color,
		func(p model.Participant, snap model.Snapshot) error {
			if err := c.Sessions.Bind(connId, room.Id); err != nil {
				return err
			}
			c.Gateway.JoinRoom(connId, room.Id)
			c.broadcast(room.Id, snap)
			return nil
		})
	if errors.Is(err, registry.ErrRoomFull) {
		c.Gateway.Reject(connId, fmt.Sprintf("room is full (max %d players)", room.Capacity))
		return
	}
	if errors.Is(err, registry.ErrAlreadyBound) {
		c.Logger.Errorw("could not bind session", "conn", connId, "room", room.Id, "error", err)
		c.Gateway.Reject(connId, "already in a room")
		return
	}
	if err != nil {
		c.Gateway.Reject(connId, "room not found")
		return
	}

	if err := c.Store.SaveParticipant(ctx, room.Id, p); err != nil {
		c.Logger.Warnw("could not persist participant", "room", room.Id, "error", err)
	}
	c.Logger.Infow("participant joined", "room", room.Id, "participant", p.Id)
}

// HandleMove applies a position update. Moves from connections that are not
// members of the named room are dropped without a reply.
func (c *Coordinator) HandleMove(ctx context.Context, connId string, req model.MoveRequest) {
	roomId, bound := c.Sessions.RoomOf(connId)
	if !bound || roomId != req.RoomId {
		return
	}
	p, _, ok := c.Registry.UpdatePosition(req.RoomId, connId, req.X, req.Y,
		func(_ model.Participant, snap model.Snapshot) {
			c.broadcast(req.RoomId, snap)
		})
	if !ok {
		return
	}

	if err := c.Store.SavePosition(ctx, req.RoomId, p.Id, req.X, req.Y); err != nil {
		c.Logger.Warnw("could not persist position", "room", req.RoomId, "error", err)
	}
}

// HandleDisconnect removes the connection's participant, if any, and tells
// the remaining members. Transports may report the same disconnect more
// than once, repeat calls are no-ops.
func (c *Coordinator) HandleDisconnect(ctx context.Context, connId string) {
	roomId, p, _, removed := c.Registry.RemoveByConnection(connId,
		func(roomId string, _ model.Participant, snap model.Snapshot) {
			c.Sessions.Unbind(connId)
			c.broadcast(roomId, snap)
		})
	if !removed {
		c.Sessions.Unbind(connId)
		return
	}

	if err := c.Store.RemoveParticipant(ctx, roomId, p.Id); err != nil {
		c.Logger.Warnw("could not remove persisted participant", "room", roomId, "error", err)
	}
	c.Logger.Infow("participant left", "room", roomId, "participant", p.Id)
}

// HandleVote bumps one of the two global counters and broadcasts the new
// totals to every connection. Unknown options are ignored.
func (c *Coordinator) HandleVote(ctx context.Context, connId, option string) {
	if option != VoteOption1 && option != VoteOption2 {
		return
	}

	c.voteMu.Lock()
	if option == VoteOption1 {
		atomic.AddInt64(&c.option1, 1)
	} else {
		atomic.AddInt64(&c.option2, 1)
	}
	counts := c.Votes()
	c.Gateway.PublishVotes(counts)
	if c.Relay != nil {
		c.Relay.PublishVotes(counts)
	}
	c.voteMu.Unlock()

	if err := c.Store.RecordVote(ctx, option); err != nil {
		c.Logger.Warnw("could not persist vote", "option", option, "error", err)
	}
}

func (c *Coordinator) Votes() model.VoteCounts {
	return model.VoteCounts{
		Option1: atomic.LoadInt64(&c.option1),
		Option2: atomic.LoadInt64(&c.option2),
	}
}

func (c *Coordinator) broadcast(roomId string, snap model.Snapshot) {
	c.Gateway.PublishSnapshot(roomId, snap)
	if c.Relay != nil {
		c.Relay.PublishSnapshot(roomId, snap)
	}
}
