package service

import (
	"context"
	"os"
	"strings"
	"time"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
	"marcel.works/circle-go/app/model"
)

var (
	db                = "circle"
	tableRooms        = "rooms"
	tableVotes        = "votes"
	fieldParticipants = "participants"
	fieldId           = "id"
	fieldOption       = "option"
)

type roomDoc struct {
	Id           string              `rethinkdb:"id"`
	Pin          string              `rethinkdb:"pin"`
	Capacity     int                 `rethinkdb:"max_players"`
	VsComputer   bool                `rethinkdb:"vs_computer"`
	CreatedAt    time.Time           `rethinkdb:"created_at"`
	Participants []model.Participant `rethinkdb:"participants"`
}

type voteDoc struct {
	Option    string    `rethinkdb:"option"`
	CreatedAt time.Time `rethinkdb:"created_at"`
}

type RethinkService struct {
	Session *r.Session
}

func (s *RethinkService) Connect() error {
	dbHostEnv := os.Getenv("CIRCLE_DB_HOSTS")
	if dbHostEnv == "" {
		dbHostEnv = "localhost:28015"
	}
	hosts := strings.Split(dbHostEnv, ",")
	session, err := r.Connect(r.ConnectOpts{
		Addresses: hosts,
	})
	if err != nil {
		return err
	}
	s.Session = session
	return nil
}

func (s *RethinkService) SaveRoom(ctx context.Context, room model.Room, participants []model.Participant) error {
	doc := roomDoc{
		Id:           room.Id,
		Pin:          room.Pin,
		Capacity:     room.Capacity,
		VsComputer:   room.VsComputer,
		CreatedAt:    room.CreatedAt,
		Participants: participants,
	}
	if doc.Participants == nil {
		doc.Participants = []model.Participant{}
	}
	_, err := r.DB(db).Table(tableRooms).Insert(doc).RunWrite(s.Session)
	return err
}

func (s *RethinkService) SaveParticipant(ctx context.Context, roomId string, p model.Participant) error {
	_, err := r.DB(db).Table(tableRooms).
		Get(roomId).
		Update(
			map[string]r.Term{fieldParticipants: r.Row.Field(fieldParticipants).Append(p)},
		).
		RunWrite(s.Session)
	return err
}

func (s *RethinkService) RemoveParticipant(ctx context.Context, roomId, participantId string) error {
	_, err := r.DB(db).Table(tableRooms).
		Get(roomId).
		Update(
			map[string]r.Term{fieldParticipants: r.Row.Field(fieldParticipants).Filter(func(p r.Term) r.Term {
				return p.Field(fieldId).Ne(participantId)
			})},
		).
		RunWrite(s.Session)
	return err
}

func (s *RethinkService) SavePosition(ctx context.Context, roomId, participantId string, x, y int) error {
	_, err := r.DB(db).Table(tableRooms).
		Get(roomId).
		Update(
			map[string]r.Term{fieldParticipants: r.Row.Field(fieldParticipants).Map(func(p r.Term) r.Term {
				return r.Branch(
					p.Field(fieldId).Eq(participantId),
					p.Merge(map[string]int{"x": x, "y": y}),
					p,
				)
			})},
		).
		RunWrite(s.Session)
	return err
}

func (s *RethinkService) RecordVote(ctx context.Context, option string) error {
	_, err := r.DB(db).Table(tableVotes).
		Insert(voteDoc{Option: option, CreatedAt: time.Now().UTC()}).
		RunWrite(s.Session)
	return err
}

func (s *RethinkService) VoteCounts(ctx context.Context) (model.VoteCounts, error) {
	option1, err := s.voteCount("option1")
	if err != nil {
		return model.VoteCounts{}, err
	}
	option2, err := s.voteCount("option2")
	if err != nil {
		return model.VoteCounts{}, err
	}
	return model.VoteCounts{Option1: option1, Option2: option2}, nil
}

func (s *RethinkService) voteCount(option string) (int64, error) {
	result, err := r.DB(db).Table(tableVotes).
		Filter(r.Row.Field(fieldOption).Eq(option)).
		Count().
		Run(s.Session)
	if err != nil {
		return 0, err
	}
	defer result.Close()

	var count int64
	if err := result.One(&count); err != nil {
		return 0, err
	}
	return count, nil
}
