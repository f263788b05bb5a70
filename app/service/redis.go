package service

import (
	"context"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/encoding/json"
	"marcel.works/circle-go/app/model"
)

const (
	_keyRoomPrefix = "room:"
	_keyVotePrefix = "votes:"
)

// storedRoom is the blob kept per room key, participants included.
type storedRoom struct {
	Room         model.Room          `json:"room"`
	Participants []model.Participant `json:"participants"`
}

type RedisService struct {
	Client *redis.Client
}

func (s *RedisService) Connect() error {
	auth := os.Getenv("CIRCLE_DB_AUTH")
	host := os.Getenv("CIRCLE_DB_HOST")
	if host == "" {
		host = "localhost:6379"
	}
	s.Client = redis.NewClient(&redis.Options{
		Addr:     host,
		Password: auth,
		DB:       0,
	})
	return s.Client.Ping(context.Background()).Err()
}

func (s *RedisService) SaveRoom(ctx context.Context, room model.Room, participants []model.Participant) error {
	payload, _ := json.Marshal(storedRoom{Room: room, Participants: participants})
	return s.Client.Set(ctx, _keyRoomPrefix+room.Id, payload, 0).Err()
}

func (s *RedisService) SaveParticipant(ctx context.Context, roomId string, p model.Participant) error {
	return s.mutateRoom(ctx, roomId, func(stored *storedRoom) {
		stored.Participants = append(stored.Participants, p)
	})
}

func (s *RedisService) RemoveParticipant(ctx context.Context, roomId, participantId string) error {
	return s.mutateRoom(ctx, roomId, func(stored *storedRoom) {
		kept := stored.Participants[:0]
		for _, p := range stored.Participants {
			if p.Id != participantId {
				kept = append(kept, p)
			}
		}
		stored.Participants = kept
	})
}

func (s *RedisService) SavePosition(ctx context.Context, roomId, participantId string, x, y int) error {
	return s.mutateRoom(ctx, roomId, func(stored *storedRoom) {
		for index, p := range stored.Participants {
			if p.Id == participantId {
				stored.Participants[index].X = x
				stored.Participants[index].Y = y
			}
		}
	})
}

func (s *RedisService) RecordVote(ctx context.Context, option string) error {
	return s.Client.Incr(ctx, _keyVotePrefix+option).Err()
}

func (s *RedisService) VoteCounts(ctx context.Context) (model.VoteCounts, error) {
	option1, err := s.voteCount(ctx, "option1")
	if err != nil {
		return model.VoteCounts{}, err
	}
	option2, err := s.voteCount(ctx, "option2")
	if err != nil {
		return model.VoteCounts{}, err
	}
	return model.VoteCounts{Option1: option1, Option2: option2}, nil
}

func (s *RedisService) voteCount(ctx context.Context, option string) (int64, error) {
	count, err := s.Client.Get(ctx, _keyVotePrefix+option).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

func (s *RedisService) mutateRoom(ctx context.Context, roomId string, mutate func(*storedRoom)) error {
	inbound, err := s.Client.Get(ctx, _keyRoomPrefix+roomId).Result()
	if err != nil {
		return err
	}
	var stored storedRoom
	_ = json.Unmarshal([]byte(inbound), &stored)
	mutate(&stored)
	outbound, _ := json.Marshal(stored)
	return s.Client.Set(ctx, _keyRoomPrefix+roomId, outbound, 0).Err()
}
