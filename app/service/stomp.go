package service

import (
	"os"
	"time"

	"github.com/go-stomp/stomp"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"marcel.works/circle-go/app/model"
)

const (
	_topicSnapshot = "/topic/circle_snapshot"
	_topicVotes    = "/topic/circle_votes"
)

// StompService relays every broadcast to the message broker so external
// observers can follow rooms without holding a websocket. Delivery is
// best-effort, a failed send is logged and forgotten.
type StompService struct {
	Connection *stomp.Conn
	Logger     *zap.SugaredLogger
}

func (s *StompService) Connect() error {
	brokerHost := os.Getenv("CIRCLE_BROKER_HOST")
	if brokerHost == "" {
		brokerHost = "localhost:61613"
	}
	brokerUser := os.Getenv("CIRCLE_BROKER_USER")
	brokerPass := os.Getenv("CIRCLE_BROKER_PASS")
	options := []func(conn *stomp.Conn) error{
		stomp.ConnOpt.Login(brokerUser, brokerPass),
		stomp.ConnOpt.Host("/"),
	}
	connection, err := stomp.Dial("tcp", brokerHost, options...)
	if err != nil {
		return err
	}
	s.Connection = connection
	return nil
}

func (s *StompService) PublishSnapshot(roomId string, snap model.Snapshot) {
	s.send(_topicSnapshot+"."+roomId, "update_players", snap)
}

func (s *StompService) PublishVotes(counts model.VoteCounts) {
	s.send(_topicVotes, "vote_count", counts)
}

func (s *StompService) send(topic, typ string, data interface{}) {
	broadcast := model.Broadcast{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now(),
	}
	payload, _ := json.Marshal(broadcast)
	if err := s.Connection.Send(topic, "text/plain", payload); err != nil {
		s.Logger.Warnw("could not send broadcast", "topic", topic, "error", err)
	}
}
