package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subscriber feeds room events into the gateway.
type Subscriber struct {
	nc     *nats.Conn
	sink   RoomEvents
	logger *zap.SugaredLogger
	subs   []*nats.Subscription
}

func NewSubscriber(nc *nats.Conn, sink RoomEvents, logger *zap.SugaredLogger) *Subscriber {
	return &Subscriber{nc: nc, sink: sink, logger: logger}
}

func (s *Subscriber) Start() error {
	if err := subscribe(s, subjectRequestCreated, s.sink.RequestCreated); err != nil {
		return err
	}
	if err := subscribe(s, subjectRequestResponded, s.sink.RequestResponded); err != nil {
		return err
	}
	if err := subscribe(s, subjectRoomCreated, s.sink.RoomCreated); err != nil {
		return err
	}
	if err := subscribe(s, subjectMemberAdded, s.sink.MemberAdded); err != nil {
		return err
	}
	if err := subscribe(s, subjectMemberRemoved, s.sink.MemberRemoved); err != nil {
		return err
	}
	return subscribe(s, subjectRoomDeleted, s.sink.RoomDeleted)
}

func subscribe[T any](s *Subscriber, subject string, handle func(T)) error {
	sub, err := s.nc.Subscribe(subject, func(m *nats.Msg) {
		var ev T
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			s.logger.Warnw("invalid room event", "subject", subject, "err", err)
			return
		}
		handle(ev)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
}
