package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher emits room events after the durable write committed. Publish
// failures are logged, never propagated: the REST response must not depend
// on the broadcast path.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.SugaredLogger
}

func NewPublisher(nc *nats.Conn, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

func (p *Publisher) publish(subject string, v any) {
	if p == nil || p.nc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		p.logger.Errorw("marshal room event", "subject", subject, "err", err)
		return
	}
	if err := p.nc.Publish(subject, b); err != nil {
		p.logger.Warnw("publish room event", "subject", subject, "err", err)
	}
}

func (p *Publisher) RequestCreated(ev RequestCreated)     { p.publish(subjectRequestCreated, ev) }
func (p *Publisher) RequestResponded(ev RequestResponded) { p.publish(subjectRequestResponded, ev) }
func (p *Publisher) RoomCreated(ev RoomCreated)           { p.publish(subjectRoomCreated, ev) }
func (p *Publisher) MemberAdded(ev MemberChanged)         { p.publish(subjectMemberAdded, ev) }
func (p *Publisher) MemberRemoved(ev MemberChanged)       { p.publish(subjectMemberRemoved, ev) }
func (p *Publisher) RoomDeleted(ev RoomDeleted)           { p.publish(subjectRoomDeleted, ev) }
