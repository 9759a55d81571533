package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaNotifier publishes notification events to the notifications topic,
// keyed by recipient so one user's notifications stay ordered.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *zap.SugaredLogger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.SugaredLogger) *KafkaNotifier {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaNotifier{writer: w, logger: logger}
}

func (n *KafkaNotifier) Notify(userID string, ev Event) {
	ev.UserID = userID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		n.logger.Errorw("marshal notification", "err", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg := kafka.Message{Key: []byte(userID), Value: b, Time: time.Now()}
		if err := n.writer.WriteMessages(ctx, msg); err != nil {
			n.logger.Warnw("notification publish failed", "type", ev.Type, "user", userID, "err", err)
		}
	}()
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
