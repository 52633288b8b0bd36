package messaging

import (
	"context"
	"encoding/json"
	"time"

	"stay-reservations/pkg/utils"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher buffers messages in a channel and writes them from Run,
// keyed by reservation id so one reservation's events stay ordered.
type KafkaPublisher struct {
	w        messageWriter
	inbox    chan kafka.Message
	producer string
	log      *zap.Logger
}

func NewKafkaPublisher(cfg utils.KafkaConfig, producer string, log *zap.Logger) *KafkaPublisher {
	buf := cfg.Buffer
	if buf <= 0 {
		buf = 1024
	}
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, buf, producer, log)
}

func newKafkaPublisher(w messageWriter, buf int, producer string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w:        w,
		inbox:    make(chan kafka.Message, buf),
		producer: producer,
		log:      log.With(zap.String("component", "kafka_publisher")),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	env, err := NewEnvelope(p.producer, eventType, key, payload, time.Now())
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}

	select {
	case p.inbox <- msg:
		return nil
	default:
		p.log.Warn("Dropping event, buffer full",
			zap.String("event_type", eventType),
			zap.String("key", key),
		)
		return ErrBufferFull
	}
}

// Run drains the inbox until ctx is cancelled, then flushes what is left
// and closes the writer. A write cut short by cancellation is retried in
// the flush.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return p.w.Close()
		case m := <-p.inbox:
			if err := p.write(ctx, m); err != nil && ctx.Err() != nil {
				p.flush(m)
				return p.w.Close()
			}
		}
	}
}

func (p *KafkaPublisher) flush(carried ...kafka.Message) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, m := range carried {
		p.write(flushCtx, m)
	}
	for {
		select {
		case m := <-p.inbox:
			p.write(flushCtx, m)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) write(ctx context.Context, m kafka.Message) error {
	err := p.w.WriteMessages(ctx, m)
	if err != nil {
		p.log.Error("Failed to write event",
			zap.Error(err),
			zap.String("key", string(m.Key)),
		)
	}
	return err
}
