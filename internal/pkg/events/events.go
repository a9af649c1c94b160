package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/segmentio/kafka-go"
)

// Event types
const (
	TypeStaged  = "media.staged"
	TypeLive    = "media.live"
	TypeRotated = "media.rotated"
	TypeDeleted = "media.deleted"
)

// Event is a media lifecycle notification
type Event struct {
	Type       string    `json:"type"`
	ID         string    `json:"_id"`
	Account    string    `json:"account,omitempty"`
	System     string    `json:"system,omitempty"`
	URL        string    `json:"url,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers lifecycle events. Publishing failures never fail the operation
// that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by media id
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a producer for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.ID),
		Value: b,
		Time:  e.OccurredAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NoopPublisher drops events
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, e Event) error { return nil }
func (NoopPublisher) Close() error                               { return nil }

// PublishAsync sends e in the background, logging failures. The request context is
// not reused because the event must outlive the request.
func PublishAsync(p Publisher, e Event) {
	if p == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, e); err != nil {
			log.Errorf("[Events] Failed to publish %s for %s: %v", e.Type, e.ID, err)
		}
	}()
}
