package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventTypeMailRequested tags mail events on the topic.
const EventTypeMailRequested = "mail.requested"

var ErrNoRecipient = errors.New("mail: empty recipient")

// MessageWriter is the subset of *kafka.Writer the dispatcher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Source       string
	BatchTimeout time.Duration
}

// Event is the envelope written to the topic.
type Event struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Version     int             `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	Data        json.RawMessage `json:"data"`
}

// Message is the Data payload of a mail event.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// KafkaDispatcher treats a mail as accepted once the broker has acknowledged
// the event. Delivery to the inbox is the consumer's job.
type KafkaDispatcher struct {
	writer MessageWriter
	topic  string
	source string
	logger *slog.Logger
	now    func() time.Time
}

var _ authcore.MailDispatcher = (*KafkaDispatcher)(nil)

// NewKafkaDispatcher creates a dispatcher with its own kafka.Writer.
func NewKafkaDispatcher(cfg KafkaConfig, logger *slog.Logger) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("mail: no kafka brokers configured")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafkaDispatcherWithWriter(w, cfg.Topic, cfg.Source, logger), nil
}

func NewKafkaDispatcherWithWriter(w MessageWriter, topic, source string, logger *slog.Logger) *KafkaDispatcher {
	if topic == "" {
		topic = "auth.mail"
	}
	if source == "" {
		source = "authcore"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KafkaDispatcher{
		writer: w,
		topic:  topic,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Send publishes one mail event keyed by recipient, so mails to the same
// address stay ordered within a partition.
func (d *KafkaDispatcher) Send(ctx context.Context, to, subject, htmlBody string) (authcore.MailResult, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return authcore.MailResult{}, ErrNoRecipient
	}

	data, err := json.Marshal(Message{To: to, Subject: subject, HTMLBody: htmlBody})
	if err != nil {
		return authcore.MailResult{}, fmt.Errorf("marshal mail: %w", err)
	}
	event := Event{
		EventID:     uuid.NewString(),
		EventType:   EventTypeMailRequested,
		AggregateID: to,
		Version:     1,
		Timestamp:   d.now().UTC(),
		Source:      d.source,
		Data:        data,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return authcore.MailResult{}, fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: d.topic,
		Key:   []byte(to),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "failed to publish mail event",
			slog.String("topic", d.topic),
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return authcore.MailResult{}, fmt.Errorf("publish mail to %s: %w", d.topic, err)
	}

	d.logger.DebugContext(ctx, "mail event published",
		slog.String("topic", d.topic),
		slog.String("event_id", event.EventID),
	)
	return authcore.MailResult{MessageID: event.EventID, Accepted: []string{to}}, nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
