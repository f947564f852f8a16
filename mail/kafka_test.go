package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaDispatcher_Send(t *testing.T) {
	w := &fakeWriter{}
	d := NewKafkaDispatcherWithWriter(w, "auth.mail", "authcore-test", nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	res, err := d.Send(context.Background(), " a@x.com ", "Reset Password", "<p>hi</p>")
	require.NoError(t, err)
	assert.True(t, res.Delivered())
	assert.Equal(t, []string{"a@x.com"}, res.Accepted)
	require.NotEmpty(t, res.MessageID)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "auth.mail", msg.Topic)
	assert.Equal(t, "a@x.com", string(msg.Key))
	assert.Equal(t, EventTypeMailRequested, headerValue(msg, "event_type"))
	assert.Equal(t, "authcore-test", headerValue(msg, "source"))

	var event Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, res.MessageID, event.EventID)
	assert.Equal(t, "a@x.com", event.AggregateID)
	assert.True(t, event.Timestamp.Equal(fixed))

	var payload Message
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.Equal(t, Message{To: "a@x.com", Subject: "Reset Password", HTMLBody: "<p>hi</p>"}, payload)
}

func TestKafkaDispatcher_WriteError(t *testing.T) {
	var logs bytes.Buffer
	w := &fakeWriter{err: errors.New("leader not available")}
	d := NewKafkaDispatcherWithWriter(w, "", "", slog.New(slog.NewTextHandler(&logs, nil)))

	res, err := d.Send(context.Background(), "a@x.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.mail")
	assert.False(t, res.Delivered())
	assert.Contains(t, logs.String(), "failed to publish mail event")
}

func TestKafkaDispatcher_EmptyRecipient(t *testing.T) {
	w := &fakeWriter{}
	d := NewKafkaDispatcherWithWriter(w, "", "", nil)

	_, err := d.Send(context.Background(), "  ", "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.Empty(t, w.msgs)

	require.NoError(t, d.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaDispatcher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaDispatcher(KafkaConfig{Topic: "auth.mail"}, nil)
	require.Error(t, err)

	d, err := NewKafkaDispatcher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "auth.mail", d.topic)
	require.NoError(t, d.Close())
}
