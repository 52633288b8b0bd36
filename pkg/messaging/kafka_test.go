package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaPublisher_FlushesOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, 8, "test", zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), "reservation.confirmed", "res-1", map[string]string{"status": "confirmed"}))
	require.NoError(t, p.Publish(context.Background(), "reservation.cancelled", "res-1", map[string]string{"status": "cancelled"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "res-1", string(w.msgs[0].Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, "reservation.confirmed", env.EventType)
	assert.Equal(t, "test", env.Producer)
	assert.Equal(t, "res-1", env.CorrelationID)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(env.Payload))
}

func TestKafkaPublisher_DropsWhenFull(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{}, 1, "test", zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), "a", "k", nil))
	assert.ErrorIs(t, p.Publish(context.Background(), "b", "k", nil), ErrBufferFull)
}

func TestKafkaPublisher_WritesWhileRunning(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, 8, "test", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Publish(context.Background(), "reservation.created", "res-2", nil))
	assert.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.msgs) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// stallingWriter blocks its first write until the caller's context ends.
type stallingWriter struct {
	fakeWriter
	entered chan struct{}
	once    sync.Once
}

func (s *stallingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	stalled := false
	s.once.Do(func() {
		stalled = true
		close(s.entered)
	})
	if stalled {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.fakeWriter.WriteMessages(ctx, msgs...)
}

func TestKafkaPublisher_ShutdownInterruptsStalledWrite(t *testing.T) {
	w := &stallingWriter{entered: make(chan struct{})}
	p := newKafkaPublisher(w, 8, "test", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Publish(context.Background(), "reservation.created", "res-3", nil))
	select {
	case <-w.entered:
	case <-time.After(time.Second):
		t.Fatal("write never started")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run stayed blocked on the broker write")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.True(t, w.closed)
	require.Len(t, w.msgs, 1, "interrupted message is written during the flush")
	assert.Equal(t, "res-3", string(w.msgs[0].Key))
}
