package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("permanent")

type MockTrackingHandler struct {
	mock.Mock
}

func (m *MockTrackingHandler) Ingest(ctx context.Context, raw []byte) error {
	args := m.Called(ctx, raw)
	return args.Error(0)
}

// fakeReader fails the first failFetches fetches, serves a fixed list of
// messages, then blocks until cancelled.
type fakeReader struct {
	mu          sync.Mutex
	messages    []kafka.Message
	committed   []kafka.Message
	failFetches int
	fetches     int
	stats       kafka.ReaderStats
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	r.fetches++
	if r.failFetches > 0 {
		r.failFetches--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unreachable")
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Stats() kafka.ReaderStats { return r.stats }
func (r *fakeReader) Close() error            { return nil }

func (r *fakeReader) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newTestConsumer(reader *fakeReader, writer *fakeWriter, handler TrackingHandler, maxRetries int) *TrackingConsumer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	c := newTrackingConsumer(reader, writer, handler, func(err error) bool {
		return errors.Is(err, errPermanent)
	}, "training-tracking-events", maxRetries, logger)
	c.baseDelay = time.Millisecond
	return c
}

func TestTrackingConsumer_ProcessWithRetry(t *testing.T) {
	raw := []byte(`{"type":"usage","payload":{}}`)

	t.Run("succeeds after transient failure", func(t *testing.T) {
		handler := new(MockTrackingHandler)
		handler.On("Ingest", mock.Anything, raw).Return(errors.New("busy")).Once()
		handler.On("Ingest", mock.Anything, raw).Return(nil).Once()

		c := newTestConsumer(&fakeReader{}, &fakeWriter{}, handler, 3)
		err := c.processWithRetry(context.Background(), kafka.Message{Value: raw})

		require.NoError(t, err)
		handler.AssertNumberOfCalls(t, "Ingest", 2)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		handler := new(MockTrackingHandler)
		handler.On("Ingest", mock.Anything, raw).Return(errPermanent)

		c := newTestConsumer(&fakeReader{}, &fakeWriter{}, handler, 3)
		err := c.processWithRetry(context.Background(), kafka.Message{Value: raw})

		assert.ErrorIs(t, err, errPermanent)
		handler.AssertNumberOfCalls(t, "Ingest", 1)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		handler := new(MockTrackingHandler)
		handler.On("Ingest", mock.Anything, raw).Return(errors.New("busy"))

		c := newTestConsumer(&fakeReader{}, &fakeWriter{}, handler, 2)
		err := c.processWithRetry(context.Background(), kafka.Message{Value: raw})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		handler.AssertNumberOfCalls(t, "Ingest", 3)
	})
}

func TestTrackingConsumer_Run(t *testing.T) {
	good := []byte(`{"type":"usage","payload":{"template_id":"t1"}}`)
	bad := []byte(`not json`)

	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: bad},
	}}
	writer := &fakeWriter{}

	handler := new(MockTrackingHandler)
	handler.On("Ingest", mock.Anything, good).Return(nil)
	handler.On("Ingest", mock.Anything, bad).Return(errPermanent)

	c := newTestConsumer(reader, writer, handler, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.messages, 1)

	var parked map[string]interface{}
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &parked))
	assert.Equal(t, "not json", parked["original_message"])
	assert.Equal(t, errPermanent.Error(), parked["error"])
	handler.AssertExpectations(t)
}

func TestTrackingConsumer_RunBacksOffOnFetchErrors(t *testing.T) {
	good := []byte(`{"type":"usage","payload":{"template_id":"t1"}}`)
	reader := &fakeReader{failFetches: 1000, messages: []kafka.Message{{Offset: 1, Value: good}}}

	handler := new(MockTrackingHandler)
	c := newTestConsumer(reader, &fakeWriter{}, handler, 3)
	c.baseDelay = 10 * time.Millisecond
	c.maxDelay = 40 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)

	// Waits of 10, 20, 40, 40 ms fit roughly five fetches into the window.
	fetches := reader.fetchCount()
	assert.GreaterOrEqual(t, fetches, 2)
	assert.LessOrEqual(t, fetches, 8)
	handler.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestTrackingConsumer_RunResetsBackoffAfterFetch(t *testing.T) {
	good := []byte(`{"type":"usage","payload":{"template_id":"t1"}}`)
	reader := &fakeReader{failFetches: 3, messages: []kafka.Message{{Offset: 1, Value: good}}}

	handler := new(MockTrackingHandler)
	handler.On("Ingest", mock.Anything, good).Return(nil)

	c := newTestConsumer(reader, &fakeWriter{}, handler, 3)
	c.baseDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	handler.AssertExpectations(t)
}

func TestTrackingConsumer_NextFetchDelay(t *testing.T) {
	c := newTestConsumer(&fakeReader{}, &fakeWriter{}, new(MockTrackingHandler), 3)
	c.baseDelay = time.Second
	c.maxDelay = 5 * time.Second

	tests := []struct {
		previous time.Duration
		want     time.Duration
	}{
		{0, time.Second},
		{time.Second, 2 * time.Second},
		{2 * time.Second, 4 * time.Second},
		{4 * time.Second, 5 * time.Second},
		{5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.nextFetchDelay(tt.previous), "after %v", tt.previous)
	}
}

func TestTrackingConsumer_GetMetrics(t *testing.T) {
	reader := &fakeReader{stats: kafka.ReaderStats{Lag: 12, Offset: 40, Messages: 41, Errors: 2}}
	c := newTestConsumer(reader, &fakeWriter{}, new(MockTrackingHandler), 3)

	metrics := c.GetMetrics()
	assert.Equal(t, int64(12), metrics["consumer_lag"])
	assert.Equal(t, int64(40), metrics["consumer_offset"])
	assert.Equal(t, int64(41), metrics["messages_read"])
	assert.Equal(t, int64(2), metrics["errors"])
}
