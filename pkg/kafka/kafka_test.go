package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestProducer_PublishPurchaseRegistered(t *testing.T) {
	writer := &fakeWriter{}
	producer := newProducer(writer, "clover-events", testLogger())

	err := producer.PublishPurchaseRegistered(context.Background(), models.Purchase{ID: 10, CustomerID: 3, ProductID: 4})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	assert.Equal(t, "3", string(msg.Key))
	assert.Equal(t, EventPurchaseRegistered, string(msg.Headers[0].Value))

	var event Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, EventPurchaseRegistered, event.EventType)
	assert.NotEmpty(t, event.EventID)

	var purchase models.Purchase
	require.NoError(t, json.Unmarshal(event.Data, &purchase))
	assert.Equal(t, int64(10), purchase.ID)
}

func TestProducer_PublishError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	producer := newProducer(writer, "clover-events", testLogger())

	err := producer.PublishRebuildCompleted(context.Background(), &models.RebuildResult{Outcome: models.RebuildSucceeded})
	assert.Error(t, err)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Key: []byte("ok"), Offset: 1},
		{Key: []byte("fail"), Offset: 2},
		{Key: []byte("ok"), Offset: 3},
	}}

	var mu sync.Mutex
	handled := 0
	consumer := newConsumer(reader, "ledger-changes", testLogger(), func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		handled++
		mu.Unlock()
		if string(msg.Key) == "fail" {
			return errors.New("rebuild aborted")
		}
		return nil
	})

	require.NoError(t, consumer.Start(context.Background()))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, consumer.Stop())

	assert.Equal(t, 2, reader.committedCount())
	assert.Equal(t, int64(1), reader.committed[0].Offset)
	assert.Equal(t, int64(3), reader.committed[1].Offset)
}

func TestRebuildHandler_RetriesWhileInProgress(t *testing.T) {
	calls := 0
	handler := RebuildHandler(func(context.Context) error {
		calls++
		if calls < 3 {
			return consolidation.ErrRebuildInProgress
		}
		return nil
	}, time.Millisecond, 5, testLogger())

	require.NoError(t, handler(context.Background(), kafka.Message{}))
	assert.Equal(t, 3, calls)
}

func TestRebuildHandler_GivesUp(t *testing.T) {
	calls := 0
	handler := RebuildHandler(func(context.Context) error {
		calls++
		return consolidation.ErrRebuildInProgress
	}, time.Millisecond, 2, testLogger())

	err := handler(context.Background(), kafka.Message{})
	assert.ErrorIs(t, err, consolidation.ErrRebuildInProgress)
	assert.Equal(t, 2, calls)
}

func TestRebuildHandler_OtherErrorsReturnImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	handler := RebuildHandler(func(context.Context) error {
		calls++
		return boom
	}, time.Millisecond, 5, testLogger())

	assert.ErrorIs(t, handler(context.Background(), kafka.Message{}), boom)
	assert.Equal(t, 1, calls)
}
