package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"freight/internal/domain/job"
	"freight/internal/domain/shipment"
	"freight/internal/queue"

	"github.com/stretchr/testify/require"
)

func encodeJob(t *testing.T, j job.Job) []byte {
	t.Helper()
	_, value, err := queue.Encode(j, "test", "")
	require.NoError(t, err)
	return value
}

func runUntilDrained(t *testing.T, runner *Runner, sub *sliceSubscriber) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-sub.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not drain the subscriber")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRunnerProcessesAndAcks(t *testing.T) {
	store := newMemoryStore(&shipment.Shipment{ID: "s1"})
	messenger := &fakeMessenger{nextID: "msg-1"}
	consumer, _ := newTestConsumer(store, messenger)

	sub := newSliceSubscriber(
		encodeJob(t, job.NewCreate("s1")),
		[]byte("garbage"),
		encodeJob(t, job.NewCreate("missing")),
	)
	runner := NewRunner(sub, consumer, nil, RunnerConfig{Logger: discardLogger()})
	runUntilDrained(t, runner, sub)

	require.Equal(t, 3, sub.ackCount())
	require.Len(t, messenger.recorded(), 1)
	require.Equal(t, "msg-1", store.messageID("s1"))
}

func TestRunnerSkipsDuplicateDeliveries(t *testing.T) {
	store := newMemoryStore(&shipment.Shipment{ID: "s1", ExternalMessageID: "msg-1"})
	messenger := &fakeMessenger{}
	consumer, _ := newTestConsumer(store, messenger)

	value := encodeJob(t, job.NewUpdate("s1", "msg-1"))
	sub := newSliceSubscriber(value, value)
	runner := NewRunner(sub, consumer, newMemoryInbox(), RunnerConfig{Logger: discardLogger()})
	runUntilDrained(t, runner, sub)

	require.Equal(t, 2, sub.ackCount())
	require.Len(t, messenger.recorded(), 1)
}

func TestRunnerRetriesStoreFailures(t *testing.T) {
	store := newMemoryStore(&shipment.Shipment{ID: "s1"})
	store.getErr = errBoom
	messenger := &fakeMessenger{nextID: "msg-1"}
	consumer, _ := newTestConsumer(store, messenger)

	recorder := &waitRecorder{}
	sub := newSliceSubscriber(encodeJob(t, job.NewCreate("s1")))
	runner := NewRunner(sub, consumer, nil, RunnerConfig{
		MaxRetries:   3,
		RetryBackoff: time.Second,
		Wait:         recorder.wait,
		Logger:       discardLogger(),
	})
	runUntilDrained(t, runner, sub)

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, recorder.recorded())
	require.Equal(t, 1, sub.ackCount())
	require.Empty(t, messenger.recorded())
}

type failingSubscriber struct {
	err   error
	calls atomic.Int32
}

func (s *failingSubscriber) Receive(context.Context) (queue.Message, error) {
	s.calls.Add(1)
	return queue.Message{}, s.err
}

func (s *failingSubscriber) Close() error { return nil }

func TestRunnerStopsWhenSubscriberClosed(t *testing.T) {
	consumer, _ := newTestConsumer(newMemoryStore(), &fakeMessenger{})
	sub := &failingSubscriber{err: fmt.Errorf("delivery channel closed: %w", queue.ErrClosed)}
	runner := NewRunner(sub, consumer, nil, RunnerConfig{Logger: discardLogger()})

	err := runner.Run(context.Background())
	require.ErrorIs(t, err, queue.ErrClosed)
	require.Equal(t, int32(1), sub.calls.Load())
}

func TestRunnerRetriesTransientReceiveErrors(t *testing.T) {
	consumer, _ := newTestConsumer(newMemoryStore(), &fakeMessenger{})
	sub := &failingSubscriber{err: errors.New("broker rebalancing")}
	recorder := &waitRecorder{}
	runner := NewRunner(sub, consumer, nil, RunnerConfig{Logger: discardLogger(), Wait: recorder.wait})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return sub.calls.Load() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Contains(t, recorder.recorded(), time.Second)
}
