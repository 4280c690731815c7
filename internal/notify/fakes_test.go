package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"freight/internal/discord"
	domainEvent "freight/internal/domain/event"
	"freight/internal/domain/shipment"
	"freight/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]*shipment.Shipment
	getErr  error
	setErr  error
	// raceWith, when set, is stored just before the compare-and-set runs.
	raceWith string
	// afterSet runs on the record after a successful compare-and-set.
	afterSet func(r *shipment.Shipment)
}

func newMemoryStore(records ...*shipment.Shipment) *memoryStore {
	store := &memoryStore{records: map[string]*shipment.Shipment{}}
	for _, r := range records {
		store.records[r.ID] = r
	}
	return store
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*shipment.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.records[id]
	if !ok {
		return nil, shipment.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *memoryStore) SetExternalMessageID(_ context.Context, id, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	r, ok := s.records[id]
	if !ok {
		return false, shipment.ErrNotFound
	}
	if s.raceWith != "" {
		r.ExternalMessageID = s.raceWith
	}
	if r.ExternalMessageID != "" {
		return false, nil
	}
	r.ExternalMessageID = messageID
	if s.afterSet != nil {
		s.afterSet(r)
	}
	return true, nil
}

func (s *memoryStore) ReplaceExternalMessageID(_ context.Context, id, oldID, newID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	r, ok := s.records[id]
	if !ok {
		return false, shipment.ErrNotFound
	}
	if r.ExternalMessageID != oldID {
		return false, nil
	}
	r.ExternalMessageID = newID
	return true, nil
}

func (s *memoryStore) failSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr = err
}

func (s *memoryStore) messageID(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].ExternalMessageID
}

type messengerCall struct {
	op        string
	messageID string
	message   discord.Message
}

type fakeMessenger struct {
	mu      sync.Mutex
	calls   []messengerCall
	nextID  string
	err     error
	editErr error
	deleted []string
}

func (m *fakeMessenger) CreateMessage(_ context.Context, message discord.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messengerCall{op: "create", message: message})
	if m.err != nil {
		return "", m.err
	}
	return m.nextID, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, messageID string, message discord.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messengerCall{op: "edit", messageID: messageID, message: message})
	if m.editErr != nil {
		return "", m.editErr
	}
	if m.err != nil {
		return "", m.err
	}
	return messageID, nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) recorded() []messengerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]messengerCall(nil), m.calls...)
}

type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()
	return ctx.Err()
}

func (w *waitRecorder) recorded() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

type publishedMessage struct {
	key, value []byte
}

type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (q *fakeQueue) Publish(_ context.Context, key, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, publishedMessage{key: key, value: value})
	return nil
}

func (q *fakeQueue) Close() error { return nil }

// sliceSubscriber hands out queued messages and then blocks until the
// context is cancelled.
type sliceSubscriber struct {
	mu       sync.Mutex
	messages []queue.Message
	acked    []string
	drained  chan struct{}
}

func newSliceSubscriber(values ...[]byte) *sliceSubscriber {
	sub := &sliceSubscriber{drained: make(chan struct{})}
	for _, v := range values {
		value := v
		sub.messages = append(sub.messages, queue.Message{
			Value: value,
			Ack: func(context.Context) error {
				sub.mu.Lock()
				defer sub.mu.Unlock()
				sub.acked = append(sub.acked, string(value))
				return nil
			},
		})
	}
	return sub
}

func (s *sliceSubscriber) Receive(ctx context.Context) (queue.Message, error) {
	s.mu.Lock()
	if len(s.messages) > 0 {
		msg := s.messages[0]
		s.messages = s.messages[1:]
		s.mu.Unlock()
		return msg, nil
	}
	s.mu.Unlock()

	select {
	case <-s.drained:
	default:
		close(s.drained)
	}
	<-ctx.Done()
	return queue.Message{}, ctx.Err()
}

func (s *sliceSubscriber) Close() error { return nil }

func (s *sliceSubscriber) ackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acked)
}

type memoryInbox struct {
	mu        sync.Mutex
	processed map[string]bool
}

func newMemoryInbox() *memoryInbox {
	return &memoryInbox{processed: map[string]bool{}}
}

func (i *memoryInbox) IsProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.processed[consumer+"/"+eventID], nil
}

func (i *memoryInbox) MarkProcessed(_ context.Context, consumer string, msg domainEvent.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.processed[consumer+"/"+msg.ID] = true
	return nil
}

var errBoom = errors.New("boom")
