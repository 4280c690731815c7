package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainEvent "freight/internal/domain/event"
	"freight/internal/domain/job"

	"github.com/google/uuid"
)

const envelopeType = "ShipmentNotificationJob"

var (
	ErrMalformed = errors.New("malformed queue message")

	// ErrClosed is returned by a Subscriber that will never deliver again.
	ErrClosed = errors.New("queue subscriber closed")
)

// Message is one delivery handed to the notifier. Ack must be called
// once the message should not be redelivered.
type Message struct {
	Key   []byte
	Value []byte
	Ack   func(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Subscriber interface {
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Encode wraps a job into the event envelope. The returned key is the
// record id so that brokers which partition by key keep one record's
// jobs in order.
func Encode(j job.Job, producer string, causationID string) (key []byte, value []byte, err error) {
	payload, err := json.Marshal(j)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job: %w", err)
	}

	msg := domainEvent.Message{
		ID:            messageID(causationID),
		Type:          envelopeType,
		CorrelationID: j.RecordID,
		CausationID:   causationID,
		Producer:      producer,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}

	value, err = json.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return []byte(j.RecordID), value, nil
}

// messageID derives the envelope id from the outbox event that caused
// it, so a change republished after a failed MarkProcessed is still
// recognised by the consumer inbox.
func messageID(causationID string) string {
	if causationID == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(causationID)).String()
}

// Decode unwraps an envelope. The job itself is not validated here.
func Decode(value []byte) (domainEvent.Message, job.Job, error) {
	var msg domainEvent.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return msg, job.Job{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type != envelopeType {
		return msg, job.Job{}, fmt.Errorf("%w: unexpected envelope type %q", ErrMalformed, msg.Type)
	}

	var j job.Job
	if err := json.Unmarshal(msg.Payload, &j); err != nil {
		return msg, job.Job{}, fmt.Errorf("%w: job payload: %v", ErrMalformed, err)
	}
	return msg, j, nil
}
