package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"freight/internal/discord"
	"freight/internal/domain/job"
	"freight/internal/domain/shipment"
)

// DefaultThrottle is the pause after each successful dispatch. With a
// single consumer it keeps the channel under Discord's global limit.
const DefaultThrottle = 1100 * time.Millisecond

var (
	ErrMalformedJob   = errors.New("malformed job")
	ErrRecordNotFound = errors.New("shipment record not found")
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrStore wraps failures to read the shipment store. These are the
	// only consumer errors worth retrying.
	ErrStore = errors.New("shipment store unavailable")
)

// ShipmentStore is the consumer's view of the document store.
type ShipmentStore interface {
	GetByID(ctx context.Context, id string) (*shipment.Shipment, error)
	// SetExternalMessageID stores messageID only if the record has none
	// yet and reports whether it did.
	SetExternalMessageID(ctx context.Context, id, messageID string) (bool, error)
	// ReplaceExternalMessageID stores newID only if the record still
	// holds oldID.
	ReplaceExternalMessageID(ctx context.Context, id, oldID, newID string) (bool, error)
}

// Messenger sends channel messages. *discord.Client implements it.
type Messenger interface {
	CreateMessage(ctx context.Context, message discord.Message) (string, error)
	EditMessage(ctx context.Context, messageID string, message discord.Message) (string, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

type ConsumerConfig struct {
	Throttle time.Duration
	Wait     discord.WaitFunc
	Logger   *slog.Logger
}

// Consumer handles one notification job at a time. It must not be
// shared between goroutines processing the same queue; the throttle
// assumes sequential calls.
type Consumer struct {
	store     ShipmentStore
	messenger Messenger
	renderer  *Renderer
	throttle  time.Duration
	wait      discord.WaitFunc
	logger    *slog.Logger

	// unsaved holds messages that were created but whose id could not be
	// written, keyed by shipment id. A retried CREATE stores the id
	// instead of posting again.
	unsaved map[string]string
}

func NewConsumer(store ShipmentStore, messenger Messenger, renderer *Renderer, cfg ConsumerConfig) *Consumer {
	wait := cfg.Wait
	if wait == nil {
		wait = discord.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:     store,
		messenger: messenger,
		renderer:  renderer,
		throttle:  cfg.Throttle,
		wait:      wait,
		logger:    logger.With("component", "consumer"),
		unsaved:   map[string]string{},
	}
}

// ProcessJob renders the current state of the job's shipment and creates
// or edits its channel message. It returns the message id on success.
// Errors are values for the caller to log; none of them should stop the
// worker.
func (c *Consumer) ProcessJob(ctx context.Context, j job.Job) (string, error) {
	started := time.Now()

	if err := j.Validate(); err != nil {
		c.logger.Error("dropping malformed job", "error", err, "type", j.Type, "shipment_id", j.RecordID)
		jobsProcessed.WithLabelValues(string(j.Type), "malformed").Inc()
		return "", fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	record, err := c.store.GetByID(ctx, j.RecordID)
	if errors.Is(err, shipment.ErrNotFound) {
		c.logger.Warn("dropping job, shipment no longer exists", "type", j.Type, "shipment_id", j.RecordID)
		jobsProcessed.WithLabelValues(string(j.Type), "not_found").Inc()
		return "", fmt.Errorf("%w: %s", ErrRecordNotFound, j.RecordID)
	}
	if err != nil {
		jobsProcessed.WithLabelValues(string(j.Type), "store_error").Inc()
		return "", fmt.Errorf("%w: load %s: %w", ErrStore, j.RecordID, err)
	}

	message := c.renderer.Render(record)

	var messageID string
	switch j.Type {
	case job.TypeCreate:
		messageID, err = c.create(ctx, record, message)
	case job.TypeUpdate:
		messageID, err = c.update(ctx, j, record, message)
	}
	if err != nil {
		jobsProcessed.WithLabelValues(string(j.Type), "failed").Inc()
		return "", err
	}

	processingDuration.Observe(time.Since(started).Seconds())
	jobsProcessed.WithLabelValues(string(j.Type), "success").Inc()

	// Cancellation only cuts the pause short; the dispatch already happened.
	_ = c.wait(ctx, c.throttle)
	return messageID, nil
}

func (c *Consumer) create(ctx context.Context, record *shipment.Shipment, message discord.Message) (string, error) {
	// A redelivered or reordered CREATE finds the id already stored.
	if record.ExternalMessageID != "" {
		if orphan, ok := c.unsaved[record.ID]; ok && orphan != record.ExternalMessageID {
			c.logger.Warn("deleting unsaved duplicate message", "shipment_id", record.ID, "duplicate_id", orphan)
			if err := c.messenger.DeleteMessage(ctx, orphan); err != nil {
				c.logger.Error("failed to delete duplicate message", "message_id", orphan, "error", err)
			}
		}
		delete(c.unsaved, record.ID)
		c.logger.Info("message already exists, editing instead of creating",
			"shipment_id", record.ID, "message_id", record.ExternalMessageID)
		return c.edit(ctx, record, record.ExternalMessageID, message)
	}

	messageID, ok := c.unsaved[record.ID]
	if ok {
		c.logger.Info("storing id of previously created message", "shipment_id", record.ID, "message_id", messageID)
	} else {
		var err error
		messageID, err = c.messenger.CreateMessage(ctx, message)
		if err != nil {
			c.logger.Error("failed to create message", "shipment_id", record.ID, "error", err)
			return "", fmt.Errorf("%w: create for %s: %w", ErrDispatchFailed, record.ID, err)
		}
	}

	stored, err := c.store.SetExternalMessageID(ctx, record.ID, messageID)
	if err != nil {
		c.unsaved[record.ID] = messageID
		c.logger.Error("message created but id not stored", "shipment_id", record.ID, "message_id", messageID, "error", err)
		return "", fmt.Errorf("%w: store message id for %s: %w", ErrStore, record.ID, err)
	}
	delete(c.unsaved, record.ID)

	if stored {
		c.logger.Info("message created", "shipment_id", record.ID, "message_id", messageID)
		c.refresh(ctx, record, messageID)
		return messageID, nil
	}

	// Another CREATE won the race; remove our copy and report the winner.
	c.logger.Warn("message id already set, deleting duplicate", "shipment_id", record.ID, "duplicate_id", messageID)
	if err := c.messenger.DeleteMessage(ctx, messageID); err != nil {
		c.logger.Error("failed to delete duplicate message", "message_id", messageID, "error", err)
	}
	current, err := c.store.GetByID(ctx, record.ID)
	if err != nil {
		return "", fmt.Errorf("%w: reload %s: %w", ErrStore, record.ID, err)
	}
	return current.ExternalMessageID, nil
}

// refresh edits a just-created message when the record changed while it
// was being posted. Updates committed in that window carry no message id
// and are never queued.
func (c *Consumer) refresh(ctx context.Context, rendered *shipment.Shipment, messageID string) {
	current, err := c.store.GetByID(ctx, rendered.ID)
	if err != nil {
		c.logger.Warn("could not reload record after create", "shipment_id", rendered.ID, "error", err)
		return
	}
	if !current.UpdatedAt.After(rendered.UpdatedAt) {
		return
	}
	c.logger.Info("record changed during create, editing", "shipment_id", rendered.ID, "message_id", messageID)
	if _, err := c.messenger.EditMessage(ctx, messageID, c.renderer.Render(current)); err != nil {
		c.logger.Error("failed to refresh created message", "shipment_id", rendered.ID, "message_id", messageID, "error", err)
	}
}

func (c *Consumer) update(ctx context.Context, j job.Job, record *shipment.Shipment, message discord.Message) (string, error) {
	messageID := record.ExternalMessageID
	if messageID == "" {
		messageID = j.ExternalMessageID
	} else if messageID != j.ExternalMessageID {
		c.logger.Warn("job message id differs from stored id, using stored",
			"shipment_id", record.ID, "job_message_id", j.ExternalMessageID, "message_id", messageID)
	}
	return c.edit(ctx, record, messageID, message)
}

func (c *Consumer) edit(ctx context.Context, record *shipment.Shipment, messageID string, message discord.Message) (string, error) {
	id, err := c.messenger.EditMessage(ctx, messageID, message)
	if discord.IsNotFound(err) && record.ExternalMessageID == messageID {
		return c.repost(ctx, record, messageID, message)
	}
	if err != nil {
		c.logger.Error("failed to edit message", "shipment_id", record.ID, "message_id", messageID, "error", err)
		return "", fmt.Errorf("%w: edit %s for %s: %w", ErrDispatchFailed, messageID, record.ID, err)
	}
	c.logger.Info("message updated", "shipment_id", record.ID, "message_id", id)
	return id, nil
}

// repost replaces a stored message that no longer exists in the channel.
func (c *Consumer) repost(ctx context.Context, record *shipment.Shipment, staleID string, message discord.Message) (string, error) {
	c.logger.Warn("stored message was deleted from the channel, posting a new one",
		"shipment_id", record.ID, "message_id", staleID)

	messageID, err := c.messenger.CreateMessage(ctx, message)
	if err != nil {
		c.logger.Error("failed to repost message", "shipment_id", record.ID, "error", err)
		return "", fmt.Errorf("%w: repost for %s: %w", ErrDispatchFailed, record.ID, err)
	}

	replaced, err := c.store.ReplaceExternalMessageID(ctx, record.ID, staleID, messageID)
	if err != nil {
		c.logger.Error("reposted message but id not stored", "shipment_id", record.ID, "message_id", messageID, "error", err)
		if err := c.messenger.DeleteMessage(ctx, messageID); err != nil {
			c.logger.Error("failed to delete unsaved repost", "message_id", messageID, "error", err)
		}
		return "", fmt.Errorf("%w: replace message id for %s: %w", ErrStore, record.ID, err)
	}
	if !replaced {
		c.logger.Warn("message id changed during repost, deleting duplicate", "shipment_id", record.ID, "duplicate_id", messageID)
		if err := c.messenger.DeleteMessage(ctx, messageID); err != nil {
			c.logger.Error("failed to delete duplicate message", "message_id", messageID, "error", err)
		}
		current, err := c.store.GetByID(ctx, record.ID)
		if err != nil {
			return "", fmt.Errorf("%w: reload %s: %w", ErrStore, record.ID, err)
		}
		return current.ExternalMessageID, nil
	}

	c.logger.Info("message reposted", "shipment_id", record.ID, "message_id", messageID)
	return messageID, nil
}

// IsRetryable reports whether a ProcessJob error may succeed if the same
// job is processed again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStore)
}
