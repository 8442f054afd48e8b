package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/datatypes"

	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/infra/produce"
)

// ErrInvalidEvent marks a message that can never be stored; it is dropped instead of retried.
var ErrInvalidEvent = errors.New("invalid model event")

type EventStore interface {
	Create(ctx context.Context, event *entity.ModelEvent) error
}

type TrainedNotifier interface {
	SendModelTrainedNotification(ctx context.Context, email string, modelID uint, metrics *entity.Metrics) error
}

// ModelEventConsumer persists lifecycle events into the event log and mails
// the owner when a model finishes training.
type ModelEventConsumer struct {
	channel    *amqp.Channel
	logger     *infra.LoggerClient
	store      EventStore
	notifier   TrainedNotifier
	maxRetries int
	backoff    time.Duration
}

func NewModelEventConsumer(channel *amqp.Channel, logger *infra.LoggerClient, store EventStore, notifier TrainedNotifier) *ModelEventConsumer {
	return &ModelEventConsumer{
		channel:    channel,
		logger:     logger,
		store:      store,
		notifier:   notifier,
		maxRetries: 3,
		backoff:    2 * time.Second,
	}
}

func (c *ModelEventConsumer) Start(ctx context.Context) error {
	if err := c.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set model event prefetch: %w", err)
	}

	msgs, err := c.channel.Consume(
		produce.ModelEventQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register model event consumer: %w", err)
	}

	c.logger.InfoWithContextf(ctx, "[Model Event Consumer] Started listening on queue: %s", produce.ModelEventQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.InfoWithContextf(ctx, "[Model Event Consumer] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.WarningWithContextf(ctx, "[Model Event Consumer] Channel closed")
					return
				}
				c.handleDelivery(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *ModelEventConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var payload produce.ModelEventMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Model Event Consumer] Failed to unmarshal message: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err = c.Handle(ctx, payload)
		if err == nil {
			_ = msg.Ack(false)
			return
		}
		if errors.Is(err, ErrInvalidEvent) {
			c.logger.ErrorWithContextf(ctx, err, "[Model Event Consumer] Dropping message: %v", err)
			_ = msg.Nack(false, false)
			return
		}

		c.logger.ErrorWithContextf(ctx, err, "[Model Event Consumer] Attempt %d/%d failed: %v", attempt, c.maxRetries, err)

		if attempt < c.maxRetries && !c.wait(ctx, time.Duration(attempt)*c.backoff) {
			break
		}
	}

	c.logger.ErrorWithContextf(ctx, err, "[Model Event Consumer] Giving up on message, requeueing")
	_ = msg.Nack(false, true)
}

// wait sleeps for d and reports false if ctx ends first.
func (c *ModelEventConsumer) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Handle stores one event. The trained notification is sent after the event is
// stored and its failure does not fail the event.
func (c *ModelEventConsumer) Handle(ctx context.Context, payload produce.ModelEventMessage) error {
	event, err := toEntity(payload)
	if err != nil {
		return err
	}

	if err := c.store.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to store event for model %d: %w", payload.ModelID, err)
	}
	c.logger.InfoWithContextf(ctx, "[Model Event Consumer] Stored %s event for model %d", payload.Reason, payload.ModelID)

	if payload.Reason == entity.EventReasonTrainingComplete && strings.Contains(payload.OwnerKey, "@") && c.notifier != nil {
		if err := c.notifier.SendModelTrainedNotification(ctx, payload.OwnerKey, payload.ModelID, payload.Metrics); err != nil {
			c.logger.WarningWithContextf(ctx, "[Model Event Consumer] Failed to queue trained notification for model %d: %v", payload.ModelID, err)
		}
	}
	return nil
}

func toEntity(payload produce.ModelEventMessage) (*entity.ModelEvent, error) {
	if payload.ModelID == 0 || payload.ToStatus == "" {
		return nil, fmt.Errorf("%w: model_id=%d to_status=%q", ErrInvalidEvent, payload.ModelID, payload.ToStatus)
	}

	id := uuid.Nil
	if payload.EventID != "" {
		parsed, err := uuid.Parse(payload.EventID)
		if err != nil {
			return nil, fmt.Errorf("%w: event id %q: %v", ErrInvalidEvent, payload.EventID, err)
		}
		id = parsed
	}

	at := time.Now().UTC()
	if payload.Timestamp > 0 {
		at = time.UnixMilli(payload.Timestamp).UTC()
	}

	var meta datatypes.JSON
	if payload.Metrics != nil {
		raw, err := json.Marshal(payload.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metrics: %w", err)
		}
		meta = datatypes.JSON(raw)
	}

	return &entity.ModelEvent{
		ID:            id,
		ModelID:       payload.ModelID,
		OwnerID:       payload.OwnerID,
		FromStatus:    entity.ModelStatus(payload.FromStatus),
		ToStatus:      entity.ModelStatus(payload.ToStatus),
		Reason:        payload.Reason,
		RemoteJobID:   payload.RemoteJobID,
		CorrelationID: payload.CorrelationID,
		Meta:          meta,
		At:            at,
	}, nil
}
