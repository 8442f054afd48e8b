package produce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tnqbao/gau-ml-service/entity"
)

const (
	ModelExchange        = "model.exchange"
	ModelEventQueue      = "model.events"
	ModelEventRoutingKey = "model.event"
)

// Publisher is the part of *amqp.Channel the producers need.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ModelEventMessage describes one lifecycle change of a model record.
type ModelEventMessage struct {
	EventID       string          `json:"event_id"`
	ModelID       uint            `json:"model_id"`
	OwnerID       uint            `json:"owner_id"`
	OwnerKey      string          `json:"owner_key,omitempty"`
	FromStatus    string          `json:"from_status,omitempty"`
	ToStatus      string          `json:"to_status"`
	Reason        string          `json:"reason"`
	RemoteJobID   string          `json:"remote_job_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Metrics       *entity.Metrics `json:"metrics,omitempty"`
	Timestamp     int64           `json:"timestamp"` // unix milliseconds
}

type ModelService struct {
	channel Publisher
}

func InitModelService(channel *amqp.Channel) *ModelService {
	err := channel.ExchangeDeclare(
		ModelExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Model exchange: " + err.Error())
	}

	_, err = channel.QueueDeclare(
		ModelEventQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		panic("Failed to declare Model event queue: " + err.Error())
	}

	err = channel.QueueBind(
		ModelEventQueue,
		ModelEventRoutingKey,
		ModelExchange,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to bind Model event queue: " + err.Error())
	}

	return NewModelService(channel)
}

func NewModelService(channel Publisher) *ModelService {
	return &ModelService{channel: channel}
}

func (s *ModelService) PublishModelEvent(ctx context.Context, message ModelEventMessage) error {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal model event: %w", err)
	}

	err = s.channel.PublishWithContext(
		ctx,
		ModelExchange,
		ModelEventRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    message.EventID,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish model event: %w", err)
	}
	return nil
}
