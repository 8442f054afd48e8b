package produce

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tnqbao/gau-ml-service/entity"
)

const (
	EmailExchange            = "email_exchange"
	EmailNotificationRouting = "email.notification"
)

type EmailMessage struct {
	Type          string `json:"type"`
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipientName,omitempty"`
	Content       string `json:"content"`
	ActionUrl     string `json:"actionUrl,omitempty"`
}

type EmailService struct {
	channel Publisher
}

func InitEmailService(channel Publisher) *EmailService {
	return &EmailService{
		channel: channel,
	}
}

func (s *EmailService) SendEmailNotification(ctx context.Context, email, recipientName, content, actionUrl string) error {
	message := EmailMessage{
		Type:          "notification",
		Recipient:     email,
		RecipientName: recipientName,
		Content:       content,
		ActionUrl:     actionUrl,
	}

	return s.publishEmail(ctx, EmailNotificationRouting, message)
}

// SendModelTrainedNotification tells the owner that training finished and
// which evaluation scores the provider reported.
func (s *EmailService) SendModelTrainedNotification(ctx context.Context, email string, modelID uint, metrics *entity.Metrics) error {
	return s.SendEmailNotification(ctx, email, "", TrainedContent(modelID, metrics), "")
}

func TrainedContent(modelID uint, metrics *entity.Metrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your model #%d has finished training.", modelID)
	if metrics == nil {
		return b.String()
	}

	var parts []string
	if metrics.Accuracy != nil {
		parts = append(parts, fmt.Sprintf("accuracy %.4f", *metrics.Accuracy))
	}
	if metrics.F1 != nil {
		parts = append(parts, fmt.Sprintf("F1 %.4f", *metrics.F1))
	}
	if metrics.Loss != nil {
		parts = append(parts, fmt.Sprintf("loss %.4f", *metrics.Loss))
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " Evaluation: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

func (s *EmailService) publishEmail(ctx context.Context, routingKey string, message EmailMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	err = s.channel.PublishWithContext(
		ctx,
		EmailExchange, // exchange
		routingKey,    // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish email message: %w", err)
	}

	return nil
}
