package produce

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tnqbao/gau-ml-service/entity"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type recordingChannel struct {
	published []published
	err       error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return c.err
}

func TestPublishModelEvent(t *testing.T) {
	ch := &recordingChannel{}
	svc := NewModelService(ch)

	err := svc.PublishModelEvent(context.Background(), ModelEventMessage{
		EventID:  "e1",
		ModelID:  7,
		OwnerID:  1,
		ToStatus: "training",
		Reason:   "submitted",
	})
	if err != nil {
		t.Fatalf("PublishModelEvent: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published = %d", len(ch.published))
	}
	p := ch.published[0]
	if p.exchange != ModelExchange || p.key != ModelEventRoutingKey {
		t.Errorf("routed to %s/%s", p.exchange, p.key)
	}
	if p.msg.DeliveryMode != amqp.Persistent || p.msg.MessageId != "e1" || p.msg.ContentType != "application/json" {
		t.Errorf("publishing = %+v", p.msg)
	}

	var body ModelEventMessage
	if err := json.Unmarshal(p.msg.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body.ModelID != 7 || body.Timestamp == 0 {
		t.Errorf("body = %+v", body)
	}
}

func TestPublishModelEventError(t *testing.T) {
	svc := NewModelService(&recordingChannel{err: errors.New("channel closed")})
	if err := svc.PublishModelEvent(context.Background(), ModelEventMessage{ModelID: 1}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSendModelTrainedNotification(t *testing.T) {
	ch := &recordingChannel{}
	svc := InitEmailService(ch)

	acc, loss := 0.95, 0.1
	if err := svc.SendModelTrainedNotification(context.Background(), "alice@example.com", 3, &entity.Metrics{Accuracy: &acc, Loss: &loss}); err != nil {
		t.Fatal(err)
	}

	p := ch.published[0]
	if p.exchange != EmailExchange || p.key != EmailNotificationRouting {
		t.Errorf("routed to %s/%s", p.exchange, p.key)
	}
	var msg EmailMessage
	if err := json.Unmarshal(p.msg.Body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "notification" || msg.Recipient != "alice@example.com" {
		t.Errorf("message = %+v", msg)
	}
	if !strings.Contains(msg.Content, "#3") || !strings.Contains(msg.Content, "accuracy 0.9500") || !strings.Contains(msg.Content, "loss 0.1000") || strings.Contains(msg.Content, "F1") {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestTrainedContentWithoutMetrics(t *testing.T) {
	if got := TrainedContent(5, nil); got != "Your model #5 has finished training." {
		t.Errorf("content = %q", got)
	}
	if got := TrainedContent(5, &entity.Metrics{}); got != "Your model #5 has finished training." {
		t.Errorf("content = %q", got)
	}
}
