package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/infra/produce"
)

type memoryEventStore struct {
	events []*entity.ModelEvent
	err    error
}

func (s *memoryEventStore) Create(_ context.Context, event *entity.ModelEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type notification struct {
	email   string
	modelID uint
	metrics *entity.Metrics
}

type recordingNotifier struct {
	sent []notification
	err  error
}

func (n *recordingNotifier) SendModelTrainedNotification(_ context.Context, email string, modelID uint, metrics *entity.Metrics) error {
	n.sent = append(n.sent, notification{email: email, modelID: modelID, metrics: metrics})
	return n.err
}

func newTestConsumer(store EventStore, notifier TrainedNotifier) *ModelEventConsumer {
	return NewModelEventConsumer(nil, infra.NewNopLogger(), store, notifier)
}

func TestHandleStoresEvent(t *testing.T) {
	store := &memoryEventStore{}
	notifier := &recordingNotifier{}
	c := newTestConsumer(store, notifier)

	eventID := uuid.New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := c.Handle(context.Background(), produce.ModelEventMessage{
		EventID:       eventID.String(),
		ModelID:       3,
		OwnerID:       1,
		OwnerKey:      "alice@example.com",
		FromStatus:    "pending",
		ToStatus:      "training",
		Reason:        entity.EventReasonSubmitted,
		RemoteJobID:   "r1",
		CorrelationID: "job-alice@example.com-3-1714564800.0",
		Timestamp:     ts.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("events = %d", len(store.events))
	}
	got := store.events[0]
	if got.ID != eventID || got.ModelID != 3 || got.ToStatus != entity.ModelStatusTraining || got.RemoteJobID != "r1" {
		t.Errorf("event = %+v", got)
	}
	if !got.At.Equal(ts) {
		t.Errorf("at = %v, want %v", got.At, ts)
	}
	if got.Meta != nil {
		t.Errorf("meta = %s, want empty", got.Meta)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("only trained events notify, got %+v", notifier.sent)
	}
}

func TestHandleTrainedNotifiesOwner(t *testing.T) {
	store := &memoryEventStore{}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	c := newTestConsumer(store, notifier)

	acc := 0.95
	err := c.Handle(context.Background(), produce.ModelEventMessage{
		ModelID:  3,
		OwnerID:  1,
		OwnerKey: "alice@example.com",
		ToStatus: "trained",
		Reason:   entity.EventReasonTrainingComplete,
		Metrics:  &entity.Metrics{Accuracy: &acc},
	})
	if err != nil {
		t.Fatalf("notification failure must not fail the event: %v", err)
	}
	if len(store.events) != 1 || string(store.events[0].Meta) != `{"eval_accuracy":0.95,"eval_f1":null,"eval_loss":null}` {
		t.Errorf("events = %+v", store.events)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].email != "alice@example.com" || notifier.sent[0].modelID != 3 {
		t.Errorf("notifications = %+v", notifier.sent)
	}
}

func TestHandleRejectsBadEvents(t *testing.T) {
	for name, msg := range map[string]produce.ModelEventMessage{
		"missing model":     {ToStatus: "pending", Reason: "created"},
		"missing to status": {ModelID: 1, Reason: "created"},
		"bad event id":      {EventID: "not-a-uuid", ModelID: 1, ToStatus: "pending"},
	} {
		t.Run(name, func(t *testing.T) {
			store := &memoryEventStore{}
			if err := newTestConsumer(store, nil).Handle(context.Background(), msg); !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("err = %v, want ErrInvalidEvent", err)
			}
			if len(store.events) != 0 {
				t.Errorf("nothing must be stored")
			}
		})
	}
}

func TestHandleStoreFailure(t *testing.T) {
	store := &memoryEventStore{err: errors.New("db down")}
	notifier := &recordingNotifier{}
	err := newTestConsumer(store, notifier).Handle(context.Background(), produce.ModelEventMessage{
		ModelID:  1,
		OwnerKey: "a@b.c",
		ToStatus: "trained",
		Reason:   entity.EventReasonTrainingComplete,
	})
	if err == nil {
		t.Fatal("expected an error so the message is retried")
	}
	if len(notifier.sent) != 0 {
		t.Error("no notification before the event is stored")
	}
}

func TestHandleSkipsNotificationWithoutEmail(t *testing.T) {
	for name, ownerKey := range map[string]string{
		"subject":    "carol",
		"numeric id": "9",
		"empty":      "",
	} {
		t.Run(name, func(t *testing.T) {
			store := &memoryEventStore{}
			notifier := &recordingNotifier{}
			err := newTestConsumer(store, notifier).Handle(context.Background(), produce.ModelEventMessage{
				ModelID:  3,
				OwnerKey: ownerKey,
				ToStatus: "trained",
				Reason:   entity.EventReasonTrainingComplete,
			})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if len(store.events) != 1 {
				t.Errorf("event must still be stored")
			}
			if len(notifier.sent) != 0 {
				t.Errorf("notifications = %+v", notifier.sent)
			}
		})
	}
}

type recordingAcknowledger struct {
	acks     int
	nacks    int
	requeued int
}

func (a *recordingAcknowledger) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *recordingAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *recordingAcknowledger) Reject(_ uint64, requeue bool) error {
	return a.Nack(0, false, requeue)
}

func TestHandleDelivery(t *testing.T) {
	valid := `{"event_id":"` + uuid.NewString() + `","model_id":3,"to_status":"trained"}`

	for name, tc := range map[string]struct {
		body         string
		storeErr     error
		wantAcks     int
		wantNacks    int
		wantRequeued int
		wantStores   int
	}{
		"stored":           {body: valid, wantAcks: 1},
		"not json":         {body: `{`, wantNacks: 1},
		"bad event id":     {body: `{"event_id":"not-a-uuid","model_id":3,"to_status":"trained"}`, wantNacks: 1},
		"missing model id": {body: `{"to_status":"trained"}`, wantNacks: 1},
		"store down":       {body: valid, storeErr: errors.New("db down"), wantNacks: 1, wantRequeued: 1},
	} {
		t.Run(name, func(t *testing.T) {
			store := &countingEventStore{err: tc.storeErr}
			c := newTestConsumer(store, nil)
			c.backoff = time.Millisecond
			ack := &recordingAcknowledger{}

			c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(tc.body)})

			if ack.acks != tc.wantAcks || ack.nacks != tc.wantNacks || ack.requeued != tc.wantRequeued {
				t.Errorf("acks=%d nacks=%d requeued=%d", ack.acks, ack.nacks, ack.requeued)
			}
			if tc.storeErr != nil && store.calls != c.maxRetries {
				t.Errorf("store calls = %d, want %d", store.calls, c.maxRetries)
			}
			if tc.body != valid && store.calls != 0 {
				t.Errorf("invalid message reached the store %d times", store.calls)
			}
		})
	}
}

func TestHandleDeliveryStopsRetryingOnShutdown(t *testing.T) {
	store := &countingEventStore{err: errors.New("db down")}
	c := newTestConsumer(store, nil)
	c.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ack := &recordingAcknowledger{}
	done := make(chan struct{})
	go func() {
		c.handleDelivery(ctx, amqp.Delivery{Acknowledger: ack, Body: []byte(`{"model_id":3,"to_status":"trained"}`)})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handleDelivery kept waiting after shutdown")
	}
	if store.calls != 1 || ack.requeued != 1 {
		t.Errorf("store calls = %d, requeued = %d", store.calls, ack.requeued)
	}
}

type countingEventStore struct {
	calls int
	err   error
}

func (s *countingEventStore) Create(context.Context, *entity.ModelEvent) error {
	s.calls++
	return s.err
}
