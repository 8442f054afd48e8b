package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/infra/produce"
)

const instrumentationName = "github.com/tnqbao/gau-ml-service/orchestrator"

// RecordStore is the durable store of model records.
type RecordStore interface {
	Create(ctx context.Context, ownerID uint, labelCount int, sub entity.Submission) (*entity.ModelRecord, error)
	GetByID(ctx context.Context, id uint) (*entity.ModelRecord, error)
	GetLatestByOwner(ctx context.Context, ownerID uint) (*entity.ModelRecord, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]entity.ModelRecord, error)
	SetRemoteJobID(ctx context.Context, id uint, remoteJobID string) (bool, error)
	MarkSubmitted(ctx context.Context, id uint, remoteJobID string) (*entity.ModelRecord, error)
	UpdateStatus(ctx context.Context, id uint, status entity.ModelStatus, metrics *entity.Metrics) (*entity.ModelRecord, error)
	Delete(ctx context.Context, id uint) (bool, error)
}

// ComputeClient talks to the remote compute provider.
type ComputeClient interface {
	Submit(ctx context.Context, kind infra.EndpointKind, ownerKey string, recordID uint, input interface{}) (*infra.SubmitResult, error)
	Poll(ctx context.Context, kind infra.EndpointKind, remoteID string) (json.RawMessage, error)
}

type EventPublisher interface {
	PublishModelEvent(ctx context.Context, message produce.ModelEventMessage) error
}

type EventHistory interface {
	ListByModel(ctx context.Context, modelID, ownerID uint, limit int) ([]entity.ModelEvent, error)
}

type PollCache interface {
	Get(ctx context.Context, kind infra.EndpointKind, remoteID string) (json.RawMessage, bool)
	Set(ctx context.Context, kind infra.EndpointKind, remoteID string, raw json.RawMessage)
}

// Orchestrator drives model records through the remote job lifecycle:
// pending -> training -> trained, or purged when the provider lost the artifact.
// It holds no mutable state of its own; concurrent callers only share the store.
type Orchestrator struct {
	store     RecordStore
	compute   ComputeClient
	publisher EventPublisher
	history   EventHistory
	cache     PollCache
	logger    *infra.LoggerClient

	tracer      trace.Tracer
	submissions metric.Int64Counter
	polls       metric.Int64Counter
}

type Option func(*Orchestrator)

func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithHistory(h EventHistory) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithPollCache(c PollCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func New(store RecordStore, compute ComputeClient, logger *infra.LoggerClient, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = infra.NewNopLogger()
	}

	meter := otel.Meter(instrumentationName)
	submissions, _ := meter.Int64Counter("ml.model.submissions",
		metric.WithDescription("Jobs submitted to the compute provider"))
	polls, _ := meter.Int64Counter("ml.model.polls",
		metric.WithDescription("Status polls by reconciliation outcome"))

	o := &Orchestrator{
		store:       store,
		compute:     compute,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
		submissions: submissions,
		polls:       polls,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// loadOwned fetches a record and runs the access guard on it.
func (o *Orchestrator) loadOwned(ctx context.Context, p Principal, id uint) (*entity.ModelRecord, error) {
	model, err := o.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to load model %d: %w", id, err)
	}
	if err := CheckAccess(p, model); err != nil {
		return nil, err
	}
	return model, nil
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "orchestrator."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (o *Orchestrator) countSubmission(ctx context.Context, kind infra.EndpointKind, outcome string) {
	if o.submissions == nil {
		return
	}
	o.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}

func (o *Orchestrator) countPoll(ctx context.Context, outcome string) {
	if o.polls == nil {
		return
	}
	o.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

type lifecycleEvent struct {
	model         *entity.ModelRecord
	ownerKey      string
	from, to      entity.ModelStatus
	reason        string
	remoteJobID   string
	correlationID string
	metrics       *entity.Metrics
}

// emit publishes a lifecycle event. A broker failure is logged and otherwise ignored.
func (o *Orchestrator) emit(ctx context.Context, ev lifecycleEvent) {
	if o.publisher == nil || ev.model == nil {
		return
	}
	msg := produce.ModelEventMessage{
		EventID:       uuid.NewString(),
		ModelID:       ev.model.ID,
		OwnerID:       ev.model.OwnerID,
		OwnerKey:      ev.ownerKey,
		FromStatus:    string(ev.from),
		ToStatus:      string(ev.to),
		Reason:        ev.reason,
		RemoteJobID:   ev.remoteJobID,
		CorrelationID: ev.correlationID,
		Metrics:       ev.metrics,
		Timestamp:     time.Now().UnixMilli(),
	}
	if err := o.publisher.PublishModelEvent(ctx, msg); err != nil {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Failed to publish %s event for model %d: %v", ev.reason, ev.model.ID, err)
	}
}
