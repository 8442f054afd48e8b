package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
)

type TrainRequest struct {
	DatasetRef  string
	TextColumn  string
	LabelColumn string
	LabelCount  int
}

// SubmitOutcome is returned by Train and Resubmit. It is non-nil whenever a
// record exists, even if the submission itself failed, so the caller can
// still report which record is waiting to be resubmitted.
type SubmitOutcome struct {
	CorrelationID string
	ModelID       uint
	Response      json.RawMessage
}

type trainInput struct {
	File        string `json:"file"`
	TextColumn  string `json:"text_column"`
	LabelColumn string `json:"label_column"`
	NumLabels   int    `json:"num_labels"`
	ModelID     uint   `json:"model_id"`
}

type predictInput struct {
	Text    string `json:"text"`
	ModelID uint   `json:"model_id"`
}

type deleteInput struct {
	ModelID uint `json:"model_id"`
}

// Train creates a pending record and submits its training job. On success the
// record is training and points at the remote job. On a failed submission the
// record stays pending.
func (o *Orchestrator) Train(ctx context.Context, p Principal, req TrainRequest) (out *SubmitOutcome, err error) {
	ctx, span := o.startSpan(ctx, "Train", attribute.Int64("owner.id", int64(p.ID)))
	defer func() { endSpan(span, err) }()

	model, err := o.store.Create(ctx, p.ID, req.LabelCount, entity.Submission{
		DatasetRef:  req.DatasetRef,
		TextColumn:  req.TextColumn,
		LabelColumn: req.LabelColumn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model record: %w", err)
	}
	span.SetAttributes(attribute.Int64("model.id", int64(model.ID)))

	o.emit(ctx, lifecycleEvent{
		model:    model,
		ownerKey: p.OwnerKey,
		to:       entity.ModelStatusPending,
		reason:   entity.EventReasonCreated,
	})

	return o.submitTraining(ctx, p, model, entity.EventReasonSubmitted)
}

// Resubmit retries the training submission of a record left pending by an
// earlier failed submission.
func (o *Orchestrator) Resubmit(ctx context.Context, p Principal, id uint) (out *SubmitOutcome, err error) {
	ctx, span := o.startSpan(ctx, "Resubmit", attribute.Int64("model.id", int64(id)))
	defer func() { endSpan(span, err) }()

	model, err := o.loadOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if model.Status != entity.ModelStatusPending {
		return nil, fmt.Errorf("%w: model %d is %s", ErrInvalidTransition, id, model.Status)
	}
	if model.DatasetRef == "" {
		return nil, fmt.Errorf("%w: model %d has no dataset recorded", ErrInvalidTransition, id)
	}

	return o.submitTraining(ctx, p, model, entity.EventReasonResubmitted)
}

func (o *Orchestrator) submitTraining(ctx context.Context, p Principal, model *entity.ModelRecord, reason string) (*SubmitOutcome, error) {
	out := &SubmitOutcome{ModelID: model.ID}

	res, err := o.compute.Submit(ctx, infra.EndpointTrain, p.OwnerKey, model.ID, trainInput{
		File:        model.DatasetRef,
		TextColumn:  model.TextColumn,
		LabelColumn: model.LabelColumn,
		NumLabels:   model.LabelCount,
		ModelID:     model.ID,
	})
	if err != nil {
		o.countSubmission(ctx, infra.EndpointTrain, "transport_error")
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Training submission for model %d failed, record stays pending: %v", model.ID, err)
		return out, err
	}
	out.CorrelationID = res.CorrelationID
	out.Response = res.Raw

	if res.RemoteID == "" {
		o.countSubmission(ctx, infra.EndpointTrain, "rejected")
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Training submission for model %d returned no job id: %s", model.ID, string(res.Raw))
		return out, &RemoteRejectedError{Kind: infra.EndpointTrain, Response: res.Raw}
	}

	if _, err := o.store.MarkSubmitted(ctx, model.ID, res.RemoteID); err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return out, ErrModelNotFound
		}
		return out, fmt.Errorf("failed to mark model %d as training: %w", model.ID, err)
	}

	o.countSubmission(ctx, infra.EndpointTrain, "accepted")
	o.logger.InfoWithContextf(ctx, "[Orchestrator] Model %d submitted for training: remote job %s, correlation %s", model.ID, res.RemoteID, res.CorrelationID)
	o.emit(ctx, lifecycleEvent{
		model:         model,
		ownerKey:      p.OwnerKey,
		from:          model.Status,
		to:            entity.ModelStatusTraining,
		reason:        reason,
		remoteJobID:   res.RemoteID,
		correlationID: res.CorrelationID,
	})

	return out, nil
}

// Predict submits an inference job for a trained record. The record's remote
// job pointer moves to the predict job; status and metrics are unchanged.
func (o *Orchestrator) Predict(ctx context.Context, p Principal, id uint, text string) (raw json.RawMessage, err error) {
	ctx, span := o.startSpan(ctx, "Predict", attribute.Int64("model.id", int64(id)))
	defer func() { endSpan(span, err) }()

	model, err := o.loadOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if model.Status != entity.ModelStatusTrained {
		return nil, fmt.Errorf("%w: model %d is %s", ErrInvalidTransition, id, model.Status)
	}

	res, err := o.compute.Submit(ctx, infra.EndpointPredict, p.OwnerKey, model.ID, predictInput{Text: text, ModelID: model.ID})
	if err != nil {
		o.countSubmission(ctx, infra.EndpointPredict, "transport_error")
		return nil, err
	}
	if res.RemoteID == "" {
		o.countSubmission(ctx, infra.EndpointPredict, "rejected")
		return res.Raw, &RemoteRejectedError{Kind: infra.EndpointPredict, Response: res.Raw}
	}

	ok, err := o.store.SetRemoteJobID(ctx, model.ID, res.RemoteID)
	if err != nil {
		return res.Raw, fmt.Errorf("failed to attach predict job to model %d: %w", model.ID, err)
	}
	if !ok {
		return res.Raw, ErrModelNotFound
	}

	o.countSubmission(ctx, infra.EndpointPredict, "accepted")
	o.emit(ctx, lifecycleEvent{
		model:         model,
		ownerKey:      p.OwnerKey,
		from:          model.Status,
		to:            model.Status,
		reason:        entity.EventReasonPredictSubmitted,
		remoteJobID:   res.RemoteID,
		correlationID: res.CorrelationID,
	})

	return res.Raw, nil
}

// Delete asks the provider to remove the record's artifacts. The local record
// is not touched; it is purged by a later status poll that finds the artifact gone.
func (o *Orchestrator) Delete(ctx context.Context, p Principal, id uint) (raw json.RawMessage, err error) {
	ctx, span := o.startSpan(ctx, "Delete", attribute.Int64("model.id", int64(id)))
	defer func() { endSpan(span, err) }()

	model, err := o.loadOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}

	res, err := o.compute.Submit(ctx, infra.EndpointDelete, p.OwnerKey, model.ID, deleteInput{ModelID: model.ID})
	if err != nil {
		o.countSubmission(ctx, infra.EndpointDelete, "transport_error")
		return nil, err
	}

	o.countSubmission(ctx, infra.EndpointDelete, "accepted")
	o.logger.InfoWithContextf(ctx, "[Orchestrator] Delete requested for model %d, correlation %s", model.ID, res.CorrelationID)
	o.emit(ctx, lifecycleEvent{
		model:         model,
		ownerKey:      p.OwnerKey,
		from:          model.Status,
		to:            model.Status,
		reason:        entity.EventReasonDeleteRequested,
		remoteJobID:   res.RemoteID,
		correlationID: res.CorrelationID,
	})

	return res.Raw, nil
}
