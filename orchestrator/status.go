package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
)

const (
	completedToken = "COMPLETED"
	// artifactMissingType is the error_type the provider reports when the
	// model files no longer exist on its side.
	artifactMissingType = "<class 'FileNotFoundError'>"
)

var deletedResponse = json.RawMessage(`{"status":"deleted"}`)

// StatusOutcome is the result of a status poll. Response is the provider's
// document as received, or {"status":"deleted"} when the record was purged.
type StatusOutcome struct {
	Response json.RawMessage
	Deleted  bool
	Model    *entity.ModelRecord
}

type pollVerdict int

const (
	verdictPassthrough pollVerdict = iota
	verdictCompleted
	verdictArtifactMissing
)

func (v pollVerdict) String() string {
	switch v {
	case verdictCompleted:
		return "completed"
	case verdictArtifactMissing:
		return "artifact_missing"
	}
	return "passthrough"
}

// Status polls the record's current remote job and reconciles the answer with
// the local record. On an InconsistencyError the outcome is still returned and
// carries the provider's raw document.
func (o *Orchestrator) Status(ctx context.Context, p Principal, id uint) (out *StatusOutcome, err error) {
	ctx, span := o.startSpan(ctx, "Status", attribute.Int64("model.id", int64(id)))
	defer func() { endSpan(span, err) }()

	model, err := o.loadOwned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if model.RemoteJobID == "" {
		return nil, fmt.Errorf("%w: model %d is %s", ErrNotSubmitted, id, model.Status)
	}

	kind := infra.EndpointPredict
	if model.Status == entity.ModelStatusTraining {
		kind = infra.EndpointTrain
	}
	span.SetAttributes(attribute.String("compute.kind", string(kind)))

	raw, err := o.poll(ctx, kind, model.RemoteJobID)
	if err != nil {
		o.countPoll(ctx, "transport_error")
		return nil, err
	}

	return o.reconcile(ctx, p, model, raw)
}

func (o *Orchestrator) poll(ctx context.Context, kind infra.EndpointKind, remoteID string) (json.RawMessage, error) {
	if o.cache != nil {
		if raw, ok := o.cache.Get(ctx, kind, remoteID); ok {
			o.logger.DebugWithContextf(ctx, "[Orchestrator] Poll cache hit for %s job %s", kind, remoteID)
			return raw, nil
		}
	}
	raw, err := o.compute.Poll(ctx, kind, remoteID)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Set(ctx, kind, remoteID, raw)
	}
	return raw, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, p Principal, model *entity.ModelRecord, raw json.RawMessage) (*StatusOutcome, error) {
	verdict, metrics := classify(raw)
	o.countPoll(ctx, verdict.String())

	switch verdict {
	case verdictArtifactMissing:
		deleted, err := o.store.Delete(ctx, model.ID)
		if err != nil || !deleted {
			incErr := &InconsistencyError{ModelID: model.ID, Response: raw, Err: err}
			o.logger.ErrorWithContextf(ctx, incErr, "[Orchestrator] %v", incErr)
			return &StatusOutcome{Response: raw, Model: model}, incErr
		}
		o.logger.InfoWithContextf(ctx, "[Orchestrator] Model %d purged, provider reports its artifact missing", model.ID)
		o.emit(ctx, lifecycleEvent{
			model:       model,
			ownerKey:    p.OwnerKey,
			from:        model.Status,
			to:          entity.ModelStatusDeleted,
			reason:      entity.EventReasonArtifactMissing,
			remoteJobID: model.RemoteJobID,
		})
		return &StatusOutcome{Response: deletedResponse, Deleted: true}, nil

	case verdictCompleted:
		if model.Status != entity.ModelStatusTraining {
			return &StatusOutcome{Response: raw, Model: model}, nil
		}
		updated, err := o.store.UpdateStatus(ctx, model.ID, entity.ModelStatusTrained, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to mark model %d as trained: %w", model.ID, err)
		}
		o.logger.InfoWithContextf(ctx, "[Orchestrator] Model %d finished training", model.ID)
		o.emit(ctx, lifecycleEvent{
			model:       model,
			ownerKey:    p.OwnerKey,
			from:        model.Status,
			to:          entity.ModelStatusTrained,
			reason:      entity.EventReasonTrainingComplete,
			remoteJobID: model.RemoteJobID,
			metrics:     metrics,
		})
		return &StatusOutcome{Response: raw, Model: updated}, nil
	}

	return &StatusOutcome{Response: raw, Model: model}, nil
}

type errorDescriptor struct {
	ErrorType string `json:"error_type"`
}

type evaluation struct {
	Accuracy *float64 `json:"eval_accuracy"`
	F1       *float64 `json:"eval_f1"`
	Loss     *float64 `json:"eval_loss"`
}

// classify reads a status document. Fields are decoded one at a time so an
// unexpected shape in one of them never hides the others.
func classify(raw json.RawMessage) (pollVerdict, *entity.Metrics) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return verdictPassthrough, nil
	}

	if errField, ok := doc["error"]; ok && !isEmptyJSON(errField) {
		if isArtifactMissing(errField) {
			return verdictArtifactMissing, nil
		}
		return verdictPassthrough, nil
	}

	var status string
	if err := json.Unmarshal(doc["status"], &status); err != nil || status != completedToken {
		return verdictPassthrough, nil
	}
	return verdictCompleted, extractMetrics(doc["output"])
}

// isArtifactMissing expects the error field to be a JSON string that itself
// holds a JSON object with error_type.
func isArtifactMissing(errField json.RawMessage) bool {
	var encoded string
	if err := json.Unmarshal(errField, &encoded); err != nil {
		return false
	}
	var desc errorDescriptor
	if err := json.Unmarshal([]byte(encoded), &desc); err != nil {
		return false
	}
	return desc.ErrorType == artifactMissingType
}

func extractMetrics(output json.RawMessage) *entity.Metrics {
	metrics := &entity.Metrics{}
	if len(output) == 0 {
		return metrics
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(output, &out); err != nil {
		return metrics
	}
	var eval evaluation
	if err := json.Unmarshal(out["evaluate"], &eval); err != nil {
		return metrics
	}
	metrics.Accuracy = eval.Accuracy
	metrics.F1 = eval.F1
	metrics.Loss = eval.Loss
	return metrics
}

func isEmptyJSON(v json.RawMessage) bool {
	switch string(v) {
	case "", "null", `""`, "{}", "[]", "false", "0":
		return true
	}
	return false
}
