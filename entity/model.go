package entity

import "time"

// ModelStatus is the lifecycle state of a model record.
type ModelStatus string

const (
	ModelStatusPending  ModelStatus = "pending"
	ModelStatusTraining ModelStatus = "training"
	ModelStatusTrained  ModelStatus = "trained"
	// ModelStatusDeleted is only ever reported; the row is purged instead of stored with it.
	ModelStatusDeleted ModelStatus = "deleted"
)

// CanTransitionTo reports whether moving from s to next is a valid edge:
// pending -> training -> trained, or any state -> deleted.
func (s ModelStatus) CanTransitionTo(next ModelStatus) bool {
	switch next {
	case ModelStatusDeleted:
		return s != ModelStatusDeleted
	case ModelStatusTraining:
		return s == ModelStatusPending
	case ModelStatusTrained:
		return s == ModelStatusTraining || s == ModelStatusTrained
	}
	return false
}

// Metrics are the evaluation results of a finished training job. Each value may be absent.
type Metrics struct {
	Accuracy *float64 `json:"eval_accuracy"`
	F1       *float64 `json:"eval_f1"`
	Loss     *float64 `json:"eval_loss"`
}

type ModelRecord struct {
	ID          uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	OwnerID     uint        `json:"owner_id" gorm:"not null;index:idx_models_owner_created,priority:1"`
	RemoteJobID string      `json:"remote_job_id" gorm:"type:varchar(255)"`
	Status      ModelStatus `json:"status" gorm:"type:varchar(32);not null;index"`
	LabelCount  int         `json:"num_labels" gorm:"not null"`

	EvalAccuracy *float64 `json:"eval_accuracy"`
	EvalF1       *float64 `json:"eval_f1"`
	EvalLoss     *float64 `json:"eval_loss"`

	// Submission inputs, kept so a pending record can be resubmitted.
	DatasetRef  string `json:"-" gorm:"type:text"`
	TextColumn  string `json:"-" gorm:"type:varchar(255)"`
	LabelColumn string `json:"-" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime;index:idx_models_owner_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ModelRecord) TableName() string {
	return "models"
}

// Metrics returns the stored evaluation metrics, or nil when the record is not trained.
func (m *ModelRecord) Metrics() *Metrics {
	if m.Status != ModelStatusTrained {
		return nil
	}
	return &Metrics{Accuracy: m.EvalAccuracy, F1: m.EvalF1, Loss: m.EvalLoss}
}

// Submission is what the caller provides when asking for a model to be trained.
type Submission struct {
	DatasetRef  string
	TextColumn  string
	LabelColumn string
}
