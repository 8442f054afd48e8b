package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ModelEvent is one entry of the append-only lifecycle log of a model record.
// It outlives the record itself, so a purged model still has its history.
type ModelEvent struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ModelID       uint           `json:"model_id" gorm:"not null;index"`
	OwnerID       uint           `json:"owner_id" gorm:"not null;index"`
	FromStatus    ModelStatus    `json:"from_status,omitempty" gorm:"type:varchar(32)"`
	ToStatus      ModelStatus    `json:"to_status" gorm:"type:varchar(32);not null"`
	Reason        string         `json:"reason" gorm:"type:varchar(64);not null"`
	RemoteJobID   string         `json:"remote_job_id,omitempty" gorm:"type:varchar(255)"`
	CorrelationID string         `json:"correlation_id,omitempty" gorm:"type:varchar(512)"`
	Meta          datatypes.JSON `json:"meta,omitempty"`
	At            time.Time      `json:"at" gorm:"not null;index"`
}

func (ModelEvent) TableName() string {
	return "model_events"
}

// Reasons recorded on model events.
const (
	EventReasonCreated          = "created"
	EventReasonSubmitted        = "submitted"
	EventReasonResubmitted      = "resubmitted"
	EventReasonTrainingComplete = "training_completed"
	EventReasonArtifactMissing  = "artifact_missing"
	EventReasonPredictSubmitted = "predict_submitted"
	EventReasonDeleteRequested  = "delete_requested"
)
