package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/tnqbao/gau-ml-service/entity"
)

// ModelID accepts a record id sent either as a JSON number or as a numeric string.
type ModelID uint

func (m *ModelID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	id, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil || id == 0 {
		return errors.New("model_id must be a positive integer")
	}
	*m = ModelID(id)
	return nil
}

type TrainModelRequestDTO struct {
	File        string `json:"file" binding:"required"`
	TextColumn  string `json:"text_column" binding:"required"`
	LabelColumn string `json:"label_column" binding:"required"`
	NumLabels   int    `json:"num_labels" binding:"required,gt=0"`
}

type PredictRequestDTO struct {
	Text    string  `json:"text" binding:"required"`
	ModelID ModelID `json:"model_id" binding:"required"`
}

type DeleteModelRequestDTO struct {
	ModelID ModelID `json:"model_id" binding:"required"`
}

type SubmitResponseDTO struct {
	JobID    string          `json:"job_id"`
	ModelID  uint            `json:"model_id"`
	Response json.RawMessage `json:"response"`
}

type LatestModelResponseDTO struct {
	ModelID uint               `json:"model_id,omitempty"`
	Status  entity.ModelStatus `json:"status"`
}

type ModelDetailsResponseDTO struct {
	EvalAccuracy *float64  `json:"eval_accuracy"`
	EvalF1       *float64  `json:"eval_f1"`
	EvalLoss     *float64  `json:"eval_loss"`
	NumLabels    int       `json:"num_labels"`
	CreatedAt    time.Time `json:"created_at"`
}

type ModelSummaryDTO struct {
	ModelID   uint               `json:"model_id"`
	Status    entity.ModelStatus `json:"status"`
	NumLabels int                `json:"num_labels"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewModelDetails(model *entity.ModelRecord) ModelDetailsResponseDTO {
	details := ModelDetailsResponseDTO{
		NumLabels: model.LabelCount,
		CreatedAt: model.CreatedAt,
	}
	if metrics := model.Metrics(); metrics != nil {
		details.EvalAccuracy = metrics.Accuracy
		details.EvalF1 = metrics.F1
		details.EvalLoss = metrics.Loss
	}
	return details
}

func NewModelSummaries(models []entity.ModelRecord) []ModelSummaryDTO {
	out := make([]ModelSummaryDTO, 0, len(models))
	for _, m := range models {
		out = append(out, ModelSummaryDTO{
			ModelID:   m.ID,
			Status:    m.Status,
			NumLabels: m.LabelCount,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		})
	}
	return out
}
