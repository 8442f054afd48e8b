package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-ml-service/entity"
	"gorm.io/gorm"
)

type ModelEventRepository struct {
	db *gorm.DB
}

func NewModelEventRepository(db *gorm.DB) *ModelEventRepository {
	return &ModelEventRepository{db: db}
}

// Create appends an event. Events carrying an already stored ID are ignored, so a
// redelivered message does not duplicate history.
func (r *ModelEventRepository) Create(ctx context.Context, event *entity.ModelEvent) error {
	if event == nil {
		return errors.New("model event cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.ModelEvent{}).Where("id = ?", event.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByModel returns the owner's events of one model, newest first.
func (r *ModelEventRepository) ListByModel(ctx context.Context, modelID, ownerID uint, limit int) ([]entity.ModelEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []entity.ModelEvent
	err := r.db.WithContext(ctx).
		Where("model_id = ? AND owner_id = ?", modelID, ownerID).
		Order("at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
