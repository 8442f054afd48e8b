package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tnqbao/gau-ml-service/entity"
	"gorm.io/gorm"
)

var (
	ErrModelNotFound     = errors.New("model not found")
	ErrInvalidTransition = errors.New("operation not allowed in current model status")
)

// ModelRepository is the durable store of model records. Every call is a single
// statement against one row and is committed before it returns.
type ModelRepository struct {
	db *gorm.DB
}

func NewModelRepository(db *gorm.DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// Create inserts a pending record with no remote job attached.
func (r *ModelRepository) Create(ctx context.Context, ownerID uint, labelCount int, sub entity.Submission) (*entity.ModelRecord, error) {
	if labelCount <= 0 {
		return nil, errors.New("label count must be positive")
	}
	model := &entity.ModelRecord{
		OwnerID:     ownerID,
		Status:      entity.ModelStatusPending,
		LabelCount:  labelCount,
		DatasetRef:  sub.DatasetRef,
		TextColumn:  sub.TextColumn,
		LabelColumn: sub.LabelColumn,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return model, nil
}

func (r *ModelRepository) GetByID(ctx context.Context, id uint) (*entity.ModelRecord, error) {
	var model entity.ModelRecord
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, err
	}
	return &model, nil
}

// GetLatestByOwner returns the most recently created record of the owner.
func (r *ModelRepository) GetLatestByOwner(ctx context.Context, ownerID uint) (*entity.ModelRecord, error) {
	var model entity.ModelRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, err
	}
	return &model, nil
}

func (r *ModelRepository) ListByOwner(ctx context.Context, ownerID uint) ([]entity.ModelRecord, error) {
	var models []entity.ModelRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

// SetRemoteJobID points the record at its latest remote job. It reports false when the
// record does not exist.
func (r *ModelRepository) SetRemoteJobID(ctx context.Context, id uint, remoteJobID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.ModelRecord{}).
		Where("id = ?", id).
		Update("remote_job_id", remoteJobID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkSubmitted attaches the remote training job and moves a pending record to training
// in one statement.
func (r *ModelRepository) MarkSubmitted(ctx context.Context, id uint, remoteJobID string) (*entity.ModelRecord, error) {
	result := r.db.WithContext(ctx).Model(&entity.ModelRecord{}).
		Where("id = ? AND status = ?", id, entity.ModelStatusPending).
		Updates(map[string]interface{}{
			"remote_job_id": remoteJobID,
			"status":        entity.ModelStatusTraining,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, entity.ModelStatusTraining)
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus moves the record to status and overwrites its metrics. Metrics are only
// kept for trained records; any other status clears them. Concurrent writers of the same
// edge both succeed, the last one wins.
func (r *ModelRepository) UpdateStatus(ctx context.Context, id uint, status entity.ModelStatus, metrics *entity.Metrics) (*entity.ModelRecord, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	updates := map[string]interface{}{
		"status":        status,
		"eval_accuracy": nil,
		"eval_f1":       nil,
		"eval_loss":     nil,
	}
	if status == entity.ModelStatusTrained && metrics != nil {
		updates["eval_accuracy"] = metrics.Accuracy
		updates["eval_f1"] = metrics.F1
		updates["eval_loss"] = metrics.Loss
	}

	result := r.db.WithContext(ctx).Model(&entity.ModelRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrModelNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the record. It reports false when there was nothing to delete.
func (r *ModelRepository) Delete(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&entity.ModelRecord{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
