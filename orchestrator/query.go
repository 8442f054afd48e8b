package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tnqbao/gau-ml-service/entity"
)

const historyLimit = 100

// Latest returns the owner's most recently created record, or nil when the
// owner has none.
func (o *Orchestrator) Latest(ctx context.Context, p Principal) (*entity.ModelRecord, error) {
	model, err := o.store.GetLatestByOwner(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest model: %w", err)
	}
	return model, nil
}

func (o *Orchestrator) Details(ctx context.Context, p Principal, id uint) (*entity.ModelRecord, error) {
	return o.loadOwned(ctx, p, id)
}

func (o *Orchestrator) List(ctx context.Context, p Principal) ([]entity.ModelRecord, error) {
	models, err := o.store.ListByOwner(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// History returns the lifecycle events of a record, newest first. Events
// outlive the record, so a purged record still has a history for its owner.
func (o *Orchestrator) History(ctx context.Context, p Principal, id uint) ([]entity.ModelEvent, error) {
	if o.history == nil {
		return nil, errors.New("model history is not available")
	}

	_, err := o.loadOwned(ctx, p, id)
	if err != nil && !errors.Is(err, ErrModelNotFound) {
		return nil, err
	}
	exists := err == nil

	events, err := o.history.ListByModel(ctx, id, p.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of model %d: %w", id, err)
	}
	if len(events) == 0 && !exists {
		return nil, ErrModelNotFound
	}
	if events == nil {
		events = []entity.ModelEvent{}
	}
	return events, nil
}
