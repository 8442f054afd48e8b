package controller

import (
	"context"
	"io"

	"github.com/tnqbao/gau-ml-service/config"
	"github.com/tnqbao/gau-ml-service/infra"
	"github.com/tnqbao/gau-ml-service/orchestrator"
	"github.com/tnqbao/gau-ml-service/repository"
)

// DatasetStorage keeps uploaded training files and hands back a reference the
// compute provider can read.
type DatasetStorage interface {
	UploadDataset(ctx context.Context, ownerID uint, fileName string, reader io.Reader, size int64, contentType string) (*infra.DatasetObject, error)
}

type Controller struct {
	Config       *config.Config
	Infra        *infra.Infra
	Repository   *repository.Repository
	Orchestrator *orchestrator.Orchestrator
	Datasets     DatasetStorage
}

func NewController(config *config.Config, infra *infra.Infra, repo *repository.Repository) *Controller {
	opts := []orchestrator.Option{orchestrator.WithHistory(repo.ModelEventRepo)}
	if infra.Produce != nil && infra.Produce.ModelService != nil {
		opts = append(opts, orchestrator.WithPublisher(infra.Produce.ModelService))
	}
	if infra.PollCache != nil {
		opts = append(opts, orchestrator.WithPollCache(infra.PollCache))
	}

	ctrl := &Controller{
		Config:       config,
		Infra:        infra,
		Repository:   repo,
		Orchestrator: orchestrator.New(repo.ModelRepo, infra.ComputeService, infra.Logger, opts...),
	}
	if infra.Minio != nil {
		ctrl.Datasets = infra.Minio
	}
	return ctrl
}
