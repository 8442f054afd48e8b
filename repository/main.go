package repository

import (
	"github.com/tnqbao/gau-ml-service/entity"
	"github.com/tnqbao/gau-ml-service/infra"
	"gorm.io/gorm"
)

type Repository struct {
	ModelRepo      *ModelRepository
	ModelEventRepo *ModelEventRepository
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	if infra.Postgres == nil || infra.Postgres.DB == nil {
		panic("database connection is nil")
	}
	if err := Migrate(infra.Postgres.DB); err != nil {
		panic("Failed to migrate database: " + err.Error())
	}
	repository = NewRepository(infra.Postgres.DB)
	return repository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		ModelRepo:      NewModelRepository(db),
		ModelEventRepo: NewModelEventRepository(db),
	}
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&entity.ModelRecord{}, &entity.ModelEvent{})
}
