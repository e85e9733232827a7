package usecase

import (
	"context"

	"github.com/DRSN-tech/vision-search/internal/domain"
)

type MatchUC interface {
	Match(ctx context.Context, req *MatchReq) (*MatchRes, error)
}

type ImageUC interface {
	Register(ctx context.Context, req *RegisterReq) (*RegisterRes, error)
	GetImage(ctx context.Context, imageID string) (*domain.ImageRecord, error)
	DeleteImage(ctx context.Context, imageID string) error
}

type CatalogUC interface {
	ListEntities(ctx context.Context) ([]domain.EntityCount, error)
	ListEntityImages(ctx context.Context, entityID string) ([]domain.ImageRecord, error)
	DeleteEntity(ctx context.Context, entityID string) (*DeleteEntityRes, error)
	Stats(ctx context.Context) (*StatsRes, error)
	// Reconcile сверяет конфигурацию моделей со снапшотом и при расхождении
	// сбрасывает коллекцию. Вызывается до приёма трафика.
	Reconcile(ctx context.Context) error
}
