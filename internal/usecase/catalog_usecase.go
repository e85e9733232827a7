package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
)

// CatalogUseCase реализует операции над каталогом сущностей и
// сверку конфигурации моделей при старте.
type CatalogUseCase struct {
	vectorRepo   VectorRepository
	artifactRepo ArtifactRepository
	cacheRepo    CacheRepository
	snapshotRepo SnapshotRepository
	backend      Backend
	logger       logger.Logger
}

func NewCatalogUC(
	vectorRepo VectorRepository,
	artifactRepo ArtifactRepository,
	cacheRepo CacheRepository,
	snapshotRepo SnapshotRepository,
	backend Backend,
	logger logger.Logger,
) *CatalogUseCase {
	return &CatalogUseCase{
		vectorRepo:   vectorRepo,
		artifactRepo: artifactRepo,
		cacheRepo:    cacheRepo,
		snapshotRepo: snapshotRepo,
		backend:      backend,
		logger:       logger,
	}
}

// ListEntities возвращает все сущности с числом изображений, по убыванию
// счётчика. Подсчёт идёт полным проходом по коллекции, поэтому результат
// кэшируется с коротким TTL.
func (c *CatalogUseCase) ListEntities(ctx context.Context) ([]domain.EntityCount, error) {
	const op = "CatalogUseCase.ListEntities"

	if cached, err := c.cacheRepo.GetEntityCounts(ctx); err == nil && cached != nil {
		return cached, nil
	}

	records, err := c.vectorRepo.ListAll(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	counts := countByEntity(records)

	// Фоновая запись в кэш, запрос ответа не ждёт
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		if err := c.cacheRepo.SetEntityCounts(bgCtx, counts); err != nil {
			c.logger.Warnf("failed to cache entity counts in background: %v", e.Wrap(op, err))
		}
	}()

	return counts, nil
}

// ListEntityImages возвращает все записи одной сущности.
func (c *CatalogUseCase) ListEntityImages(ctx context.Context, entityID string) ([]domain.ImageRecord, error) {
	const op = "CatalogUseCase.ListEntityImages"

	if strings.TrimSpace(entityID) == "" {
		return nil, e.Wrap(op, e.ErrEntityIDRequired)
	}

	records, err := c.vectorRepo.ListByEntityID(ctx, entityID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return records, nil
}

// DeleteEntity каскадно удаляет сущность: сперва зачищаются файлы всех её
// записей, затем записи из коллекции. Недоступность файлов логируется и не
// прерывает удаление векторов.
func (c *CatalogUseCase) DeleteEntity(ctx context.Context, entityID string) (*DeleteEntityRes, error) {
	const op = "CatalogUseCase.DeleteEntity"

	if strings.TrimSpace(entityID) == "" {
		return nil, e.Wrap(op, e.ErrEntityIDRequired)
	}

	records, err := c.vectorRepo.ListByEntityID(ctx, entityID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if len(records) == 0 {
		return &DeleteEntityRes{EntityID: entityID, DeletedRecords: 0}, nil
	}

	refs := make([]string, 0, len(records)*2)
	for _, r := range records {
		refs = append(refs, collectRefs(r.SourceRef, r.ProcessedRef)...)
	}
	c.artifactRepo.CleanupRefs(refs)

	deleted, err := c.vectorRepo.DeleteByEntityID(ctx, entityID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if err := c.cacheRepo.InvalidateEntityCounts(ctx); err != nil {
		c.logger.Warnf("failed to invalidate entity counts cache: %v", e.Wrap(op, err))
	}

	return &DeleteEntityRes{EntityID: entityID, DeletedRecords: deleted}, nil
}

// Stats возвращает сводку по коллекции и активным моделям.
func (c *CatalogUseCase) Stats(ctx context.Context) (*StatsRes, error) {
	const op = "CatalogUseCase.Stats"

	total, err := c.vectorRepo.Count(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	entities, err := c.ListEntities(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Размерность отражает реально сохранённые векторы;
	// для пустой коллекции — конфигурацию активной модели
	dim, err := c.vectorRepo.Dimension(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if dim == 0 {
		dim = c.backend.VectorSize()
	}

	return &StatsRes{
		Mode:          c.backend.Mode(),
		TotalRecords:  total,
		TotalEntities: len(entities),
		VectorSize:    dim,
		Models:        c.backend.ModelConfig(),
	}, nil
}

// Reconcile сверяет активную конфигурацию моделей с её сохранённой секцией
// снапшота. Расхождение означает несовместимое пространство эмбеддингов:
// коллекция уничтожается и создаётся заново. Секция перезаписывается и при
// совпадении — это лечит отсутствующий или битый файл снапшота.
// Выполняется до приёма трафика.
func (c *CatalogUseCase) Reconcile(ctx context.Context) error {
	const op = "CatalogUseCase.Reconcile"

	mode := c.backend.Mode()
	current := c.backend.ModelConfig()

	stored, err := c.snapshotRepo.Load(ctx, mode)
	if err != nil {
		return e.Wrap(op, err)
	}

	switch {
	case stored == nil:
		c.logger.Infof("no model snapshot for mode %s, saving current configuration", mode)
	case stored.Equal(current):
		c.logger.Infof("model configuration for mode %s unchanged", mode)
	default:
		count, err := c.vectorRepo.Count(ctx)
		if err != nil {
			return e.Wrap(op, err)
		}

		c.logger.Warnf("model configuration changed, resetting collection with %d records", count)

		if err := c.vectorRepo.Reset(ctx); err != nil {
			return e.Wrap(op, err)
		}

		if err := c.cacheRepo.InvalidateEntityCounts(ctx); err != nil {
			c.logger.Warnf("failed to invalidate entity counts cache: %v", e.Wrap(op, err))
		}
	}

	if err := c.snapshotRepo.Save(ctx, mode, current); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// countByEntity группирует записи по сущностям и сортирует счётчики по
// убыванию; при равенстве — лексикографически по идентификатору.
func countByEntity(records []domain.ImageRecord) []domain.EntityCount {
	byEntity := make(map[string]int)
	order := make([]string, 0)
	for _, r := range records {
		if _, ok := byEntity[r.EntityID]; !ok {
			order = append(order, r.EntityID)
		}
		byEntity[r.EntityID]++
	}

	counts := make([]domain.EntityCount, 0, len(order))
	for _, id := range order {
		counts = append(counts, domain.EntityCount{EntityID: id, Images: byEntity[id]})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Images != counts[j].Images {
			return counts[i].Images > counts[j].Images
		}
		return counts[i].EntityID < counts[j].EntityID
	})

	return counts
}
