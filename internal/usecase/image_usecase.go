package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/google/uuid"
)

// ImageUseCase реализует регистрацию изображений и операции над отдельными записями.
type ImageUseCase struct {
	vectorRepo   VectorRepository
	artifactRepo ArtifactRepository
	cacheRepo    CacheRepository
	backend      Backend
	liveness     Liveness
	loader       ImageLoader
	logger       logger.Logger
}

func NewImageUC(
	vectorRepo VectorRepository,
	artifactRepo ArtifactRepository,
	cacheRepo CacheRepository,
	backend Backend,
	liveness Liveness,
	loader ImageLoader,
	logger logger.Logger,
) *ImageUseCase {
	return &ImageUseCase{
		vectorRepo:   vectorRepo,
		artifactRepo: artifactRepo,
		cacheRepo:    cacheRepo,
		backend:      backend,
		liveness:     liveness,
		loader:       loader,
		logger:       logger,
	}
}

// Register добавляет изображение сущности: извлекает эмбеддинг, сохраняет
// артефакты и вставляет запись в коллекцию. При сбое вставки сохранённые
// артефакты зачищаются, осиротевших файлов не остаётся. Сохранение файлов
// отключается флагом запроса — тогда запись несёт только вектор и метаданные.
func (i *ImageUseCase) Register(ctx context.Context, req *RegisterReq) (*RegisterRes, error) {
	const op = "ImageUseCase.Register"

	if err := i.validateRegister(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	loaded, err := i.loader.Acquire(ctx, NewAcquireImageReq(req.Image, req.ImageURL))
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	extracted, err := i.backend.Extract(ctx, loaded.Image)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Те же жёсткие ворота живости, что и при поиске
	var livenessRes *domain.LivenessResult
	if req.CheckLiveness && i.liveness.Enabled() && extracted.Face != nil {
		livenessRes, err = i.liveness.Check(ctx, loaded.Image, extracted.Face.BBox)
		if err != nil {
			return nil, e.Wrap(op, err)
		}

		if !livenessRes.Passed {
			return nil, e.Wrap(op, fmt.Errorf("%w: %s", e.ErrLivenessRejected, livenessRes.RejectReason))
		}
	}

	imageID := uuid.NewString()

	var sourceRef, processedRef string
	if req.SaveArtifacts {
		sourceRef, processedRef, err = i.saveArtifacts(ctx, req.EntityID, imageID, loaded, extracted)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	record := &domain.ImageRecord{
		ImageID:      imageID,
		EntityID:     req.EntityID,
		Vector:       extracted.Vector,
		SourceRef:    sourceRef,
		ProcessedRef: processedRef,
		CustomData:   req.CustomData,
		CreatedAt:    time.Now().UTC(),
		Mode:         i.backend.Mode(),
		Face:         extracted.Face,
	}

	if err = i.vectorRepo.Upsert(ctx, record); err != nil {
		// Вставка не удалась — подчищаем только что сохранённые артефакты
		i.logger.Warnf(
			"cleaning up orphaned artifacts after failed upsert. entity_id: %s, image_id: %s, error: %v",
			req.EntityID, imageID, e.Wrap(op, err),
		)
		i.artifactRepo.CleanupRefs(collectRefs(sourceRef, processedRef))

		return nil, e.Wrap(op, err)
	}

	i.invalidateCounts(ctx, op)

	return &RegisterRes{
		ImageID:      imageID,
		EntityID:     req.EntityID,
		SourceRef:    sourceRef,
		ProcessedRef: processedRef,
		Face:         extracted.Face,
		Liveness:     livenessRes,
		CreatedAt:    record.CreatedAt,
	}, nil
}

// GetImage возвращает запись по идентификатору изображения.
func (i *ImageUseCase) GetImage(ctx context.Context, imageID string) (*domain.ImageRecord, error) {
	const op = "ImageUseCase.GetImage"

	record, err := i.vectorRepo.GetByImageID(ctx, imageID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return record, nil
}

// DeleteImage удаляет запись вместе с её файлами. Недоступность файлов
// не блокирует удаление вектора.
func (i *ImageUseCase) DeleteImage(ctx context.Context, imageID string) error {
	const op = "ImageUseCase.DeleteImage"

	record, err := i.vectorRepo.GetByImageID(ctx, imageID)
	if err != nil {
		return e.Wrap(op, err)
	}

	i.artifactRepo.CleanupRefs(collectRefs(record.SourceRef, record.ProcessedRef))

	if err = i.vectorRepo.DeleteByImageID(ctx, imageID); err != nil {
		return e.Wrap(op, err)
	}

	i.invalidateCounts(ctx, op)

	return nil
}

// saveArtifacts сохраняет оригинал и обработанный кадр, возвращая их ссылки.
func (i *ImageUseCase) saveArtifacts(ctx context.Context, entityID, imageID string, loaded *LoadedImage, extracted *ExtractRes) (string, string, error) {
	sourceRef, err := i.artifactRepo.SaveOriginal(ctx, entityID, imageID, loaded.Data, loaded.MimeType)
	if err != nil {
		return "", "", err
	}

	var processedRef string
	if len(extracted.Processed) > 0 {
		processedRef, err = i.artifactRepo.SaveProcessed(ctx, entityID, imageID, extracted.Processed)
		if err != nil {
			i.artifactRepo.CleanupRefs([]string{sourceRef})
			return "", "", err
		}
	}

	return sourceRef, processedRef, nil
}

func (i *ImageUseCase) validateRegister(req *RegisterReq) error {
	if strings.TrimSpace(req.EntityID) == "" {
		return e.ErrEntityIDRequired
	}

	if len(req.Image) == 0 && strings.TrimSpace(req.ImageURL) == "" {
		return e.ErrImageRequired
	}

	if len(req.CustomData) > 0 && !json.Valid(req.CustomData) {
		return e.ErrInvalidCustomData
	}

	return nil
}

// invalidateCounts сбрасывает кэш счётчиков каталога после мутации коллекции.
func (i *ImageUseCase) invalidateCounts(ctx context.Context, op string) {
	if err := i.cacheRepo.InvalidateEntityCounts(ctx); err != nil {
		i.logger.Warnf("failed to invalidate entity counts cache: %v", e.Wrap(op, err))
	}
}

func collectRefs(refs ...string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref != "" {
			out = append(out, ref)
		}
	}

	return out
}
