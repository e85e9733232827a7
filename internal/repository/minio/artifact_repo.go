package minio

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/jitter"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// refPrefix — префикс публичных ссылок на артефакты. Ссылка однозначно
// восстанавливается в ключ объекта и обратно.
const refPrefix = "/images/"

const (
	cleanupAttempts = 3
	cleanupTimeout  = 30 * time.Second
	backoffBase     = time.Second
	backoffMax      = 10 * time.Second
)

// ArtifactRepo хранит исходные и обработанные изображения в MinIO.
// Удаление выполняется в фоне с повторами.
type ArtifactRepo struct {
	mc          *minio.Client
	cfg         *cfg.MinIOCfg
	logger      logger.Logger
	shutdownCtx context.Context
	wg          sync.WaitGroup
}

func NewArtifactRepo(mc *minio.Client, cfg *cfg.MinIOCfg, logger logger.Logger, shutdownCtx context.Context) *ArtifactRepo {
	return &ArtifactRepo{
		mc:          mc,
		cfg:         cfg,
		logger:      logger,
		shutdownCtx: shutdownCtx,
	}
}

// SaveOriginal сохраняет исходное изображение записи и возвращает ссылку.
func (a *ArtifactRepo) SaveOriginal(ctx context.Context, entityID, imageID string, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("upload/%s/%s/original%s", entityID, imageID, extensionForMIME(contentType))

	if err := a.put(ctx, key, data, contentType); err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return refPrefix + key, nil
}

// SaveProcessed сохраняет обработанный кадр (PNG) рядом с оригиналом.
func (a *ArtifactRepo) SaveProcessed(ctx context.Context, entityID, imageID string, data []byte) (string, error) {
	key := fmt.Sprintf("upload/%s/%s/processed.png", entityID, imageID)

	if err := a.put(ctx, key, data, "image/png"); err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return refPrefix + key, nil
}

// SaveTemp сохраняет временное превью запроса.
func (a *ArtifactRepo) SaveTemp(ctx context.Context, data []byte) (string, error) {
	key := fmt.Sprintf("temp/%s.png", uuid.NewString())

	if err := a.put(ctx, key, data, "image/png"); err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return refPrefix + key, nil
}

// CleanupRefs запускает фоновое удаление артефактов. Ошибки только логируются:
// осиротевший файл хуже, чем прерванный запрос, но не фатален.
func (a *ArtifactRepo) CleanupRefs(refs []string) {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		if key, ok := keyFromRef(ref); ok {
			keys = append(keys, key)
		}
	}

	if len(keys) == 0 {
		return
	}

	a.wg.Add(1)
	go a.cleanupKeys(keys)
}

// cleanupKeys удаляет объекты с экспоненциальной задержкой и jitter.
func (a *ArtifactRepo) cleanupKeys(keys []string) {
	defer a.wg.Done()
	const op = "ArtifactRepo.cleanupKeys"

	ctx, cancel := context.WithTimeout(a.shutdownCtx, cleanupTimeout)
	defer cancel()

	for _, key := range keys {
		for attempt := 0; attempt < cleanupAttempts; attempt++ {
			err := a.mc.RemoveObject(ctx, a.cfg.BucketName, key, minio.RemoveObjectOptions{})
			if err == nil {
				break
			}

			if attempt == cleanupAttempts-1 {
				a.logger.Warnf("%s: failed to remove object after %d attempts, key=%s: %v", op, cleanupAttempts, key, err)
				break
			}

			select {
			case <-time.After(jitter.ExponentialBackoff(backoffBase, backoffMax, attempt, jitter.DefaultJitter)):
			case <-ctx.Done():
				a.logger.Warnf("%s: cleanup interrupted by shutdown, key=%s", op, key)
				return
			}
		}
	}
}

// WaitForCleanup ожидает завершения всех фоновых удалений до отмены контекста.
func (a *ArtifactRepo) WaitForCleanup(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("artifact cleanup timeout during shutdown: %w", ctx.Err())
	}
}

func (a *ArtifactRepo) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.mc.PutObject(ctx, a.cfg.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})

	return err
}

// keyFromRef восстанавливает ключ объекта из публичной ссылки.
func keyFromRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", false
	}

	key := strings.TrimPrefix(ref, refPrefix)
	return key, key != ""
}

// extensionForMIME подбирает расширение файла оригинала по Content-Type.
func extensionForMIME(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
