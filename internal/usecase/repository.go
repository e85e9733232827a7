package usecase

import (
	"context"

	"github.com/DRSN-tech/vision-search/internal/domain"
)

// VectorRepository — хранилище эмбеддингов изображений.
type VectorRepository interface {
	Upsert(ctx context.Context, record *domain.ImageRecord) error
	// Search возвращает ближайшие записи с похожестью не ниже threshold,
	// отсортированные по убыванию. Пустой entityID — поиск без фильтра.
	Search(ctx context.Context, vector []float32, topK int, threshold float32, entityID string) ([]domain.SearchHit, error)
	GetByImageID(ctx context.Context, imageID string) (*domain.ImageRecord, error)
	ListByEntityID(ctx context.Context, entityID string) ([]domain.ImageRecord, error)
	ListAll(ctx context.Context) ([]domain.ImageRecord, error)
	DeleteByImageID(ctx context.Context, imageID string) error
	// DeleteByEntityID возвращает число удалённых записей.
	DeleteByEntityID(ctx context.Context, entityID string) (int, error)
	// Dimension возвращает размерность сохранённых векторов.
	// Для пустой коллекции возвращает 0 без ошибки.
	Dimension(ctx context.Context) (uint64, error)
	Count(ctx context.Context) (uint64, error)
	// Reset уничтожает коллекцию и создаёт её заново.
	Reset(ctx context.Context) error
}

// ArtifactRepository — объектное хранилище исходных и обработанных изображений.
type ArtifactRepository interface {
	SaveOriginal(ctx context.Context, entityID, imageID string, data []byte, contentType string) (string, error)
	SaveProcessed(ctx context.Context, entityID, imageID string, data []byte) (string, error)
	// SaveTemp сохраняет временный артефакт запроса (превью с разметкой).
	SaveTemp(ctx context.Context, data []byte) (string, error)
	// CleanupRefs асинхронно удаляет артефакты по ссылкам. Ошибки логируются.
	CleanupRefs(refs []string)
	// WaitForCleanup дожидается завершения фоновых удалений при остановке.
	WaitForCleanup(ctx context.Context) error
}

// SnapshotRepository — персистентный слепок конфигурации моделей.
// Файл общий для обоих режимов, секции хранятся раздельно: смена
// SERVICE_MODE не должна затрагивать снапшот другого режима.
type SnapshotRepository interface {
	// Load возвращает секцию режима; nil без ошибки, если секция
	// ещё не сохранялась или файл нечитаем.
	Load(ctx context.Context, mode domain.Mode) (domain.ModelSnapshot, error)
	// Save перезаписывает секцию режима, не трогая секции остальных режимов.
	Save(ctx context.Context, mode domain.Mode, snapshot domain.ModelSnapshot) error
}

// CacheRepository — кэш агрегатов каталога.
type CacheRepository interface {
	GetEntityCounts(ctx context.Context) ([]domain.EntityCount, error)
	SetEntityCounts(ctx context.Context, counts []domain.EntityCount) error
	InvalidateEntityCounts(ctx context.Context) error
}
