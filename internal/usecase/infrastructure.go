package usecase

import (
	"context"
	"image"

	"github.com/DRSN-tech/vision-search/internal/domain"
)

// Backend — конвейер извлечения признаков выбранного режима.
// Реализация фиксируется при старте: объекты или лица.
type Backend interface {
	Mode() domain.Mode
	VectorSize() uint64
	// ModelConfig возвращает текущую конфигурацию моделей для сверки со снапшотом.
	ModelConfig() domain.ModelSnapshot
	Extract(ctx context.Context, img image.Image) (*ExtractRes, error)
}

// Liveness — ансамбль антиспуфинга для режима face.
type Liveness interface {
	Enabled() bool
	Check(ctx context.Context, img image.Image, bbox [4]float32) (*domain.LivenessResult, error)
}

// ImageLoader — получение и декодирование входных изображений.
type ImageLoader interface {
	Acquire(ctx context.Context, req *AcquireImageReq) (*LoadedImage, error)
	// Annotate рисует рамку детекции на изображении и возвращает PNG.
	Annotate(img image.Image, bbox [4]float32) ([]byte, error)
}
