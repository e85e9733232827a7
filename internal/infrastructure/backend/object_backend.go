package backend

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
)

// ObjectBackend — стратегия режима object: удаление фона и эмбеддинг
// с взвешенным слиянием CLS- и patch-признаков.
type ObjectBackend struct {
	client     InferenceClient
	cfg        *cfg.ObjectCfg
	vectorSize uint64
	logger     logger.Logger
}

func NewObjectBackend(client InferenceClient, config *cfg.ObjectCfg, logger logger.Logger) (*ObjectBackend, error) {
	size, ok := cfg.ObjectVectorSize(config.Model)
	if !ok {
		return nil, fmt.Errorf("unknown object model %q", config.Model)
	}

	return &ObjectBackend{
		client:     client,
		cfg:        config,
		vectorSize: size,
		logger:     logger,
	}, nil
}

func (o *ObjectBackend) Mode() domain.Mode {
	return domain.ModeObject
}

func (o *ObjectBackend) VectorSize() uint64 {
	return o.vectorSize
}

func (o *ObjectBackend) ModelConfig() domain.ModelSnapshot {
	return domain.ModelSnapshot{
		"embedding": {
			Backend: "onnx",
			Model:   o.cfg.Model,
			Params: map[string]string{
				"cls_weight":   strconv.FormatFloat(float64(o.cfg.ClsWeight), 'f', -1, 32),
				"patch_weight": strconv.FormatFloat(float64(o.cfg.PatchWeight), 'f', -1, 32),
			},
		},
		"segmentation": {
			Backend: "rembg",
			Model:   o.cfg.BGModel,
		},
	}
}

// Extract сегментирует объект и извлекает L2-нормированный эмбеддинг.
// Итоговый вектор — взвешенная сумма CLS-токена и усреднённых patch-токенов:
// CLS несёт глобальную форму, patch-токены добавляют локальную текстуру.
func (o *ObjectBackend) Extract(ctx context.Context, img image.Image) (*usecase.ExtractRes, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	detectStart := time.Now()
	segmented, err := o.client.RemoveBackground(ctx, data, o.cfg.BGModel)
	if err != nil {
		return nil, err
	}
	detectTime := time.Since(detectStart)

	if len(segmented) == 0 {
		return nil, e.ErrNoSubjectDetected
	}

	embedStart := time.Now()
	features, err := o.client.EmbedObject(ctx, segmented, o.cfg.Model)
	if err != nil {
		return nil, err
	}
	embedTime := time.Since(embedStart)

	vector, err := o.fuse(features.CLS, features.Patch)
	if err != nil {
		return nil, err
	}

	return &usecase.ExtractRes{
		Vector:     l2normalize(vector),
		Processed:  segmented,
		DetectTime: detectTime,
		EmbedTime:  embedTime,
	}, nil
}

// fuse сливает глобальные и локальные признаки. Если patch-признаков нет,
// используется только CLS.
func (o *ObjectBackend) fuse(cls, patch []float32) ([]float32, error) {
	if uint64(len(cls)) != o.vectorSize {
		return nil, fmt.Errorf("%w: model %s returned %d dims, expected %d",
			e.ErrDimensionMismatch, o.cfg.Model, len(cls), o.vectorSize)
	}

	if len(patch) == 0 {
		return cls, nil
	}

	if len(patch) != len(cls) {
		return nil, fmt.Errorf("%w: cls %d dims vs patch %d dims",
			e.ErrDimensionMismatch, len(cls), len(patch))
	}

	fused := make([]float32, len(cls))
	for i := range cls {
		fused[i] = o.cfg.ClsWeight*cls[i] + o.cfg.PatchWeight*patch[i]
	}

	return fused, nil
}
