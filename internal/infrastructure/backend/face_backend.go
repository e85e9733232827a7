package backend

import (
	"context"
	"image"
	"strconv"
	"time"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/internal/infrastructure/inference"
	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
)

// InferenceClient — операции сервиса инференса, нужные стратегиям.
type InferenceClient interface {
	DetectFaces(ctx context.Context, imageData []byte, model string, detSize int, threshold float32) ([]inference.DetectedFace, error)
	RemoveBackground(ctx context.Context, imageData []byte, model string) ([]byte, error)
	EmbedObject(ctx context.Context, imageData []byte, model string) (*inference.ObjectFeatures, error)
}

// faceVectorSize — размерность эмбеддинга модели распознавания лиц.
const faceVectorSize = 512

// FaceBackend — стратегия режима face: детекция лица с повтором на
// уменьшенном размере и эмбеддинг первого найденного лица.
type FaceBackend struct {
	client InferenceClient
	cfg    *cfg.FaceCfg
	logger logger.Logger
}

func NewFaceBackend(client InferenceClient, cfg *cfg.FaceCfg, logger logger.Logger) *FaceBackend {
	return &FaceBackend{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (f *FaceBackend) Mode() domain.Mode {
	return domain.ModeFace
}

func (f *FaceBackend) VectorSize() uint64 {
	return faceVectorSize
}

func (f *FaceBackend) ModelConfig() domain.ModelSnapshot {
	return domain.ModelSnapshot{
		"face": {
			Backend: "insightface",
			Model:   f.cfg.ModelName,
			Params: map[string]string{
				"det_size":      strconv.Itoa(f.cfg.DetSize),
				"det_threshold": strconv.FormatFloat(float64(f.cfg.DetThreshold), 'f', -1, 32),
			},
		},
	}
}

// Extract детектирует лица и возвращает эмбеддинг самого уверенного.
// Крупные лица в кадр детектора 640x640 не помещаются, поэтому при пустом
// результате детекция повторяется на уменьшенном размере.
func (f *FaceBackend) Extract(ctx context.Context, img image.Image) (*usecase.ExtractRes, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	detectStart := time.Now()
	faces, err := f.client.DetectFaces(ctx, data, f.cfg.ModelName, f.cfg.DetSize, f.cfg.DetThreshold)
	if err != nil {
		return nil, err
	}

	fallbackUsed := false
	if len(faces) == 0 && f.cfg.MultiScale && f.cfg.FallbackSize != f.cfg.DetSize {
		f.logger.Warnf("no faces at det_size=%d, retrying at %d", f.cfg.DetSize, f.cfg.FallbackSize)

		faces, err = f.client.DetectFaces(ctx, data, f.cfg.ModelName, f.cfg.FallbackSize, f.cfg.DetThreshold)
		if err != nil {
			return nil, err
		}
		fallbackUsed = len(faces) > 0
	}
	detectTime := time.Since(detectStart)

	if len(faces) == 0 {
		return nil, e.ErrNoFaceDetected
	}

	if len(faces) > 1 {
		f.logger.Infof("detected %d faces, using the most confident one", len(faces))
	}

	face := faces[0]
	if len(face.Embedding) == 0 {
		return nil, e.ErrEmptyVector
	}

	// Эмбеддинг приходит вместе с ответом детектора, отдельного вызова нет
	return &usecase.ExtractRes{
		Vector: l2normalize(face.Embedding),
		Face: &domain.FaceMeta{
			BBox:      face.BBox,
			DetScore:  face.DetScore,
			Landmarks: face.Landmarks,
		},
		FallbackUsed: fallbackUsed,
		DetectTime:   detectTime,
	}, nil
}
