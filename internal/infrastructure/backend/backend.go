// Package backend — стратегии извлечения признаков. Активная стратегия
// (объекты или лица) выбирается один раз при старте в точке сборки.
package backend

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/usecase"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
)

// New собирает стратегию для заданного режима.
func New(mode string, client InferenceClient, config *cfg.Config, log logger.Logger) (usecase.Backend, error) {
	switch mode {
	case cfg.ModeFace:
		return NewFaceBackend(client, config.Face, log), nil
	case cfg.ModeObject:
		return NewObjectBackend(client, config.Object, log)
	default:
		return nil, e.ErrIncorrectEnvVariable
	}
}

// l2normalize нормирует вектор к единичной длине. Нулевой вектор не трогаем.
func l2normalize(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm < 1e-8 {
		return vector
	}

	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(float64(v) / norm)
	}

	return out
}

// encodePNG кодирует изображение для передачи сервису инференса.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
