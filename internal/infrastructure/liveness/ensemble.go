// Package liveness — ансамбль моделей MiniFASNet для антиспуфинга лиц.
// Каждая модель смотрит на свой масштаб кропа вокруг лица, итоговый вердикт
// усредняется по ансамблю и проверяется строгим правилом по трём классам.
package liveness

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"golang.org/x/image/draw"
)

// Индексы классов моделей MiniFASNet.
const (
	classPaper  = 0
	classReal   = 1
	classScreen = 2
)

// logitsProvider — источник сырых логитов одной модели.
type logitsProvider interface {
	LivenessLogits(ctx context.Context, cropData []byte, model string) ([]float32, error)
}

// Ensemble выполняет проверку живости по нескольким моделям.
type Ensemble struct {
	provider logitsProvider
	cfg      *cfg.LivenessCfg
	logger   logger.Logger
}

func NewEnsemble(provider logitsProvider, cfg *cfg.LivenessCfg, logger logger.Logger) *Ensemble {
	return &Ensemble{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

func (l *Ensemble) Enabled() bool {
	return l.cfg.Enabled
}

// Check прогоняет лицо через все модели ансамбля и применяет строгое правило:
// уверенность real выше порога И оба спуф-класса ниже своих порогов.
// bbox — рамка детекции в координатах исходного изображения (x1, y1, x2, y2).
func (l *Ensemble) Check(ctx context.Context, img image.Image, bbox [4]float32) (*domain.LivenessResult, error) {
	if len(l.cfg.Models) == 0 {
		return nil, e.ErrNoLivenessModels
	}

	var sum [3]float32
	for _, model := range l.cfg.Models {
		scale, err := parseModelScale(model)
		if err != nil {
			return nil, err
		}

		crop, err := l.cropFace(img, bbox, scale)
		if err != nil {
			return nil, err
		}

		logits, err := l.provider.LivenessLogits(ctx, crop, model)
		if err != nil {
			return nil, err
		}

		probs := softmax3(logits)
		for i := range sum {
			sum[i] += probs[i]
		}
	}

	n := float32(len(l.cfg.Models))
	result := &domain.LivenessResult{
		PaperScore:  sum[classPaper] / n,
		RealScore:   sum[classReal] / n,
		ScreenScore: sum[classScreen] / n,
		NumModels:   len(l.cfg.Models),
	}

	result.Passed, result.RejectReason = l.decide(result)

	l.logger.Debugf(
		"liveness verdict: passed=%t real=%.4f paper=%.4f screen=%.4f models=%d",
		result.Passed, result.RealScore, result.PaperScore, result.ScreenScore, result.NumModels,
	)

	return result, nil
}

// decide применяет строгое правило и называет сработавший порог при отказе.
func (l *Ensemble) decide(r *domain.LivenessResult) (bool, string) {
	passed := r.RealScore > l.cfg.RealThreshold &&
		r.PaperScore < l.cfg.PaperReject &&
		r.ScreenScore < l.cfg.ScreenReject
	if passed {
		return true, ""
	}

	switch {
	case r.RealScore <= l.cfg.RealThreshold:
		return false, fmt.Sprintf("real score too low: %.4f <= %.2f", r.RealScore, l.cfg.RealThreshold)
	case r.PaperScore >= l.cfg.PaperReject:
		return false, fmt.Sprintf("paper score too high: %.4f >= %.2f", r.PaperScore, l.cfg.PaperReject)
	default:
		return false, fmt.Sprintf("screen score too high: %.4f >= %.2f", r.ScreenScore, l.cfg.ScreenReject)
	}
}

// cropFace вырезает расширенный кроп вокруг лица и приводит его к входному
// размеру моделей. Возвращает PNG.
func (l *Ensemble) cropFace(img image.Image, bbox [4]float32, scale float64) ([]byte, error) {
	bounds := img.Bounds()

	// Модели обучены на рамке в формате x, y, w, h
	box := [4]float64{
		float64(bbox[0]),
		float64(bbox[1]),
		float64(bbox[2] - bbox[0]),
		float64(bbox[3] - bbox[1]),
	}
	if box[2] <= 0 || box[3] <= 0 {
		return nil, fmt.Errorf("degenerate face bbox: %v", bbox)
	}

	x1, y1, x2, y2 := newBox(bounds.Dx(), bounds.Dy(), box, scale)

	// Правая и нижняя границы кропа включительны
	rect := image.Rect(x1, y1, x2+1, y2+1).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("face bbox %v outside image bounds %v", bbox, bounds)
	}

	crop := image.NewRGBA(image.Rect(0, 0, l.cfg.InputSize, l.cfg.InputSize))
	draw.BiLinear.Scale(crop, crop.Bounds(), img, rect, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// newBox расширяет рамку лица в scale раз вокруг центра, зажимая масштаб и
// сдвигая рамку внутрь изображения с сохранением размера.
func newBox(srcW, srcH int, box [4]float64, scale float64) (int, int, int, int) {
	x, y, boxW, boxH := box[0], box[1], box[2], box[3]

	scale = math.Min(float64(srcH-1)/boxH, math.Min(float64(srcW-1)/boxW, scale))

	newW := boxW * scale
	newH := boxH * scale
	centerX := boxW/2 + x
	centerY := boxH/2 + y

	leftTopX := centerX - newW/2
	leftTopY := centerY - newH/2
	rightBottomX := centerX + newW/2
	rightBottomY := centerY + newH/2

	if leftTopX < 0 {
		rightBottomX -= leftTopX
		leftTopX = 0
	}
	if leftTopY < 0 {
		rightBottomY -= leftTopY
		leftTopY = 0
	}
	if rightBottomX > float64(srcW-1) {
		leftTopX -= rightBottomX - float64(srcW) + 1
		rightBottomX = float64(srcW - 1)
	}
	if rightBottomY > float64(srcH-1) {
		leftTopY -= rightBottomY - float64(srcH) + 1
		rightBottomY = float64(srcH - 1)
	}

	return int(leftTopX), int(leftTopY), int(rightBottomX), int(rightBottomY)
}

// parseModelScale извлекает масштаб кропа из имени модели.
// "2.7_80x80_MiniFASNetV2" -> 2.7, "4_0_0_80x80_MiniFASNetV1SE" -> 4.0.
func parseModelScale(model string) (float64, error) {
	parts := strings.Split(model, "_")
	if len(parts) == 0 || parts[0] == "" {
		return 0, fmt.Errorf("cannot parse crop scale from model name %q", model)
	}

	if parts[0] == "4" {
		return 4.0, nil
	}

	scale, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse crop scale from model name %q: %w", model, err)
	}

	return scale, nil
}

// softmax3 — численно устойчивый softmax по трём логитам.
func softmax3(logits []float32) [3]float32 {
	var out [3]float32
	if len(logits) < 3 {
		return out
	}

	maxLogit := logits[0]
	for _, v := range logits[1:3] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	var sum float64
	var exps [3]float64
	for i := 0; i < 3; i++ {
		exps[i] = math.Exp(float64(logits[i] - maxLogit))
		sum += exps[i]
	}

	for i := 0; i < 3; i++ {
		out[i] = float32(exps[i] / sum)
	}

	return out
}
