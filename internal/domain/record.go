// Package domain содержит основные сущности сервиса визуального поиска.
package domain

import (
	"encoding/json"
	"time"
)

// Mode — режим работы сервиса, фиксируется при старте процесса.
type Mode string

const (
	ModeObject Mode = "object"
	ModeFace   Mode = "face"
)

// ImageRecord — зарегистрированное изображение с вычисленным эмбеддингом.
// Одна запись соответствует одной точке в векторной коллекции.
type ImageRecord struct {
	ImageID      string          `json:"image_id"`
	EntityID     string          `json:"entity_id"`
	Vector       []float32       `json:"-"`
	SourceRef    string          `json:"source_ref"`
	ProcessedRef string          `json:"processed_ref,omitempty"`
	CustomData   json.RawMessage `json:"custom_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Mode         Mode            `json:"mode"`
	Face         *FaceMeta       `json:"face,omitempty"`
}

// FaceMeta — метаданные детекции лица. Заполняется только в режиме face.
type FaceMeta struct {
	BBox      [4]float32  `json:"bbox"` // x1, y1, x2, y2 в пикселях исходного изображения
	DetScore  float32     `json:"det_score"`
	Landmarks [][]float32 `json:"landmarks,omitempty"`
}
