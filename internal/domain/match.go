package domain

import (
	"encoding/json"
	"time"
)

// SearchHit — сырой результат поиска по векторной коллекции:
// запись плюс нормированная похожесть в диапазоне [0, 1].
type SearchHit struct {
	Record     ImageRecord
	Similarity float32
}

// MatchImage — одно совпадение внутри группы сущности. Несёт ссылки и
// метаданные записи, чтобы клиенту не требовался отдельный запрос за ними.
type MatchImage struct {
	ImageID      string          `json:"image_id"`
	Similarity   float32         `json:"similarity"`
	SourceRef    string          `json:"source_ref"`
	ProcessedRef string          `json:"processed_ref,omitempty"`
	CustomData   json.RawMessage `json:"custom_data,omitempty"`
	Face         *FaceMeta       `json:"face,omitempty"`
}

// MatchGroup — совпадения, сгруппированные по сущности. Группы
// ранжируются по максимальной похожести среди своих изображений.
type MatchGroup struct {
	EntityID      string       `json:"entity_id"`
	MaxSimilarity float32      `json:"max_similarity"`
	Images        []MatchImage `json:"images"`
}

// Timings — разбивка времени обработки запроса по этапам.
// Detect покрывает детекцию лица либо сегментацию объекта,
// Embed — извлечение эмбеддинга.
type Timings struct {
	Load   time.Duration `json:"-"`
	Detect time.Duration `json:"-"`
	Embed  time.Duration `json:"-"`
	Search time.Duration `json:"-"`
	Group  time.Duration `json:"-"`
	Total  time.Duration `json:"-"`
}

// LivenessResult — вердикт ансамбля антиспуфинга по одному лицу.
type LivenessResult struct {
	Passed       bool    `json:"passed"`
	RealScore    float32 `json:"real_score"`
	PaperScore   float32 `json:"paper_score"`
	ScreenScore  float32 `json:"screen_score"`
	RejectReason string  `json:"reject_reason,omitempty"`
	NumModels    int     `json:"num_models"`
}

// EntityCount — сущность и число её изображений в коллекции.
type EntityCount struct {
	EntityID string `json:"entity_id"`
	Images   int    `json:"images"`
}
