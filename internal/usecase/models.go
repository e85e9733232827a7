package usecase

import (
	"encoding/json"
	"image"
	"time"

	"github.com/DRSN-tech/vision-search/internal/domain"
)

// Границы параметров поиска.
const (
	MinTopK = 1
	MaxTopK = 100

	DefaultTopK = 10
)

// MATCH USECASE

// MatchReq — запрос на поиск похожих изображений.
type MatchReq struct {
	Image         []byte   // байты изображения; пусто, если задан URL
	ImageURL      string   // альтернативный источник
	EntityIDs     []string // область поиска; пусто — искать по всей коллекции
	Threshold     float32  // порог похожести в [0, 1]
	TopK          int      // максимум групп в ответе
	CheckLiveness bool     // только режим face
	SaveTemp      bool     // сохранить превью запроса с разметкой
}

// MatchRes — сгруппированный результат поиска.
type MatchRes struct {
	QueryID      string                 `json:"query_id"`
	Groups       []domain.MatchGroup    `json:"groups"`
	TotalMatches int                    `json:"total_matches"`
	Threshold    float32                `json:"threshold"`
	TopK         int                    `json:"top_k"`
	QueryFace    *domain.FaceMeta       `json:"query_face,omitempty"`
	Liveness     *domain.LivenessResult `json:"liveness,omitempty"`
	TempRef      string                 `json:"temp_ref,omitempty"`
	Timings      domain.Timings         `json:"-"`
}

// IMAGE USECASE

// RegisterReq — запрос на регистрацию изображения за сущностью.
type RegisterReq struct {
	EntityID      string
	Image         []byte
	ImageURL      string
	CustomData    json.RawMessage
	CheckLiveness bool
	SaveArtifacts bool // сохранять ли файлы изображения; выключено — в коллекцию идёт только вектор
}

// RegisterRes — данные созданной записи.
type RegisterRes struct {
	ImageID      string                 `json:"image_id"`
	EntityID     string                 `json:"entity_id"`
	SourceRef    string                 `json:"source_ref"`
	ProcessedRef string                 `json:"processed_ref,omitempty"`
	Face         *domain.FaceMeta       `json:"face,omitempty"`
	Liveness     *domain.LivenessResult `json:"liveness,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// CATALOG USECASE

// DeleteEntityRes — итог каскадного удаления сущности.
type DeleteEntityRes struct {
	EntityID       string `json:"entity_id"`
	DeletedRecords int    `json:"deleted_records"`
}

// StatsRes — сводная статистика коллекции.
type StatsRes struct {
	Mode          domain.Mode          `json:"mode"`
	TotalRecords  uint64               `json:"total_records"`
	TotalEntities int                  `json:"total_entities"`
	VectorSize    uint64               `json:"vector_size"`
	Models        domain.ModelSnapshot `json:"models"`
}

// INFRASTRUCTURE

// AcquireImageReq — источник входного изображения: байты либо URL.
type AcquireImageReq struct {
	Data []byte
	URL  string
}

// LoadedImage — декодированное изображение вместе с исходными байтами.
type LoadedImage struct {
	Image    image.Image
	Data     []byte
	MimeType string
}

// ExtractRes — результат конвейера извлечения признаков.
type ExtractRes struct {
	Vector       []float32        // L2-нормированный эмбеддинг
	Face         *domain.FaceMeta // только режим face
	Processed    []byte           // PNG после удаления фона, только режим object
	FallbackUsed bool             // детекция сработала на уменьшенном размере

	// Разбивка времени конвейера: детекция/сегментация и эмбеддинг
	DetectTime time.Duration
	EmbedTime  time.Duration
}

// MAPPERS

func NewAcquireImageReq(data []byte, url string) *AcquireImageReq {
	return &AcquireImageReq{
		Data: data,
		URL:  url,
	}
}

func NewMatchReq(data []byte, url string, entityIDs []string, threshold float32, topK int, liveness, saveTemp bool) *MatchReq {
	return &MatchReq{
		Image:         data,
		ImageURL:      url,
		EntityIDs:     entityIDs,
		Threshold:     threshold,
		TopK:          topK,
		CheckLiveness: liveness,
		SaveTemp:      saveTemp,
	}
}

func NewRegisterReq(entityID string, data []byte, url string, customData json.RawMessage, liveness, saveArtifacts bool) *RegisterReq {
	return &RegisterReq{
		EntityID:      entityID,
		Image:         data,
		ImageURL:      url,
		CustomData:    customData,
		CheckLiveness: liveness,
		SaveArtifacts: saveArtifacts,
	}
}
