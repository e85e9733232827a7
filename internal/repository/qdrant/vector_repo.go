package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/DRSN-tech/vision-search/internal/cfg"
	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// Ключи payload точки.
const (
	payloadEntityID     = "entity_id"
	payloadSourceRef    = "source_ref"
	payloadProcessedRef = "processed_ref"
	payloadCustomData   = "custom_data"
	payloadCreatedAt    = "created_at"
	payloadMode         = "mode"
	payloadFaceBBox     = "face_bbox"
	payloadFaceScore    = "face_det_score"
	payloadLandmarks    = "face_landmarks"
)

// scrollPageLimit — размер страницы полного прохода по коллекции.
const scrollPageLimit = 10000

// overFetchCeiling — потолок перевыборки кандидатов при поиске.
const overFetchCeiling = 100

// VectorRepo — репозиторий записей изображений в Qdrant.
type VectorRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewVectorRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *VectorRepo {
	return &VectorRepo{
		client: client,
		cfg:    cfg,
	}
}

// Upsert сохраняет запись, проверяя согласованность размерности с коллекцией.
func (q *VectorRepo) Upsert(ctx context.Context, record *domain.ImageRecord) error {
	if err := validateVector(record.Vector, q.cfg.VectorSize); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	payload, err := buildPayload(record)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.CollectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(record.ImageID),
				Vectors: qdrant.NewVectors(record.Vector...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Search возвращает ближайшие записи с похожестью не ниже threshold по
// убыванию. Кандидатов запрашивается больше, чем topK, чтобы фильтрация по
// порогу и последующая группировка не обрезали результат раньше времени.
func (q *VectorRepo) Search(ctx context.Context, vector []float32, topK int, threshold float32, entityID string) ([]domain.SearchHit, error) {
	if err := validateVector(vector, q.cfg.VectorSize); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	limit := overFetchLimit(topK)

	query := &qdrant.QueryPoints{
		CollectionName: q.cfg.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if entityID != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadEntityID, entityID),
			},
		}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	hits, err := hitsFromPoints(points, threshold)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return hits, nil
}

// hitsFromPoints восстанавливает записи из найденных точек, отбрасывая те,
// чья нормированная похожесть ниже порога. Порог применяется на клиенте:
// движок сравнивает сырой косинусный счёт, а не похожесть [0, 1].
func hitsFromPoints(points []*qdrant.ScoredPoint, threshold float32) ([]domain.SearchHit, error) {
	hits := make([]domain.SearchHit, 0, len(points))
	for _, point := range points {
		similarity := normalizeScore(point.GetScore())
		if similarity < threshold {
			continue
		}

		record, err := recordFromPayload(point.GetId().GetUuid(), point.GetPayload())
		if err != nil {
			return nil, err
		}

		hits = append(hits, domain.SearchHit{Record: *record, Similarity: similarity})
	}

	return hits, nil
}

// GetByImageID возвращает запись по идентификатору точки.
func (q *VectorRepo) GetByImageID(ctx context.Context, imageID string) (*domain.ImageRecord, error) {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.cfg.CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(imageID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if len(points) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrNotFound)
	}

	record, err := recordFromPayload(imageID, points[0].GetPayload())
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return record, nil
}

// ListByEntityID возвращает все записи одной сущности.
func (q *VectorRepo) ListByEntityID(ctx context.Context, entityID string) ([]domain.ImageRecord, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadEntityID, entityID),
		},
	}

	return q.scroll(ctx, filter)
}

// ListAll возвращает все записи коллекции. Полный проход, O(N).
func (q *VectorRepo) ListAll(ctx context.Context) ([]domain.ImageRecord, error) {
	return q.scroll(ctx, nil)
}

// DeleteByImageID удаляет одну точку.
func (q *VectorRepo) DeleteByImageID(ctx context.Context, imageID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.CollectionName,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(imageID)),
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// DeleteByEntityID удаляет все точки сущности и возвращает их число.
func (q *VectorRepo) DeleteByEntityID(ctx context.Context, entityID string) (int, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadEntityID, entityID),
		},
	}

	// Число удаляемых точек приходится считать до удаления:
	// результат операции его не сообщает
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.CollectionName,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return int(count), nil
}

// Dimension возвращает размерность сохранённых векторов, определяя её по
// первой попавшейся точке. Пустая коллекция — 0 без ошибки.
func (q *VectorRepo) Dimension(ctx context.Context) (uint64, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.cfg.CollectionName,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	if len(points) == 0 {
		return 0, nil
	}

	return uint64(len(points[0].GetVectors().GetVector().GetData())), nil
}

// Count возвращает точное число точек в коллекции.
func (q *VectorRepo) Count(ctx context.Context) (uint64, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.CollectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return count, nil
}

// Reset уничтожает коллекцию и создаёт её заново с текущей размерностью.
func (q *VectorRepo) Reset(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.CollectionName)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if exists {
		if err := q.client.DeleteCollection(ctx, q.cfg.CollectionName); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// scroll постранично вычитывает точки, удовлетворяющие фильтру.
func (q *VectorRepo) scroll(ctx context.Context, filter *qdrant.Filter) ([]domain.ImageRecord, error) {
	var (
		records []domain.ImageRecord
		offset  *qdrant.PointId
	)

	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.cfg.CollectionName,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(scrollPageLimit)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		if len(points) == 0 {
			break
		}

		for _, point := range points {
			record, err := recordFromPayload(point.GetId().GetUuid(), point.GetPayload())
			if err != nil {
				return nil, e.Wrap(whereami.WhereAmI(), err)
			}
			records = append(records, *record)
		}

		if len(points) < scrollPageLimit {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	return records, nil
}

// overFetchLimit — число кандидатов, запрашиваемых у движка до фильтрации.
func overFetchLimit(topK int) int {
	limit := topK * 3
	if limit > overFetchCeiling {
		limit = overFetchCeiling
	}
	if limit < topK {
		limit = topK
	}

	return limit
}

// normalizeScore переводит косинусный счёт из [-1, 1] в похожесть [0, 1].
func normalizeScore(score float32) float32 {
	similarity := (score + 1) / 2
	switch {
	case similarity < 0:
		return 0
	case similarity > 1:
		return 1
	default:
		return similarity
	}
}

// validateVector отклоняет пустые векторы, NaN/Inf и несовпадение размерности.
func validateVector(vector []float32, expected uint64) error {
	if len(vector) == 0 {
		return e.ErrEmptyVector
	}

	if uint64(len(vector)) != expected {
		return fmt.Errorf("%w: got %d, collection expects %d", e.ErrDimensionMismatch, len(vector), expected)
	}

	for _, v := range vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return e.ErrInvalidVector
		}
	}

	return nil
}

// buildPayload сериализует запись в payload точки.
func buildPayload(record *domain.ImageRecord) (map[string]any, error) {
	payload := map[string]any{
		payloadEntityID:  record.EntityID,
		payloadCreatedAt: record.CreatedAt.UnixNano(),
		payloadMode:      string(record.Mode),
	}

	if record.SourceRef != "" {
		payload[payloadSourceRef] = record.SourceRef
	}
	if record.ProcessedRef != "" {
		payload[payloadProcessedRef] = record.ProcessedRef
	}
	if len(record.CustomData) > 0 {
		payload[payloadCustomData] = string(record.CustomData)
	}

	if record.Face != nil {
		bbox, err := json.Marshal(record.Face.BBox)
		if err != nil {
			return nil, err
		}
		payload[payloadFaceBBox] = string(bbox)
		payload[payloadFaceScore] = float64(record.Face.DetScore)

		if len(record.Face.Landmarks) > 0 {
			landmarks, err := json.Marshal(record.Face.Landmarks)
			if err != nil {
				return nil, err
			}
			payload[payloadLandmarks] = string(landmarks)
		}
	}

	return payload, nil
}

// recordFromPayload восстанавливает запись из payload точки.
func recordFromPayload(imageID string, payload map[string]*qdrant.Value) (*domain.ImageRecord, error) {
	record := &domain.ImageRecord{
		ImageID:      imageID,
		EntityID:     payload[payloadEntityID].GetStringValue(),
		SourceRef:    payload[payloadSourceRef].GetStringValue(),
		ProcessedRef: payload[payloadProcessedRef].GetStringValue(),
		Mode:         domain.Mode(payload[payloadMode].GetStringValue()),
		CreatedAt:    time.Unix(0, payload[payloadCreatedAt].GetIntegerValue()).UTC(),
	}

	if raw := payload[payloadCustomData].GetStringValue(); raw != "" {
		record.CustomData = json.RawMessage(raw)
	}

	if raw := payload[payloadFaceBBox].GetStringValue(); raw != "" {
		face := &domain.FaceMeta{
			DetScore: float32(payload[payloadFaceScore].GetDoubleValue()),
		}

		if err := json.Unmarshal([]byte(raw), &face.BBox); err != nil {
			return nil, err
		}

		if landmarks := payload[payloadLandmarks].GetStringValue(); landmarks != "" {
			if err := json.Unmarshal([]byte(landmarks), &face.Landmarks); err != nil {
				return nil, err
			}
		}

		record.Face = face
	}

	return record, nil
}
