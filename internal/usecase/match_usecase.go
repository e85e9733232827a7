package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
	"github.com/DRSN-tech/vision-search/pkg/logger"
	"github.com/google/uuid"
)

// MatchUseCase реализует конвейер поиска: загрузка изображения,
// извлечение признаков, векторный поиск, группировка по сущностям.
type MatchUseCase struct {
	vectorRepo   VectorRepository
	artifactRepo ArtifactRepository
	backend      Backend
	liveness     Liveness
	loader       ImageLoader
	logger       logger.Logger
}

func NewMatchUC(
	vectorRepo VectorRepository,
	artifactRepo ArtifactRepository,
	backend Backend,
	liveness Liveness,
	loader ImageLoader,
	logger logger.Logger,
) *MatchUseCase {
	return &MatchUseCase{
		vectorRepo:   vectorRepo,
		artifactRepo: artifactRepo,
		backend:      backend,
		liveness:     liveness,
		loader:       loader,
		logger:       logger,
	}
}

// Match выполняет поиск похожих изображений и возвращает группы,
// ранжированные по максимальной похожести внутри группы.
func (m *MatchUseCase) Match(ctx context.Context, req *MatchReq) (*MatchRes, error) {
	const op = "MatchUseCase.Match"

	started := time.Now()

	if err := m.validateMatch(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	topK := req.TopK
	if topK == 0 {
		topK = DefaultTopK
	}

	var timings domain.Timings

	// Загрузка и декодирование изображения
	loadStart := time.Now()
	loaded, err := m.loader.Acquire(ctx, NewAcquireImageReq(req.Image, req.ImageURL))
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	timings.Load = time.Since(loadStart)

	// Извлечение признаков; разбивку детекция/эмбеддинг сообщает стратегия
	extracted, err := m.backend.Extract(ctx, loaded.Image)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	timings.Detect = extracted.DetectTime
	timings.Embed = extracted.EmbedTime

	if extracted.FallbackUsed {
		m.logger.Infof("detection succeeded on fallback scale")
	}

	// Проверка живости: отказ любой из моделей блокирует поиск
	var livenessRes *domain.LivenessResult
	if req.CheckLiveness && m.liveness.Enabled() && extracted.Face != nil {
		livenessRes, err = m.liveness.Check(ctx, loaded.Image, extracted.Face.BBox)
		if err != nil {
			return nil, e.Wrap(op, err)
		}

		if !livenessRes.Passed {
			return nil, e.Wrap(op, fmt.Errorf("%w: %s", e.ErrLivenessRejected, livenessRes.RejectReason))
		}
	}

	// Векторный поиск: по области видимости или по всей коллекции
	searchStart := time.Now()
	hits, err := m.search(ctx, extracted.Vector, topK, req.Threshold, req.EntityIDs)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	timings.Search = time.Since(searchStart)

	// Группировка по сущностям и ранжирование групп
	groupStart := time.Now()
	groups, total := groupHits(hits, topK)
	timings.Group = time.Since(groupStart)

	res := &MatchRes{
		QueryID:      uuid.NewString(),
		Groups:       groups,
		TotalMatches: total,
		Threshold:    req.Threshold,
		TopK:         topK,
		QueryFace:    extracted.Face,
		Liveness:     livenessRes,
	}

	// Превью запроса сохраняется по запросу; сбой не ломает поиск
	if req.SaveTemp {
		res.TempRef = m.saveTempArtifact(ctx, loaded, extracted)
	}

	timings.Total = time.Since(started)
	res.Timings = timings

	m.logger.Timing("match.load", timings.Load)
	m.logger.Timing("match.detect", timings.Detect)
	m.logger.Timing("match.embed", timings.Embed)
	m.logger.Timing("match.search", timings.Search)
	m.logger.Timing("match.total", timings.Total)

	return res, nil
}

// search выполняет один запрос без фильтра либо по одному запросу на каждую
// сущность области видимости. Дубликаты в области схлопываются с сохранением
// порядка первого вхождения.
func (m *MatchUseCase) search(ctx context.Context, vector []float32, topK int, threshold float32, entityIDs []string) ([]domain.SearchHit, error) {
	scope := dedupScope(entityIDs)

	if len(scope) == 0 {
		return m.vectorRepo.Search(ctx, vector, topK, threshold, "")
	}

	var hits []domain.SearchHit
	for _, entityID := range scope {
		scoped, err := m.vectorRepo.Search(ctx, vector, topK, threshold, entityID)
		if err != nil {
			return nil, err
		}
		hits = append(hits, scoped...)
	}

	return hits, nil
}

// saveTempArtifact сохраняет превью запроса: лицо — с рамкой детекции,
// объект — кадр после удаления фона.
func (m *MatchUseCase) saveTempArtifact(ctx context.Context, loaded *LoadedImage, extracted *ExtractRes) string {
	var (
		data []byte
		err  error
	)

	switch {
	case extracted.Face != nil:
		data, err = m.loader.Annotate(loaded.Image, extracted.Face.BBox)
	case len(extracted.Processed) > 0:
		data = extracted.Processed
	default:
		data = loaded.Data
	}
	if err != nil {
		m.logger.Warnf("failed to render temp preview: %v", err)
		return ""
	}

	ref, err := m.artifactRepo.SaveTemp(ctx, data)
	if err != nil {
		m.logger.Warnf("failed to save temp preview: %v", err)
		return ""
	}

	return ref
}

func (m *MatchUseCase) validateMatch(req *MatchReq) error {
	if len(req.Image) == 0 && strings.TrimSpace(req.ImageURL) == "" {
		return e.ErrImageRequired
	}

	if req.Threshold < 0 || req.Threshold > 1 {
		return e.ErrInvalidThreshold
	}

	if req.TopK != 0 && (req.TopK < MinTopK || req.TopK > MaxTopK) {
		return e.ErrInvalidTopK
	}

	return nil
}

// groupHits собирает попадания в группы по сущностям. Группы сортируются по
// убыванию максимальной похожести; при равенстве сохраняется порядок первого
// вхождения. Возвращает не более topK групп и суммарное число попаданий в них.
func groupHits(hits []domain.SearchHit, topK int) ([]domain.MatchGroup, int) {
	groupIdx := make(map[string]int)
	groups := make([]domain.MatchGroup, 0)

	for _, hit := range hits {
		idx, ok := groupIdx[hit.Record.EntityID]
		if !ok {
			idx = len(groups)
			groupIdx[hit.Record.EntityID] = idx
			groups = append(groups, domain.MatchGroup{EntityID: hit.Record.EntityID})
		}

		groups[idx].Images = append(groups[idx].Images, domain.MatchImage{
			ImageID:      hit.Record.ImageID,
			Similarity:   hit.Similarity,
			SourceRef:    hit.Record.SourceRef,
			ProcessedRef: hit.Record.ProcessedRef,
			CustomData:   hit.Record.CustomData,
			Face:         hit.Record.Face,
		})
		if hit.Similarity > groups[idx].MaxSimilarity {
			groups[idx].MaxSimilarity = hit.Similarity
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].MaxSimilarity > groups[j].MaxSimilarity
	})

	if len(groups) > topK {
		groups = groups[:topK]
	}

	total := 0
	for _, g := range groups {
		total += len(g.Images)
	}

	return groups, total
}

// dedupScope убирает дубликаты и пустые идентификаторы,
// сохраняя порядок первого вхождения.
func dedupScope(entityIDs []string) []string {
	if len(entityIDs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(entityIDs))
	scope := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		scope = append(scope, id)
	}

	return scope
}
