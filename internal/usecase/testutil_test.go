package usecase

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
)

// Общие фейки зависимостей для тестов пакета.

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)        {}
func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Errorf(error, string, ...any) {}
func (nopLogger) Timing(string, time.Duration) {}

type searchCall struct {
	topK      int
	threshold float32
	entityID  string
}

type fakeVectorRepo struct {
	searchFn func(entityID string) ([]domain.SearchHit, error)

	records   map[string]*domain.ImageRecord
	byEntity  map[string][]domain.ImageRecord
	all       []domain.ImageRecord
	count     uint64
	dimension uint64

	upsertErr error
	resetErr  error

	searchCalls   []searchCall
	upserted      []*domain.ImageRecord
	deletedImages []string
	deletedEntity string
	listAllCalls  int
	resetCalls    int
}

func (f *fakeVectorRepo) Upsert(_ context.Context, record *domain.ImageRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, record)
	return nil
}

func (f *fakeVectorRepo) Search(_ context.Context, _ []float32, topK int, threshold float32, entityID string) ([]domain.SearchHit, error) {
	f.searchCalls = append(f.searchCalls, searchCall{topK: topK, threshold: threshold, entityID: entityID})
	if f.searchFn != nil {
		return f.searchFn(entityID)
	}
	return nil, nil
}

func (f *fakeVectorRepo) GetByImageID(_ context.Context, imageID string) (*domain.ImageRecord, error) {
	record, ok := f.records[imageID]
	if !ok {
		return nil, e.ErrNotFound
	}
	return record, nil
}

func (f *fakeVectorRepo) ListByEntityID(_ context.Context, entityID string) ([]domain.ImageRecord, error) {
	return f.byEntity[entityID], nil
}

func (f *fakeVectorRepo) ListAll(_ context.Context) ([]domain.ImageRecord, error) {
	f.listAllCalls++
	return f.all, nil
}

func (f *fakeVectorRepo) DeleteByImageID(_ context.Context, imageID string) error {
	f.deletedImages = append(f.deletedImages, imageID)
	return nil
}

func (f *fakeVectorRepo) DeleteByEntityID(_ context.Context, entityID string) (int, error) {
	f.deletedEntity = entityID
	return len(f.byEntity[entityID]), nil
}

func (f *fakeVectorRepo) Dimension(context.Context) (uint64, error) { return f.dimension, nil }

func (f *fakeVectorRepo) Count(context.Context) (uint64, error) { return f.count, nil }

func (f *fakeVectorRepo) Reset(context.Context) error {
	f.resetCalls++
	return f.resetErr
}

type fakeArtifactRepo struct {
	saveOriginalErr  error
	saveProcessedErr error
	saveTempErr      error

	cleaned   []string
	originals int
	processed int
	tempSaves int
}

func (f *fakeArtifactRepo) SaveOriginal(_ context.Context, entityID, imageID string, _ []byte, _ string) (string, error) {
	if f.saveOriginalErr != nil {
		return "", f.saveOriginalErr
	}
	f.originals++
	return "/images/upload/" + entityID + "/" + imageID + "/original.png", nil
}

func (f *fakeArtifactRepo) SaveProcessed(_ context.Context, entityID, imageID string, _ []byte) (string, error) {
	if f.saveProcessedErr != nil {
		return "", f.saveProcessedErr
	}
	f.processed++
	return "/images/upload/" + entityID + "/" + imageID + "/processed.png", nil
}

func (f *fakeArtifactRepo) SaveTemp(context.Context, []byte) (string, error) {
	if f.saveTempErr != nil {
		return "", f.saveTempErr
	}
	f.tempSaves++
	return "/images/temp/preview.png", nil
}

func (f *fakeArtifactRepo) CleanupRefs(refs []string) {
	f.cleaned = append(f.cleaned, refs...)
}

func (f *fakeArtifactRepo) WaitForCleanup(context.Context) error { return nil }

type fakeCacheRepo struct {
	mu sync.Mutex

	counts []domain.EntityCount

	sets        [][]domain.EntityCount
	invalidated int
}

func (f *fakeCacheRepo) GetEntityCounts(context.Context) ([]domain.EntityCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts, nil
}

func (f *fakeCacheRepo) SetEntityCounts(_ context.Context, counts []domain.EntityCount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, counts)
	return nil
}

func (f *fakeCacheRepo) InvalidateEntityCounts(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return nil
}

func (f *fakeCacheRepo) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

type savedSection struct {
	mode     domain.Mode
	snapshot domain.ModelSnapshot
}

type fakeSnapshotRepo struct {
	sections map[domain.Mode]domain.ModelSnapshot

	saved []savedSection
}

func (f *fakeSnapshotRepo) Load(_ context.Context, mode domain.Mode) (domain.ModelSnapshot, error) {
	return f.sections[mode], nil
}

func (f *fakeSnapshotRepo) Save(_ context.Context, mode domain.Mode, snapshot domain.ModelSnapshot) error {
	f.saved = append(f.saved, savedSection{mode: mode, snapshot: snapshot})
	return nil
}

type fakeBackend struct {
	mode       domain.Mode
	vectorSize uint64
	snapshot   domain.ModelSnapshot

	extractRes *ExtractRes
	extractErr error
}

func (f *fakeBackend) Mode() domain.Mode { return f.mode }

func (f *fakeBackend) VectorSize() uint64 { return f.vectorSize }

func (f *fakeBackend) ModelConfig() domain.ModelSnapshot { return f.snapshot }

func (f *fakeBackend) Extract(context.Context, image.Image) (*ExtractRes, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.extractRes, nil
}

type fakeLiveness struct {
	enabled bool
	res     *domain.LivenessResult
	err     error

	checks int
}

func (f *fakeLiveness) Enabled() bool { return f.enabled }

func (f *fakeLiveness) Check(context.Context, image.Image, [4]float32) (*domain.LivenessResult, error) {
	f.checks++
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeLoader struct {
	acquireErr  error
	annotateErr error
}

func (f *fakeLoader) Acquire(_ context.Context, req *AcquireImageReq) (*LoadedImage, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return &LoadedImage{
		Image:    image.NewRGBA(image.Rect(0, 0, 8, 8)),
		Data:     req.Data,
		MimeType: "image/png",
	}, nil
}

func (f *fakeLoader) Annotate(image.Image, [4]float32) ([]byte, error) {
	if f.annotateErr != nil {
		return nil, f.annotateErr
	}
	return []byte("annotated"), nil
}

func objectExtractRes() *ExtractRes {
	return &ExtractRes{
		Vector:    []float32{0.6, 0.8},
		Processed: []byte("segmented"),
	}
}

func faceExtractRes() *ExtractRes {
	return &ExtractRes{
		Vector: []float32{0.6, 0.8},
		Face: &domain.FaceMeta{
			BBox:     [4]float32{10, 10, 50, 50},
			DetScore: 0.92,
		},
	}
}

func hit(entityID, imageID string, similarity float32) domain.SearchHit {
	return domain.SearchHit{
		Record: domain.ImageRecord{
			ImageID:   imageID,
			EntityID:  entityID,
			SourceRef: "/images/upload/" + entityID + "/" + imageID + "/original.png",
		},
		Similarity: similarity,
	}
}
