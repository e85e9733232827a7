package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
)

func newCatalogUC(vectorRepo *fakeVectorRepo, artifactRepo *fakeArtifactRepo, cacheRepo *fakeCacheRepo, snapshotRepo *fakeSnapshotRepo, backend *fakeBackend) *CatalogUseCase {
	return NewCatalogUC(vectorRepo, artifactRepo, cacheRepo, snapshotRepo, backend, nopLogger{})
}

func objectSnapshot(model string) domain.ModelSnapshot {
	return domain.ModelSnapshot{
		"embedding": {
			Backend: "onnx",
			Model:   model,
			Params:  map[string]string{"cls_weight": "0.70", "patch_weight": "0.30"},
		},
		"segmentation": {
			Backend: "rembg",
			Model:   "isnet-general-use",
		},
	}
}

func faceSnapshot(model string) domain.ModelSnapshot {
	return domain.ModelSnapshot{
		"face": {
			Backend: "insightface",
			Model:   model,
			Params:  map[string]string{"det_size": "640", "det_threshold": "0.5"},
		},
	}
}

// --- ListEntities ---

func TestListEntities_CacheHit(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	cacheRepo := &fakeCacheRepo{
		counts: []domain.EntityCount{{EntityID: "alpha", Images: 3}},
	}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, cacheRepo, &fakeSnapshotRepo{}, &fakeBackend{})

	counts, err := uc.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}

	if len(counts) != 1 || counts[0].EntityID != "alpha" {
		t.Errorf("expected cached counts, got %+v", counts)
	}
	if vectorRepo.listAllCalls != 0 {
		t.Error("collection scan must not run on cache hit")
	}
}

func TestListEntities_ScansAndOrders(t *testing.T) {
	vectorRepo := &fakeVectorRepo{
		all: []domain.ImageRecord{
			{ImageID: "1", EntityID: "beta"},
			{ImageID: "2", EntityID: "alpha"},
			{ImageID: "3", EntityID: "beta"},
			{ImageID: "4", EntityID: "gamma"},
		},
	}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeSnapshotRepo{}, &fakeBackend{})

	counts, err := uc.ListEntities(context.Background())
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}

	if len(counts) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(counts))
	}
	if counts[0].EntityID != "beta" || counts[0].Images != 2 {
		t.Errorf("expected beta first with 2 images, got %+v", counts[0])
	}
	// Равные счётчики упорядочены по идентификатору
	if counts[1].EntityID != "alpha" || counts[2].EntityID != "gamma" {
		t.Errorf("expected alpha before gamma on tie, got %+v", counts[1:])
	}
}

func TestCountByEntity_Empty(t *testing.T) {
	counts := countByEntity(nil)
	if len(counts) != 0 {
		t.Errorf("expected empty counts, got %+v", counts)
	}
}

// --- ListEntityImages ---

func TestListEntityImages_RequiresEntityID(t *testing.T) {
	uc := newCatalogUC(&fakeVectorRepo{}, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeSnapshotRepo{}, &fakeBackend{})

	_, err := uc.ListEntityImages(context.Background(), "  ")
	if !errors.Is(err, e.ErrEntityIDRequired) {
		t.Errorf("expected ErrEntityIDRequired, got %v", err)
	}
}

// --- DeleteEntity ---

func TestDeleteEntity_Unknown(t *testing.T) {
	artifactRepo := &fakeArtifactRepo{}
	uc := newCatalogUC(&fakeVectorRepo{}, artifactRepo, &fakeCacheRepo{}, &fakeSnapshotRepo{}, &fakeBackend{})

	res, err := uc.DeleteEntity(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("DeleteEntity failed: %v", err)
	}

	if res.DeletedRecords != 0 {
		t.Errorf("expected 0 deleted records, got %d", res.DeletedRecords)
	}
	if len(artifactRepo.cleaned) != 0 {
		t.Error("no cleanup expected for unknown entity")
	}
}

func TestDeleteEntity_Cascade(t *testing.T) {
	vectorRepo := &fakeVectorRepo{
		byEntity: map[string][]domain.ImageRecord{
			"alpha": {
				{ImageID: "a1", EntityID: "alpha", SourceRef: "/images/upload/alpha/a1/original.png", ProcessedRef: "/images/upload/alpha/a1/processed.png"},
				{ImageID: "a2", EntityID: "alpha", SourceRef: "/images/upload/alpha/a2/original.jpg"},
			},
		},
	}
	artifactRepo := &fakeArtifactRepo{}
	cacheRepo := &fakeCacheRepo{}
	uc := newCatalogUC(vectorRepo, artifactRepo, cacheRepo, &fakeSnapshotRepo{}, &fakeBackend{})

	res, err := uc.DeleteEntity(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("DeleteEntity failed: %v", err)
	}

	if res.DeletedRecords != 2 {
		t.Errorf("expected 2 deleted records, got %d", res.DeletedRecords)
	}
	if len(artifactRepo.cleaned) != 3 {
		t.Errorf("expected 3 refs scheduled for cleanup, got %v", artifactRepo.cleaned)
	}
	if vectorRepo.deletedEntity != "alpha" {
		t.Errorf("expected vector delete for alpha, got %q", vectorRepo.deletedEntity)
	}
	if cacheRepo.invalidations() != 1 {
		t.Errorf("expected 1 cache invalidation, got %d", cacheRepo.invalidations())
	}
}

// --- Stats ---

func TestStats(t *testing.T) {
	vectorRepo := &fakeVectorRepo{
		count: 5,
		all: []domain.ImageRecord{
			{ImageID: "1", EntityID: "alpha"},
			{ImageID: "2", EntityID: "beta"},
		},
	}
	backend := &fakeBackend{
		mode:       domain.ModeObject,
		vectorSize: 768,
		snapshot:   objectSnapshot("vitb16"),
	}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeSnapshotRepo{}, backend)

	res, err := uc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if res.TotalRecords != 5 || res.TotalEntities != 2 {
		t.Errorf("unexpected totals: %+v", res)
	}
	// Пустая размерность коллекции — берётся конфигурация модели
	if res.Mode != domain.ModeObject || res.VectorSize != 768 {
		t.Errorf("unexpected backend summary: %+v", res)
	}
	if _, ok := res.Models["embedding"]; !ok {
		t.Error("expected embedding model in summary")
	}
}

func TestStats_ReportsStoredDimension(t *testing.T) {
	vectorRepo := &fakeVectorRepo{
		count:     1,
		dimension: 1024,
		all:       []domain.ImageRecord{{ImageID: "1", EntityID: "alpha"}},
	}
	backend := &fakeBackend{mode: domain.ModeObject, vectorSize: 768}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeSnapshotRepo{}, backend)

	res, err := uc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if res.VectorSize != 1024 {
		t.Errorf("expected stored dimension 1024, got %d", res.VectorSize)
	}
}

// --- Reconcile ---

func TestReconcile_FirstRunSavesSnapshot(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	snapshotRepo := &fakeSnapshotRepo{}
	backend := &fakeBackend{mode: domain.ModeObject, snapshot: objectSnapshot("vitb16")}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, snapshotRepo, backend)

	if err := uc.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if vectorRepo.resetCalls != 0 {
		t.Error("collection must not be reset on first run")
	}
	if len(snapshotRepo.saved) != 1 || snapshotRepo.saved[0].mode != domain.ModeObject {
		t.Fatalf("expected one save for object mode, got %+v", snapshotRepo.saved)
	}
	if !snapshotRepo.saved[0].snapshot.Equal(backend.snapshot) {
		t.Errorf("expected current snapshot saved, got %+v", snapshotRepo.saved[0].snapshot)
	}
}

func TestReconcile_UnchangedRefreshesSnapshot(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	snapshotRepo := &fakeSnapshotRepo{
		sections: map[domain.Mode]domain.ModelSnapshot{domain.ModeObject: objectSnapshot("vitb16")},
	}
	backend := &fakeBackend{mode: domain.ModeObject, snapshot: objectSnapshot("vitb16")}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, snapshotRepo, backend)

	if err := uc.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if vectorRepo.resetCalls != 0 {
		t.Error("collection must not be reset when snapshot matches")
	}
	// Снапшот перезаписывается и без изменений: это лечит битый или удалённый файл
	if len(snapshotRepo.saved) != 1 {
		t.Errorf("expected snapshot rewritten even when unchanged, got %d saves", len(snapshotRepo.saved))
	}
}

func TestReconcile_ChangedResetsCollection(t *testing.T) {
	vectorRepo := &fakeVectorRepo{count: 42}
	cacheRepo := &fakeCacheRepo{}
	snapshotRepo := &fakeSnapshotRepo{
		sections: map[domain.Mode]domain.ModelSnapshot{domain.ModeObject: objectSnapshot("vits16")},
	}
	backend := &fakeBackend{mode: domain.ModeObject, snapshot: objectSnapshot("vitb16")}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, cacheRepo, snapshotRepo, backend)

	if err := uc.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if vectorRepo.resetCalls != 1 {
		t.Errorf("expected collection reset, got %d calls", vectorRepo.resetCalls)
	}
	if cacheRepo.invalidations() != 1 {
		t.Errorf("expected cache invalidation, got %d", cacheRepo.invalidations())
	}
	if len(snapshotRepo.saved) != 1 || !snapshotRepo.saved[0].snapshot.Equal(backend.snapshot) {
		t.Errorf("expected new snapshot saved, got %+v", snapshotRepo.saved)
	}
}

func TestReconcile_ModeSwitchKeepsCollection(t *testing.T) {
	// В снапшоте есть только секция object: до рестарта сервис работал в нём.
	// Старт в режиме face не должен трогать FaceData — его модели не менялись.
	vectorRepo := &fakeVectorRepo{count: 17}
	snapshotRepo := &fakeSnapshotRepo{
		sections: map[domain.Mode]domain.ModelSnapshot{domain.ModeObject: objectSnapshot("vitb16")},
	}
	backend := &fakeBackend{mode: domain.ModeFace, snapshot: faceSnapshot("buffalo_l")}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, snapshotRepo, backend)

	if err := uc.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if vectorRepo.resetCalls != 0 {
		t.Errorf("mode switch must not reset the collection, got %d resets", vectorRepo.resetCalls)
	}
	if len(snapshotRepo.saved) != 1 || snapshotRepo.saved[0].mode != domain.ModeFace {
		t.Fatalf("expected face section saved, got %+v", snapshotRepo.saved)
	}
	if !snapshotRepo.saved[0].snapshot.Equal(backend.snapshot) {
		t.Errorf("unexpected saved face section: %+v", snapshotRepo.saved[0].snapshot)
	}
}

func TestReconcile_ResetFailureSurfaces(t *testing.T) {
	vectorRepo := &fakeVectorRepo{resetErr: errors.New("qdrant unavailable")}
	snapshotRepo := &fakeSnapshotRepo{
		sections: map[domain.Mode]domain.ModelSnapshot{domain.ModeObject: objectSnapshot("vits16")},
	}
	backend := &fakeBackend{mode: domain.ModeObject, snapshot: objectSnapshot("vitb16")}
	uc := newCatalogUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, snapshotRepo, backend)

	if err := uc.Reconcile(context.Background()); err == nil {
		t.Fatal("expected error when reset fails")
	}

	if len(snapshotRepo.saved) != 0 {
		t.Error("snapshot must not be saved after failed reset")
	}
}
