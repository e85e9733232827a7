package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/DRSN-tech/vision-search/internal/domain"
	"github.com/DRSN-tech/vision-search/pkg/e"
)

func newImageUC(vectorRepo *fakeVectorRepo, artifactRepo *fakeArtifactRepo, cacheRepo *fakeCacheRepo, backend *fakeBackend, liveness *fakeLiveness) *ImageUseCase {
	return NewImageUC(vectorRepo, artifactRepo, cacheRepo, backend, liveness, &fakeLoader{}, nopLogger{})
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		req      *RegisterReq
		expected error
	}{
		{"empty entity id", &RegisterReq{Image: []byte{1}}, e.ErrEntityIDRequired},
		{"blank entity id", &RegisterReq{EntityID: "  ", Image: []byte{1}}, e.ErrEntityIDRequired},
		{"no image source", &RegisterReq{EntityID: "alpha"}, e.ErrImageRequired},
		{"invalid custom data", &RegisterReq{EntityID: "alpha", Image: []byte{1}, CustomData: []byte("{broken")}, e.ErrInvalidCustomData},
	}

	uc := newImageUC(&fakeVectorRepo{}, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeBackend{extractRes: objectExtractRes()}, &fakeLiveness{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Register(context.Background(), tt.req)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestRegister_Success(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	cacheRepo := &fakeCacheRepo{}
	backend := &fakeBackend{mode: domain.ModeObject, extractRes: objectExtractRes()}
	uc := newImageUC(vectorRepo, &fakeArtifactRepo{}, cacheRepo, backend, &fakeLiveness{})

	res, err := uc.Register(context.Background(), &RegisterReq{
		EntityID:      "alpha",
		Image:         []byte{1, 2, 3},
		CustomData:    []byte(`{"sku":"A-17"}`),
		SaveArtifacts: true,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if res.ImageID == "" {
		t.Error("expected generated image id")
	}
	if res.SourceRef == "" || res.ProcessedRef == "" {
		t.Errorf("expected both artifact refs, got %q, %q", res.SourceRef, res.ProcessedRef)
	}

	if len(vectorRepo.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(vectorRepo.upserted))
	}
	record := vectorRepo.upserted[0]
	if record.EntityID != "alpha" || record.ImageID != res.ImageID {
		t.Errorf("unexpected record identity: %+v", record)
	}
	if record.Mode != domain.ModeObject {
		t.Errorf("expected object mode on record, got %s", record.Mode)
	}
	if len(record.Vector) != 2 {
		t.Errorf("expected extracted vector on record, got %v", record.Vector)
	}

	if cacheRepo.invalidations() != 1 {
		t.Errorf("expected 1 cache invalidation, got %d", cacheRepo.invalidations())
	}
}

func TestRegister_WithoutArtifacts(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	artifactRepo := &fakeArtifactRepo{}
	backend := &fakeBackend{mode: domain.ModeObject, extractRes: objectExtractRes()}
	uc := newImageUC(vectorRepo, artifactRepo, &fakeCacheRepo{}, backend, &fakeLiveness{})

	res, err := uc.Register(context.Background(), &RegisterReq{
		EntityID: "alpha",
		Image:    []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if artifactRepo.originals != 0 || artifactRepo.processed != 0 {
		t.Errorf("no files expected when saving is off, got %d/%d", artifactRepo.originals, artifactRepo.processed)
	}
	if res.SourceRef != "" || res.ProcessedRef != "" {
		t.Errorf("expected empty refs, got %q, %q", res.SourceRef, res.ProcessedRef)
	}

	// Запись всё равно вставляется, только без ссылок на файлы
	if len(vectorRepo.upserted) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(vectorRepo.upserted))
	}
	if vectorRepo.upserted[0].SourceRef != "" {
		t.Errorf("expected record without source ref, got %q", vectorRepo.upserted[0].SourceRef)
	}
}

func TestRegister_CleanupOnUpsertFailure(t *testing.T) {
	vectorRepo := &fakeVectorRepo{upsertErr: errors.New("qdrant unavailable")}
	artifactRepo := &fakeArtifactRepo{}
	cacheRepo := &fakeCacheRepo{}
	uc := newImageUC(vectorRepo, artifactRepo, cacheRepo, &fakeBackend{extractRes: objectExtractRes()}, &fakeLiveness{})

	_, err := uc.Register(context.Background(), &RegisterReq{EntityID: "alpha", Image: []byte{1}, SaveArtifacts: true})
	if err == nil {
		t.Fatal("expected error after failed upsert")
	}

	// Оба сохранённых артефакта уходят в зачистку
	if len(artifactRepo.cleaned) != 2 {
		t.Fatalf("expected 2 refs scheduled for cleanup, got %v", artifactRepo.cleaned)
	}
	if cacheRepo.invalidations() != 0 {
		t.Error("cache must not be invalidated when nothing was inserted")
	}
}

func TestRegister_CleanupOriginalWhenProcessedSaveFails(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	artifactRepo := &fakeArtifactRepo{saveProcessedErr: errors.New("minio down")}
	uc := newImageUC(vectorRepo, artifactRepo, &fakeCacheRepo{}, &fakeBackend{extractRes: objectExtractRes()}, &fakeLiveness{})

	_, err := uc.Register(context.Background(), &RegisterReq{EntityID: "alpha", Image: []byte{1}, SaveArtifacts: true})
	if err == nil {
		t.Fatal("expected error after failed processed save")
	}

	if len(artifactRepo.cleaned) != 1 {
		t.Fatalf("expected 1 ref scheduled for cleanup, got %v", artifactRepo.cleaned)
	}
	if len(vectorRepo.upserted) != 0 {
		t.Error("upsert must not run after artifact save failure")
	}
}

func TestRegister_LivenessGate(t *testing.T) {
	vectorRepo := &fakeVectorRepo{}
	liveness := &fakeLiveness{
		enabled: true,
		res: &domain.LivenessResult{
			Passed:       false,
			RejectReason: "real score too low: 0.4801 <= 0.60",
		},
	}
	backend := &fakeBackend{mode: domain.ModeFace, extractRes: faceExtractRes()}
	uc := newImageUC(vectorRepo, &fakeArtifactRepo{}, &fakeCacheRepo{}, backend, liveness)

	_, err := uc.Register(context.Background(), &RegisterReq{
		EntityID:      "person-1",
		Image:         []byte{1},
		CheckLiveness: true,
	})

	if !errors.Is(err, e.ErrLivenessRejected) {
		t.Fatalf("expected ErrLivenessRejected, got %v", err)
	}
	if len(vectorRepo.upserted) != 0 {
		t.Error("record must not be inserted after liveness rejection")
	}
}

func TestGetImage_NotFound(t *testing.T) {
	uc := newImageUC(&fakeVectorRepo{}, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeBackend{}, &fakeLiveness{})

	_, err := uc.GetImage(context.Background(), "missing")
	if !errors.Is(err, e.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteImage_CascadesFilesAndVector(t *testing.T) {
	vectorRepo := &fakeVectorRepo{
		records: map[string]*domain.ImageRecord{
			"img-1": {
				ImageID:      "img-1",
				EntityID:     "alpha",
				SourceRef:    "/images/upload/alpha/img-1/original.png",
				ProcessedRef: "/images/upload/alpha/img-1/processed.png",
			},
		},
	}
	artifactRepo := &fakeArtifactRepo{}
	cacheRepo := &fakeCacheRepo{}
	uc := newImageUC(vectorRepo, artifactRepo, cacheRepo, &fakeBackend{}, &fakeLiveness{})

	if err := uc.DeleteImage(context.Background(), "img-1"); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}

	if len(artifactRepo.cleaned) != 2 {
		t.Errorf("expected both refs scheduled for cleanup, got %v", artifactRepo.cleaned)
	}
	if len(vectorRepo.deletedImages) != 1 || vectorRepo.deletedImages[0] != "img-1" {
		t.Errorf("expected vector delete for img-1, got %v", vectorRepo.deletedImages)
	}
	if cacheRepo.invalidations() != 1 {
		t.Errorf("expected 1 cache invalidation, got %d", cacheRepo.invalidations())
	}
}

func TestDeleteImage_NotFound(t *testing.T) {
	uc := newImageUC(&fakeVectorRepo{}, &fakeArtifactRepo{}, &fakeCacheRepo{}, &fakeBackend{}, &fakeLiveness{})

	err := uc.DeleteImage(context.Background(), "missing")
	if !errors.Is(err, e.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
